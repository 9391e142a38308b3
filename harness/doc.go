// Package harness runs a batch of test questions through the answering
// pipeline and records the results.
//
// Questions are read from a JSON array of {"question": "..."} objects.
// Items that do not match that shape are reported and skipped. Each
// template variant gets a fresh pipeline, so the chat history threaded
// through a run only contains the answers of that run. A failing question
// is recorded with its error and the run continues.
package harness
