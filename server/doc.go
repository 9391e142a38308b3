// Package server exposes the answering pipeline over HTTP.
//
// Routes:
//
//	POST   /sessions               start a conversation
//	POST   /sessions/{id}/ask      ask a question in a conversation
//	GET    /sessions/{id}/history  list the recorded turns
//	DELETE /sessions/{id}          forget a conversation
//	POST   /search                 raw retrieval, for debugging
//	GET    /health                 liveness
//	GET    /stats                  published index manifests
//
// Every session has its own pipeline and memory. Sessions are identified by
// random UUIDs and, when a transcript repository is configured, survive a
// restart of the server.
package server
