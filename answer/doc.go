// Package answer runs the question answering pipeline.
//
// Each question moves through a fixed sequence of states:
//
//	Retrieving -> Prompting -> Generating -> Recording -> Done
//
// A failure in any state moves the run to Failed and the error is returned
// wrapped in the sentinel of the stage that failed. A failed run never
// records a turn, so the conversation memory only holds questions that
// received a real answer.
//
// When retrieval finds nothing the pipeline still prompts the model, with
// an empty context. The templates tell the model to say the information is
// unavailable in that case.
package answer
