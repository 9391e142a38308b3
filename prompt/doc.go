// Package prompt holds the answer prompt templates.
//
// Templates take three inputs: chat_history, context and question. They are
// rendered with langchaingo's PromptTemplate using Go template syntax. Every
// template tells the model to reply with [Unavailable] when the context does
// not contain the answer.
package prompt
