// Package ingestion builds an index from a directory of documents.
//
// The Pipeline runs three stages in order:
//   - Loading text and PDF files through the loader
//   - Splitting the documents into overlapping chunks
//   - Embedding the chunks and publishing them to the index
//
// Files that fail to load are reported and skipped; they never abort the
// run. A corpus that produces no chunks fails with ErrEmptyCorpus and
// leaves the index untouched.
package ingestion
