// Package reembed re-embeds an existing index namespace with a new embedding
// model.
//
// Chunks are read back from the published generations, embedded again in
// batches with retry and backoff, and staged into a fresh generation. The
// new generation is published together with the new fingerprint and the old
// generations are dropped, so queries switch models atomically. This is the
// remedy for index.ErrIndexMismatch after changing embedding models.
package reembed
