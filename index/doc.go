// Package index is the vector index adapter: it embeds chunks, stores them
// through a storage.IndexRepository and answers nearest-neighbour queries.
//
// Every index records the fingerprint of the embedding model that built it.
// Opening or extending an index with a different model fails with
// ErrIndexMismatch instead of returning meaningless neighbours.
//
// Builds are staged into a new generation and published in one step, so
// concurrent queries see either the old or the new content, never a mix.
//
//	idx, err := index.New(repo, provider.Embedder(), provider.Fingerprint(), "docs")
//	handle, err := idx.Build(ctx, chunks, index.ModeOverwrite)
//	results, err := handle.Query(ctx, "what is RAG?", 8)
package index
