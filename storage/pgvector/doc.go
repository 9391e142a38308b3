// Package pgvector implements the storage repositories on PostgreSQL with
// the pgvector extension.
//
// Entries live in a single table keyed by namespace and generation; nearest
// neighbour queries use pgvector's cosine distance operator (<=>). Call
// EnsureSchema once before use.
package pgvector
