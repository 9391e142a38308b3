package storage

import (
	"context"

	"github.com/poiesic/ragchat/core"
)

// IndexRepository persists vector index entries grouped by namespace and
// generation. Implementations must be thread-safe and support concurrent access.
type IndexRepository interface {
	// LoadManifest returns the published manifest of a namespace.
	// Returns ErrNotFound if the namespace has never been published.
	LoadManifest(ctx context.Context, namespace string) (*core.IndexManifest, error)

	// NextGeneration reserves a new generation number for staging.
	NextGeneration(ctx context.Context, namespace string) (uint64, error)

	// StageEntries writes entries into a generation. Seq is assigned to each
	// entry in call order. Staged entries are invisible until published.
	StageEntries(ctx context.Context, namespace string, generation uint64, entries ...*core.IndexEntry) error

	// ContainsChunk reports whether a chunk ID is stored in any generation
	// of the manifest.
	ContainsChunk(ctx context.Context, manifest *core.IndexManifest, id core.ID) (bool, error)

	// Publish stores manifest as the namespace's current manifest and then
	// removes the generations listed in drop. manifest.Version must equal
	// the stored version (zero for a new namespace), otherwise ErrConflict
	// is returned. Returns the manifest as stored.
	Publish(ctx context.Context, manifest *core.IndexManifest, drop []uint64) (*core.IndexManifest, error)

	// DiscardGeneration removes a staged generation that will not be published.
	DiscardGeneration(ctx context.Context, namespace string, generation uint64) error

	// Scan calls fn for every entry of the manifest's generations in
	// insertion order. Iteration stops at the first error.
	Scan(ctx context.Context, manifest *core.IndexManifest, fn func(entry *core.IndexEntry) error) error

	// Nearest returns the k entries closest to the unit vector by cosine
	// distance, ascending, ties broken by insertion order.
	Nearest(ctx context.Context, manifest *core.IndexManifest, vector []float32, k int) ([]core.ScoredChunk, error)

	// DeleteNamespace removes the manifest and every generation of a namespace.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Namespaces lists published namespaces in lexical order.
	Namespaces(ctx context.Context) ([]string, error)

	// Close releases resources held by the repository.
	Close() error
}

// TranscriptRepository persists conversation turns per session.
type TranscriptRepository interface {
	// SaveTurn appends a turn to a session. turn.Order positions it.
	SaveTurn(ctx context.Context, session string, turn core.ConversationTurn) error

	// LoadSession returns a session's turns ordered by Order.
	// An unknown session yields no turns and no error.
	LoadSession(ctx context.Context, session string) ([]core.ConversationTurn, error)

	// DeleteSession removes all turns of a session.
	DeleteSession(ctx context.Context, session string) error

	// Close releases resources held by the repository.
	Close() error
}
