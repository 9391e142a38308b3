package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// IndexRepository implements storage.IndexRepository on PostgreSQL.
type IndexRepository struct {
	db *DB
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// NewIndexRepository creates a repository over db.
func NewIndexRepository(db *DB) storage.IndexRepository {
	return &IndexRepository{db: db}
}

// Close is a no-op; DB owns the pool.
func (r *IndexRepository) Close() error {
	return nil
}

// LoadManifest returns the published manifest of a namespace.
func (r *IndexRepository) LoadManifest(ctx context.Context, namespace string) (*core.IndexManifest, error) {
	var data []byte
	err := r.db.pool.QueryRow(ctx,
		`SELECT manifest FROM ragchat_manifests WHERE namespace = $1`,
		namespace,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	return storage.UnmarshalManifest(data)
}

// NextGeneration draws from a database sequence.
func (r *IndexRepository) NextGeneration(ctx context.Context, namespace string) (uint64, error) {
	var gen int64
	if err := r.db.pool.QueryRow(ctx, `SELECT nextval('ragchat_generation_seq')`).Scan(&gen); err != nil {
		return 0, fmt.Errorf("failed to reserve generation: %w", err)
	}
	return uint64(gen), nil
}

// StageEntries inserts entries in one batch; seq comes from the bigserial column.
func (r *IndexRepository) StageEntries(ctx context.Context, namespace string, generation uint64, entries ...*core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		chunk, err := json.Marshal(&entry.Chunk)
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		vector := pgvector.NewVector(entry.Vector)
		batch.Queue(
			`INSERT INTO ragchat_entries (namespace, generation, chunk_id, chunk, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING seq`,
			namespace, int64(generation), int64(entry.Chunk.ID), chunk, &vector,
		)
	}
	br := r.db.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i, entry := range entries {
		var seq int64
		if err := br.QueryRow().Scan(&seq); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
		entry.Seq = uint64(seq)
	}
	return nil
}

// ContainsChunk looks the chunk ID up in the manifest's generations.
func (r *IndexRepository) ContainsChunk(ctx context.Context, manifest *core.IndexManifest, id core.ID) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM ragchat_entries
			WHERE namespace = $1 AND generation = ANY($2) AND chunk_id = $3
		)`,
		manifest.Namespace, generations(manifest), int64(id),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up chunk: %w", err)
	}
	return exists, nil
}

// Publish replaces the manifest under a row lock and then drops replaced
// generations.
func (r *IndexRepository) Publish(ctx context.Context, manifest *core.IndexManifest, drop []uint64) (*core.IndexManifest, error) {
	published := *manifest
	published.Generations = slices.Clone(manifest.Generations)

	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		var version int64
		var data []byte
		err := tx.QueryRow(ctx,
			`SELECT version, manifest FROM ragchat_manifests WHERE namespace = $1 FOR UPDATE`,
			manifest.Namespace,
		).Scan(&version, &data)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			version = 0
		case err != nil:
			return err
		default:
			current, err := storage.UnmarshalManifest(data)
			if err != nil {
				return err
			}
			published.CreatedAt = current.CreatedAt
		}
		if uint64(version) != manifest.Version {
			return fmt.Errorf("%w: namespace %s is at version %d, expected %d",
				storage.ErrConflict, manifest.Namespace, version, manifest.Version)
		}

		now := time.Now().UTC()
		if published.CreatedAt.IsZero() {
			published.CreatedAt = now
		}
		published.UpdatedAt = now
		published.Version = uint64(version) + 1

		value, err := storage.MarshalManifest(&published)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ragchat_manifests (namespace, version, manifest)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (namespace) DO UPDATE SET version = EXCLUDED.version, manifest = EXCLUDED.manifest`,
			manifest.Namespace, int64(published.Version), value,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, generation := range drop {
		if err := r.DiscardGeneration(ctx, manifest.Namespace, generation); err != nil {
			r.db.logger.Warn("failed to drop generation",
				"namespace", manifest.Namespace, "generation", generation, "err", err)
		}
	}
	return &published, nil
}

// DiscardGeneration deletes the rows of a generation.
func (r *IndexRepository) DiscardGeneration(ctx context.Context, namespace string, generation uint64) error {
	_, err := r.db.pool.Exec(ctx,
		`DELETE FROM ragchat_entries WHERE namespace = $1 AND generation = $2`,
		namespace, int64(generation),
	)
	return err
}

// Scan streams rows ordered by seq.
func (r *IndexRepository) Scan(ctx context.Context, manifest *core.IndexManifest, fn func(entry *core.IndexEntry) error) error {
	rows, err := r.db.pool.Query(ctx,
		`SELECT seq, chunk, embedding FROM ragchat_entries
		 WHERE namespace = $1 AND generation = ANY($2)
		 ORDER BY seq`,
		manifest.Namespace, generations(manifest),
	)
	if err != nil {
		return fmt.Errorf("failed to scan entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var data []byte
		var vector pgvector.Vector
		if err := rows.Scan(&seq, &data, &vector); err != nil {
			return err
		}
		chunk, err := storage.UnmarshalChunk(data)
		if err != nil {
			return err
		}
		if err := fn(&core.IndexEntry{Chunk: *chunk, Vector: vector.Slice(), Seq: uint64(seq)}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Nearest orders by cosine distance in the database.
func (r *IndexRepository) Nearest(ctx context.Context, manifest *core.IndexManifest, vector []float32, k int) ([]core.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	query := pgvector.NewVector(vector)
	rows, err := r.db.pool.Query(ctx,
		`SELECT seq, chunk, embedding <=> $3 AS distance
		 FROM ragchat_entries
		 WHERE namespace = $1 AND generation = ANY($2)
		 ORDER BY distance, seq
		 LIMIT $4`,
		manifest.Namespace, generations(manifest), &query, k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	var results []core.ScoredChunk
	for rows.Next() {
		var seq int64
		var data []byte
		var distance float64
		if err := rows.Scan(&seq, &data, &distance); err != nil {
			return nil, err
		}
		chunk, err := storage.UnmarshalChunk(data)
		if err != nil {
			return nil, err
		}
		results = append(results, core.ScoredChunk{Chunk: *chunk, Distance: float32(distance), Seq: uint64(seq)})
	}
	return results, rows.Err()
}

// DeleteNamespace removes the manifest and all entries in one transaction.
func (r *IndexRepository) DeleteNamespace(ctx context.Context, namespace string) error {
	return pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM ragchat_manifests WHERE namespace = $1`, namespace); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM ragchat_entries WHERE namespace = $1`, namespace)
		return err
	})
}

// Namespaces lists published namespaces.
func (r *IndexRepository) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT namespace FROM ragchat_manifests ORDER BY namespace`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func generations(manifest *core.IndexManifest) []int64 {
	out := make([]int64, len(manifest.Generations))
	for i, g := range manifest.Generations {
		out[i] = int64(g)
	}
	return out
}
