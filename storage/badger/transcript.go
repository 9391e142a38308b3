package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// TranscriptRepository implements storage.TranscriptRepository for BadgerDB.
type TranscriptRepository struct {
	backend *Backend
}

var _ storage.TranscriptRepository = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(backend *Backend) (storage.TranscriptRepository, error) {
	return &TranscriptRepository{backend: backend}, nil
}

// Close is a no-op; the backend owns the database.
func (r *TranscriptRepository) Close() error {
	return nil
}

// SaveTurn stores a turn under its order. Saving the same order twice
// replaces the earlier turn.
func (r *TranscriptRepository) SaveTurn(ctx context.Context, session string, turn core.ConversationTurn) error {
	if err := r.backend.checkOpen(); err != nil {
		return err
	}
	if err := core.ValidateNamespace(session); err != nil {
		return err
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	value, err := storage.MarshalTurn(&turn)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeTurnKey(session, turn.Order), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadSession returns turns in order.
func (r *TranscriptRepository) LoadSession(ctx context.Context, session string) ([]core.ConversationTurn, error) {
	if err := r.backend.checkOpen(); err != nil {
		return nil, err
	}
	if err := core.ValidateNamespace(session); err != nil {
		return nil, err
	}
	var turns []core.ConversationTurn
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeSessionPrefix(session)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				turn, err := storage.UnmarshalTurn(val)
				if err != nil {
					return err
				}
				turns = append(turns, *turn)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return turns, err
}

// DeleteSession removes all turns of a session.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, session string) error {
	if err := r.backend.checkOpen(); err != nil {
		return err
	}
	if err := core.ValidateNamespace(session); err != nil {
		return err
	}
	return r.backend.DeletePrefix(ctx, makeSessionPrefix(session))
}
