// Package store defines the persistence contract for quest data. The two
// stores are deliberately narrow: keyed puts and gets plus secondary-index
// queries, with no multi-key transactions. Callers that need cross-store
// consistency reconcile on read instead of relying on atomic writes.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillquest/server/model"
)

// ErrNotFound is returned when a keyed lookup matches nothing.
// It is never retried automatically.
var ErrNotFound = errors.New("store: not found")

// TransientError wraps a timeout or throttling failure from the backing
// store. Operations retry these with bounded backoff before giving up.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("store: transient %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RecordStore persists individual QuestRecord entities.
//
// Index-based queries (RecordsByCollection, RecordsByEnrollment) may be
// eventually consistent: a record written moments ago is allowed to be
// missing from the result. Keyed reads are strongly consistent.
type RecordStore interface {
	PutRecord(ctx context.Context, rec *model.QuestRecord) error
	GetRecord(ctx context.Context, questID string) (*model.QuestRecord, error)
	RecordsByCollection(ctx context.Context, collectionID string) ([]model.QuestRecord, error)
	RecordsByEnrollment(ctx context.Context, studentID, periodID string) ([]model.QuestRecord, error)
}

// CollectionStore persists QuestCollection entities, one logical record per
// enrollment. GetCollection returns the most recently created collection for
// the enrollment when more than one exists.
type CollectionStore interface {
	PutCollection(ctx context.Context, col *model.QuestCollection) error
	GetCollection(ctx context.Context, studentID, periodID string) (*model.QuestCollection, error)
}
