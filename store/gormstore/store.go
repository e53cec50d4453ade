// Package gormstore backs the quest stores with a GORM database.
package gormstore

import (
	"context"
	"errors"

	"github.com/skillquest/server/model"
	"github.com/skillquest/server/store"
	"gorm.io/gorm"
)

// Store implements store.RecordStore and store.CollectionStore on one DB.
type Store struct {
	db *gorm.DB
}

// New creates a Store. The database must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// PutRecord creates or fully overwrites one quest record.
func (s *Store) PutRecord(ctx context.Context, rec *model.QuestRecord) error {
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return wrap("put record", err)
	}
	return nil
}

// GetRecord fetches one quest record by its unique id.
func (s *Store) GetRecord(ctx context.Context, questID string) (*model.QuestRecord, error) {
	var rec model.QuestRecord
	err := s.db.WithContext(ctx).Where("id = ?", questID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get record", err)
	}
	return &rec, nil
}

// RecordsByCollection returns all records owned by a collection.
func (s *Store) RecordsByCollection(ctx context.Context, collectionID string) ([]model.QuestRecord, error) {
	var recs []model.QuestRecord
	err := s.db.WithContext(ctx).
		Where("collection_id = ?", collectionID).
		Order("week asc").
		Find(&recs).Error
	if err != nil {
		return nil, wrap("records by collection", err)
	}
	return recs, nil
}

// RecordsByEnrollment returns all records for a (student, period) pair.
func (s *Store) RecordsByEnrollment(ctx context.Context, studentID, periodID string) ([]model.QuestRecord, error) {
	var recs []model.QuestRecord
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND period_id = ?", studentID, periodID).
		Order("week asc").
		Find(&recs).Error
	if err != nil {
		return nil, wrap("records by enrollment", err)
	}
	return recs, nil
}

// PutCollection creates or fully overwrites one collection record.
func (s *Store) PutCollection(ctx context.Context, col *model.QuestCollection) error {
	if err := s.db.WithContext(ctx).Save(col).Error; err != nil {
		return wrap("put collection", err)
	}
	return nil
}

// GetCollection returns the newest collection for a (student, period) pair.
func (s *Store) GetCollection(ctx context.Context, studentID, periodID string) (*model.QuestCollection, error) {
	var col model.QuestCollection
	err := s.db.WithContext(ctx).
		Where("student_id = ? AND period_id = ?", studentID, periodID).
		Order("created_at desc").
		First(&col).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get collection", err)
	}
	return &col, nil
}

// wrap classifies driver errors. Context expiry and anything the driver
// reports as temporary surfaces as a TransientError so the caller's retry
// policy applies; everything else passes through fatal.
func wrap(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &store.TransientError{Op: op, Err: err}
	}
	return err
}
