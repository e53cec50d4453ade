package quest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skillquest/server/model"
	"github.com/skillquest/server/store"
	"go.uber.org/zap"
)

// Config tunes lifecycle behavior.
type Config struct {
	// CourseWeeks bounds the week values accepted from generated schedules.
	CourseWeeks int
	// DuplicateWeekPolicy resolves duplicate weeks within one schedule.
	DuplicateWeekPolicy DuplicateWeekPolicy
	// RetryAttempts and RetryBaseDelay control bounded backoff on transient
	// store errors and on index reads that may lag a recent write.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.DuplicateWeekPolicy != FirstWins {
		c.DuplicateWeekPolicy = LastWins
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	return c
}

// Service orchestrates the quest lifecycle across the record store and the
// collection store. The stores expose no multi-key transactions, so every
// multi-step operation is a saga: records are written first, the collection
// summary last, and divergence left by a partial failure is repaired on the
// next read instead of rolled back.
type Service struct {
	records     store.RecordStore
	collections store.CollectionStore
	cfg         Config
	logger      *zap.Logger
}

// NewService creates a quest lifecycle Service.
func NewService(records store.RecordStore, collections store.CollectionStore, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		records:     records,
		collections: collections,
		cfg:         cfg.withDefaults(),
		logger:      logger,
	}
}

// CreateFromSchedule allocates a fresh collection and one quest record per
// schedule entry, with empty homework content and status not_started.
//
// Write order is deliberate: all records first, the collection last. A crash
// mid-way leaves orphan records that reconciliation can rebuild a collection
// from; it can never leave a collection referencing records that were never
// written. Individual record failures are not rolled back; Created < Requested
// in the result reports the partial write.
//
// Calling this twice for the same enrollment produces two distinct
// collections; readers take the newest.
func (s *Service) CreateFromSchedule(ctx context.Context, studentID, periodID string, schedule []ScheduleEntry) (*CreationResult, error) {
	if err := validateEnrollment(studentID, periodID); err != nil {
		return nil, err
	}
	if err := validateSchedule(schedule, s.cfg.CourseWeeks); err != nil {
		return nil, err
	}
	entries := dedupeByWeek(schedule, s.cfg.DuplicateWeekPolicy)

	collectionID := uuid.NewString()
	result := &CreationResult{
		CollectionID: collectionID,
		Requested:    len(entries),
		QuestIDs:     make([]string, 0, len(entries)),
	}
	written := make([]model.QuestRecord, 0, len(entries))

	for _, e := range entries {
		rec := model.QuestRecord{
			ID:           uuid.NewString(),
			CollectionID: collectionID,
			StudentID:    studentID,
			PeriodID:     periodID,
			Week:         e.Week,
			Name:         e.Name,
			Description:  e.Description,
			Skills:       e.Skills,
			Rubric:       EncodeRubric(nil),
			Status:       model.QuestStatusNotStarted,
		}
		if err := s.putRecord(ctx, &rec); err != nil {
			s.logger.Error("quest record write failed during creation",
				zap.String("collection_id", collectionID),
				zap.Int("week", e.Week),
				zap.Error(err))
			continue
		}
		written = append(written, rec)
		result.Created++
		result.QuestIDs = append(result.QuestIDs, rec.ID)
	}

	col := &model.QuestCollection{
		ID:        collectionID,
		StudentID: studentID,
		PeriodID:  periodID,
	}
	col.SetSummaries(summarize(written))
	if err := s.putCollection(ctx, col); err != nil {
		// Records are now orphaned; the reconciliation read path rebuilds
		// the collection on next access.
		s.logger.Error("collection write failed after records",
			zap.String("collection_id", collectionID),
			zap.Int("records", result.Created),
			zap.Error(err))
		return result, fmt.Errorf("write collection %s: %w", collectionID, err)
	}

	s.logger.Info("quest collection created",
		zap.String("collection_id", collectionID),
		zap.String("student_id", studentID),
		zap.String("period_id", periodID),
		zap.Int("created", result.Created),
		zap.Int("requested", result.Requested))
	return result, nil
}

// EnrichWithHomework fills instructions and rubric into the existing records
// of the newest collection for the enrollment. A record that vanished
// out-of-band is recreated from the homework entry instead of failing the
// batch; a homework entry with no matching week is skipped with a warning.
func (s *Service) EnrichWithHomework(ctx context.Context, studentID, periodID string, homework []HomeworkEntry) (*EnrichmentResult, error) {
	if err := validateEnrollment(studentID, periodID); err != nil {
		return nil, err
	}

	col, err := s.loadOrReconcileCollection(ctx, studentID, periodID)
	if err != nil {
		return nil, err
	}
	recs, err := s.recordsByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	byWeek := indexHomeworkByWeek(homework, s.cfg.DuplicateWeekPolicy)
	matched := make(map[int]bool, len(byWeek))
	result := &EnrichmentResult{Total: len(recs)}

	for i := range recs {
		rec := &recs[i]
		hw, ok := byWeek[rec.Week]
		if !ok {
			continue
		}
		matched[rec.Week] = true
		rec.Instructions = hw.Instructions
		rec.Rubric = EncodeRubric(hw.Rubric)
		if hw.Name != "" {
			rec.Name = hw.Name
		}
		if err := s.putRecord(ctx, rec); err != nil {
			// Out-of-band drift: recreate the record for this week rather
			// than aborting the remaining weeks.
			s.logger.Warn("enrichment update failed, recreating record",
				zap.String("quest_id", rec.ID),
				zap.Int("week", rec.Week),
				zap.Error(err))
			fresh := recordFromHomework(col, hw)
			if err := s.putRecord(ctx, &fresh); err != nil {
				s.logger.Error("enrichment fallback create failed",
					zap.Int("week", rec.Week), zap.Error(err))
				continue
			}
		}
		result.Updated++
	}

	for week := range byWeek {
		if !matched[week] {
			// Schedule and homework come from the same generation pass, so
			// an unmatched week points at an upstream error. Partial success
			// is still more useful than failing the whole batch.
			s.logger.Warn("homework entry has no matching quest record",
				zap.String("collection_id", col.ID),
				zap.Int("week", week))
		}
	}

	if err := s.rebuildSummaries(ctx, col); err != nil {
		return result, err
	}
	return result, nil
}

// UpdateStatus sets a quest's status. Every value in the closed status set is
// accepted from any prior state, including moving a completed quest back; the
// state machine is caller-driven by design.
func (s *Service) UpdateStatus(ctx context.Context, questID, status string) (*model.QuestRecord, error) {
	if !model.ValidStatus(status) {
		return nil, &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown value %q", status)}
	}
	rec, err := s.getRecord(ctx, questID)
	if err != nil {
		return nil, err
	}
	rec.Status = status
	if err := s.putRecord(ctx, rec); err != nil {
		return nil, err
	}
	s.refreshSummariesFor(ctx, rec)
	return rec, nil
}

// UpdateGradeAndFeedback records a grade and feedback on a quest and forces
// its status to completed. This is the only implicit status transition.
func (s *Service) UpdateGradeAndFeedback(ctx context.Context, questID, grade, feedback string) (*model.QuestRecord, error) {
	rec, err := s.getRecord(ctx, questID)
	if err != nil {
		return nil, err
	}
	rec.Grade = &grade
	rec.Feedback = &feedback
	rec.Status = model.QuestStatusCompleted
	if err := s.putRecord(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("quest graded",
		zap.String("quest_id", questID),
		zap.String("display", FormatGrade(&grade)))
	s.refreshSummariesFor(ctx, rec)
	return rec, nil
}

// GetQuest fetches one quest record by id.
func (s *Service) GetQuest(ctx context.Context, questID string) (*model.QuestRecord, error) {
	return s.getRecord(ctx, questID)
}

// GetCollection returns the newest collection for the enrollment,
// reconstructing it from orphan records when the collection write of a
// previous creation never landed.
func (s *Service) GetCollection(ctx context.Context, studentID, periodID string) (*model.QuestCollection, error) {
	if err := validateEnrollment(studentID, periodID); err != nil {
		return nil, err
	}
	return s.loadOrReconcileCollection(ctx, studentID, periodID)
}

// ---- reconciliation ----

// loadOrReconcileCollection reads the enrollment's collection, retrying
// lagging index reads, and falls back to rebuilding it from existing quest
// records when the collection row is missing.
func (s *Service) loadOrReconcileCollection(ctx context.Context, studentID, periodID string) (*model.QuestCollection, error) {
	col, err := s.getCollection(ctx, studentID, periodID)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.reconcileCollection(ctx, studentID, periodID)
}

// reconcileCollection rebuilds a missing collection from orphan quest
// records, the repair path for a creation that wrote records but died before
// the collection write.
func (s *Service) reconcileCollection(ctx context.Context, studentID, periodID string) (*model.QuestCollection, error) {
	recs, err := s.recordsByEnrollment(ctx, studentID, periodID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}

	// Orphans from several generations may coexist; rebuild the collection
	// the most recently created record belongs to.
	collectionID := recs[0].CollectionID
	newest := recs[0].CreatedAt
	for _, r := range recs[1:] {
		if r.CreatedAt.After(newest) {
			newest = r.CreatedAt
			collectionID = r.CollectionID
		}
	}
	members := make([]model.QuestRecord, 0, len(recs))
	for _, r := range recs {
		if r.CollectionID == collectionID {
			members = append(members, r)
		}
	}

	col := &model.QuestCollection{
		ID:        collectionID,
		StudentID: studentID,
		PeriodID:  periodID,
	}
	col.SetSummaries(summarize(members))
	if err := s.putCollection(ctx, col); err != nil {
		return nil, err
	}
	s.logger.Warn("rebuilt missing quest collection from orphan records",
		zap.String("collection_id", collectionID),
		zap.String("student_id", studentID),
		zap.Int("records", len(members)))
	return col, nil
}

// rebuildSummaries refreshes the collection's member summaries from a fresh
// read of its records. A fresh read rather than an in-memory view keeps this
// step idempotent and narrows the lost-update window between concurrent
// regenerations.
func (s *Service) rebuildSummaries(ctx context.Context, col *model.QuestCollection) error {
	recs, err := s.recordsByCollection(ctx, col.ID)
	if err != nil {
		return err
	}
	col.SetSummaries(summarize(recs))
	return s.putCollection(ctx, col)
}

// refreshSummariesFor best-effort refreshes the summary cache after a single
// record write. The records stay authoritative, so a failure here only
// leaves the summary stale until the next rebuild.
func (s *Service) refreshSummariesFor(ctx context.Context, rec *model.QuestRecord) {
	col, err := s.getCollection(ctx, rec.StudentID, rec.PeriodID)
	if err != nil || col.ID != rec.CollectionID {
		return
	}
	if err := s.rebuildSummaries(ctx, col); err != nil {
		s.logger.Warn("summary refresh failed",
			zap.String("collection_id", col.ID), zap.Error(err))
	}
}

// ---- store access with bounded backoff ----

func (s *Service) putRecord(ctx context.Context, rec *model.QuestRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.withRetry(ctx, "put record", func() error {
		return s.records.PutRecord(ctx, rec)
	})
}

func (s *Service) getRecord(ctx context.Context, questID string) (*model.QuestRecord, error) {
	var rec *model.QuestRecord
	err := s.withRetry(ctx, "get record", func() error {
		var e error
		rec, e = s.records.GetRecord(ctx, questID)
		return e
	})
	return rec, err
}

func (s *Service) recordsByCollection(ctx context.Context, collectionID string) ([]model.QuestRecord, error) {
	var recs []model.QuestRecord
	err := s.withRetry(ctx, "records by collection", func() error {
		var e error
		recs, e = s.records.RecordsByCollection(ctx, collectionID)
		return e
	})
	return recs, err
}

func (s *Service) recordsByEnrollment(ctx context.Context, studentID, periodID string) ([]model.QuestRecord, error) {
	var recs []model.QuestRecord
	err := s.withRetry(ctx, "records by enrollment", func() error {
		var e error
		recs, e = s.records.RecordsByEnrollment(ctx, studentID, periodID)
		return e
	})
	return recs, err
}

func (s *Service) putCollection(ctx context.Context, col *model.QuestCollection) error {
	return s.withRetry(ctx, "put collection", func() error {
		return s.collections.PutCollection(ctx, col)
	})
}

// getCollection retries NotFound as well as transient errors: the
// enrollment index may not yet reflect a collection written moments ago.
func (s *Service) getCollection(ctx context.Context, studentID, periodID string) (*model.QuestCollection, error) {
	var col *model.QuestCollection
	delay := s.cfg.RetryBaseDelay
	var err error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if werr := sleepCtx(ctx, delay); werr != nil {
				return nil, werr
			}
			delay *= 2
		}
		col, err = s.collections.GetCollection(ctx, studentID, periodID)
		if err == nil {
			return col, nil
		}
		if !errors.Is(err, store.ErrNotFound) && !store.IsTransient(err) {
			return nil, err
		}
	}
	return nil, err
}

// withRetry runs fn, retrying transient store errors with bounded
// exponential backoff. Non-transient errors return immediately.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := s.cfg.RetryBaseDelay
	var err error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if werr := sleepCtx(ctx, delay); werr != nil {
				return werr
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if !store.IsTransient(err) {
			return err
		}
		s.logger.Warn("transient store error",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ---- helpers ----

func validateEnrollment(studentID, periodID string) error {
	if studentID == "" {
		return &ValidationError{Field: "student_id", Msg: "empty"}
	}
	if periodID == "" {
		return &ValidationError{Field: "period_id", Msg: "empty"}
	}
	return nil
}

func summarize(recs []model.QuestRecord) []model.MemberSummary {
	out := make([]model.MemberSummary, len(recs))
	for i, r := range recs {
		out[i] = model.MemberSummary{
			QuestID: r.ID,
			Week:    r.Week,
			Name:    r.Name,
			Skills:  r.Skills,
			Status:  r.Status,
		}
	}
	return out
}

func recordFromHomework(col *model.QuestCollection, hw HomeworkEntry) model.QuestRecord {
	return model.QuestRecord{
		ID:           uuid.NewString(),
		CollectionID: col.ID,
		StudentID:    col.StudentID,
		PeriodID:     col.PeriodID,
		Week:         hw.Week,
		Name:         hw.Name,
		Instructions: hw.Instructions,
		Rubric:       EncodeRubric(hw.Rubric),
		Status:       model.QuestStatusNotStarted,
	}
}
