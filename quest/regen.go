package quest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/skillquest/server/model"
	"github.com/skillquest/server/store"
	"go.uber.org/zap"
)

// UpdatePreservingCompleted merges a regenerated schedule and homework into
// the enrollment's existing quests without destroying student work.
//
// Per week, the merge is tri-state:
//   - no existing record        → create a new one from the fresh content
//   - graded or started record  → preserve content, refresh skills only
//   - untouched record          → overwrite content in place
//
// Graded and in-progress work is irrecoverable human effort and must never
// be invalidated by curriculum regeneration; not-started work should track
// the latest curriculum; missing weeks are backfilled so the course arc
// stays populated.
func (s *Service) UpdatePreservingCompleted(ctx context.Context, studentID, periodID string, schedule []ScheduleEntry, homework []HomeworkEntry) (*UpdateResult, error) {
	if err := validateEnrollment(studentID, periodID); err != nil {
		return nil, err
	}
	if err := validateSchedule(schedule, s.cfg.CourseWeeks); err != nil {
		return nil, err
	}

	existing, err := s.recordsByEnrollment(ctx, studentID, periodID)
	if err != nil {
		return nil, err
	}

	col, err := s.getCollection(ctx, studentID, periodID)
	switch {
	case err == nil:
		// existing collection, fall through to the merge
	case errors.Is(err, store.ErrNotFound) && len(existing) == 0:
		// Cold start: nothing to merge against.
		return s.createCold(ctx, studentID, periodID, schedule, homework)
	case errors.Is(err, store.ErrNotFound):
		// Orphan records from a half-finished creation: rebuild the
		// collection first, then merge into it.
		col, err = s.reconcileCollection(ctx, studentID, periodID)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	byWeek := make(map[int]*model.QuestRecord, len(existing))
	for i := range existing {
		if existing[i].CollectionID == col.ID {
			byWeek[existing[i].Week] = &existing[i]
		}
	}
	entries := dedupeByWeek(schedule, s.cfg.DuplicateWeekPolicy)
	hwByWeek := indexHomeworkByWeek(homework, s.cfg.DuplicateWeekPolicy)

	result := &UpdateResult{}
	for _, e := range entries {
		rec, exists := byWeek[e.Week]
		hw := hwByWeek[e.Week]

		switch {
		case !exists:
			fresh := model.QuestRecord{
				ID:           uuid.NewString(),
				CollectionID: col.ID,
				StudentID:    studentID,
				PeriodID:     periodID,
				Week:         e.Week,
				Name:         e.Name,
				Description:  e.Description,
				Skills:       e.Skills,
				Instructions: hw.Instructions,
				Rubric:       EncodeRubric(hw.Rubric),
				Status:       model.QuestStatusNotStarted,
			}
			if err := s.putRecord(ctx, &fresh); err != nil {
				s.logger.Error("backfill create failed",
					zap.Int("week", e.Week), zap.Error(err))
				continue
			}
			result.Created++

		case rec.Graded() || rec.Status != model.QuestStatusNotStarted:
			// Preserve content; only non-semantic metadata may refresh.
			if rec.Skills != e.Skills {
				rec.Skills = e.Skills
				if err := s.putRecord(ctx, rec); err != nil {
					s.logger.Warn("skills refresh failed on preserved quest",
						zap.String("quest_id", rec.ID), zap.Error(err))
				}
			}
			result.Preserved++

		default:
			rec.Name = e.Name
			rec.Description = e.Description
			rec.Skills = e.Skills
			rec.Instructions = hw.Instructions
			rec.Rubric = EncodeRubric(hw.Rubric)
			if err := s.putRecord(ctx, rec); err != nil {
				s.logger.Error("in-place update failed",
					zap.String("quest_id", rec.ID),
					zap.Int("week", e.Week), zap.Error(err))
				continue
			}
			result.Updated++
		}
	}
	result.Total = result.Preserved + result.Updated + result.Created

	if err := s.rebuildSummaries(ctx, col); err != nil {
		return result, err
	}

	s.logger.Info("quest collection regenerated",
		zap.String("collection_id", col.ID),
		zap.String("student_id", studentID),
		zap.Int("preserved", result.Preserved),
		zap.Int("updated", result.Updated),
		zap.Int("created", result.Created))
	return result, nil
}

// createCold handles the cold-start path of a regeneration request: no
// records and no collection exist, so creation plus enrichment covers it.
func (s *Service) createCold(ctx context.Context, studentID, periodID string, schedule []ScheduleEntry, homework []HomeworkEntry) (*UpdateResult, error) {
	created, err := s.CreateFromSchedule(ctx, studentID, periodID, schedule)
	if err != nil {
		return nil, err
	}
	if _, err := s.EnrichWithHomework(ctx, studentID, periodID, homework); err != nil {
		return nil, err
	}
	return &UpdateResult{Created: created.Created, Total: created.Created}, nil
}
