package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// QuestStatus is the completion state of a quest.
type QuestStatus = string

const (
	QuestStatusNotStarted QuestStatus = "not_started"
	QuestStatusInProgress QuestStatus = "in_progress"
	QuestStatusCompleted  QuestStatus = "completed"
)

// ValidStatus reports whether s belongs to the closed status set.
func ValidStatus(s string) bool {
	switch s {
	case QuestStatusNotStarted, QuestStatusInProgress, QuestStatusCompleted:
		return true
	}
	return false
}

// QuestRecord is the authoritative per-quest entity: one week of personalized
// homework for one student in one period. Instructions and rubric stay empty
// until homework enrichment runs.
type QuestRecord struct {
	ID           string         `gorm:"primaryKey;size:36" json:"quest_id"`
	CollectionID string         `gorm:"index:idx_quest_collection;size:36;not null" json:"collection_id"`
	StudentID    string         `gorm:"index:idx_quest_enrollment;size:64;not null" json:"student_id"`
	PeriodID     string         `gorm:"index:idx_quest_enrollment;size:64;not null" json:"period_id"`
	Week         int            `gorm:"not null" json:"week"`
	Name         string         `gorm:"size:255" json:"name"`
	Description  string         `gorm:"type:text" json:"description"`
	Skills       string         `gorm:"size:255" json:"skills"`
	Instructions string         `gorm:"type:text" json:"instructions"`
	Rubric       datatypes.JSON `json:"rubric"` // {"criterion": {"0": "...", ..., "5": "..."}}
	Status       string         `gorm:"size:16;default:not_started" json:"status"`
	Grade        *string        `gorm:"type:text" json:"grade"` // legacy scalar or JSON {"detailed_grade":..,"overall_score":..}
	Feedback     *string        `gorm:"type:text" json:"feedback"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"last_updated_at"`
}

// Graded reports whether any grade has been recorded, legacy or structured.
func (q *QuestRecord) Graded() bool {
	return q.Grade != nil && *q.Grade != ""
}

// Validate rejects a record that must never reach a store write.
func (q *QuestRecord) Validate() error {
	if q.Week < 1 {
		return fmt.Errorf("quest week must be positive, got %d", q.Week)
	}
	if !ValidStatus(q.Status) {
		return fmt.Errorf("unknown quest status %q", q.Status)
	}
	return nil
}
