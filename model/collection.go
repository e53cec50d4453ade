package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// MemberSummary is a lightweight per-week view of one quest, cached on the
// owning collection. The QuestRecord rows stay authoritative for content;
// summaries exist so the student dashboard needs a single read.
type MemberSummary struct {
	QuestID string `json:"quest_id"`
	Week    int    `json:"week"`
	Name    string `json:"name"`
	Skills  string `json:"skills"`
	Status  string `json:"status"`
}

// QuestCollection groups all quests generated for one (student, period)
// enrollment. Repeated cold-start generations may produce several collections
// for the same enrollment; readers take the most recently created one.
type QuestCollection struct {
	ID              string         `gorm:"primaryKey;size:36" json:"collection_id"`
	StudentID       string         `gorm:"index:idx_collection_enrollment;size:64;not null" json:"student_id"`
	PeriodID        string         `gorm:"index:idx_collection_enrollment;size:64;not null" json:"period_id"`
	MemberSummaries datatypes.JSON `json:"member_summaries"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"last_updated_at"`
}

// Summaries decodes the cached member summaries. A corrupt or empty column
// yields an empty slice; the authoritative records are always recoverable by
// querying quests on collection_id.
func (c *QuestCollection) Summaries() []MemberSummary {
	var out []MemberSummary
	if len(c.MemberSummaries) == 0 {
		return out
	}
	_ = json.Unmarshal(c.MemberSummaries, &out)
	return out
}

// SetSummaries encodes and stores the member summaries.
func (c *QuestCollection) SetSummaries(s []MemberSummary) {
	raw, _ := json.Marshal(s)
	c.MemberSummaries = datatypes.JSON(raw)
}
