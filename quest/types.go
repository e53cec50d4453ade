// Package quest implements the quest lifecycle: creation from a generated
// schedule, homework enrichment, status and grade updates, and regeneration
// that preserves student work. It keeps the per-quest records and the
// per-enrollment collection summary consistent without multi-key
// transactions, reconciling divergence on read.
package quest

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Rubric maps a criterion name to its six-level (0-5) scale descriptions.
type Rubric map[string]map[string]string

// ScheduleEntry is one week of a generated curriculum schedule.
type ScheduleEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Skills      string `json:"skills"`
	Week        int    `json:"week"`
}

// HomeworkEntry carries generated homework content for one week.
type HomeworkEntry struct {
	Name         string `json:"name"`
	Week         int    `json:"week"`
	Instructions string `json:"instructions"`
	Rubric       Rubric `json:"rubric"`
}

// EncodeRubric serializes a rubric for the JSON column. A nil rubric encodes
// as an empty object so the column is never SQL NULL.
func EncodeRubric(r Rubric) datatypes.JSON {
	if r == nil {
		r = Rubric{}
	}
	raw, _ := json.Marshal(r)
	return datatypes.JSON(raw)
}

// DuplicateWeekPolicy resolves duplicate week values within one incoming
// schedule. The upstream agents should not produce duplicates; when they do,
// the chosen policy applies uniformly rather than failing the batch.
type DuplicateWeekPolicy string

const (
	FirstWins DuplicateWeekPolicy = "first_wins"
	LastWins  DuplicateWeekPolicy = "last_wins"
)

// ValidationError rejects malformed input before any write happens.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("quest: invalid %s: %s", e.Field, e.Msg)
}

// CreationResult reports what CreateFromSchedule wrote. Created < Requested
// signals a partial write that the next read path will reconcile.
type CreationResult struct {
	CollectionID string   `json:"collection_id"`
	Requested    int      `json:"requested"`
	Created      int      `json:"created"`
	QuestIDs     []string `json:"quest_ids"`
}

// EnrichmentResult reports what EnrichWithHomework changed.
type EnrichmentResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// UpdateResult reports the outcome of a preserving regeneration.
type UpdateResult struct {
	Preserved int `json:"preserved"`
	Updated   int `json:"updated"`
	Created   int `json:"created"`
	Total     int `json:"total"`
}

// dedupeByWeek collapses duplicate weeks in a schedule according to the
// policy, keeping ascending week order of first appearance.
func dedupeByWeek(entries []ScheduleEntry, policy DuplicateWeekPolicy) []ScheduleEntry {
	byWeek := make(map[int]int, len(entries)) // week → index into out
	out := make([]ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		if i, seen := byWeek[e.Week]; seen {
			if policy == LastWins {
				out[i] = e
			}
			continue
		}
		byWeek[e.Week] = len(out)
		out = append(out, e)
	}
	return out
}

// indexHomeworkByWeek indexes homework entries by week with the same
// duplicate policy as schedules.
func indexHomeworkByWeek(entries []HomeworkEntry, policy DuplicateWeekPolicy) map[int]HomeworkEntry {
	idx := make(map[int]HomeworkEntry, len(entries))
	for _, e := range entries {
		if _, seen := idx[e.Week]; seen && policy == FirstWins {
			continue
		}
		idx[e.Week] = e
	}
	return idx
}

// validateSchedule rejects schedules that must never reach a write:
// non-positive weeks, weeks beyond the course length, empty schedules.
func validateSchedule(entries []ScheduleEntry, courseWeeks int) error {
	if len(entries) == 0 {
		return &ValidationError{Field: "schedule", Msg: "empty"}
	}
	for _, e := range entries {
		if e.Week < 1 {
			return &ValidationError{Field: "week", Msg: fmt.Sprintf("must be positive, got %d", e.Week)}
		}
		if courseWeeks > 0 && e.Week > courseWeeks {
			return &ValidationError{Field: "week", Msg: fmt.Sprintf("%d exceeds course length %d", e.Week, courseWeeks)}
		}
	}
	return nil
}
