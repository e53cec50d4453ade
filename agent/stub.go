package agent

import (
	"context"
	"fmt"

	"github.com/skillquest/server/quest"
)

// Stub is a deterministic agent for local development and tests: no network,
// no credentials, stable output for a given input.
type Stub struct{}

// NewStub creates a Stub agent.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) GenerateSchedule(_ context.Context, _ quest.StudentProfile, course quest.CourseContext) ([]quest.ScheduleEntry, error) {
	weeks := course.Weeks
	if weeks <= 0 {
		weeks = 18
	}
	entries := make([]quest.ScheduleEntry, weeks)
	for i := range entries {
		week := i + 1
		entries[i] = quest.ScheduleEntry{
			Name:        fmt.Sprintf("%s quest %d", course.Subject, week),
			Description: fmt.Sprintf("Week %d of %s", week, course.Subject),
			Skills:      fmt.Sprintf("%s-skill-%d", course.Subject, week),
			Week:        week,
		}
	}
	return entries, nil
}

func (s *Stub) GenerateHomework(_ context.Context, stub quest.QuestStub) (*quest.HomeworkContent, error) {
	levels := map[string]string{}
	for lvl := 0; lvl <= 5; lvl++ {
		levels[fmt.Sprintf("%d", lvl)] = fmt.Sprintf("level %d work on %s", lvl, stub.Skills)
	}
	return &quest.HomeworkContent{
		Instructions: fmt.Sprintf("Practice %s for week %d.", stub.Skills, stub.Week),
		Rubric:       quest.Rubric{"completeness": levels},
	}, nil
}

func (s *Stub) GradeSubmission(_ context.Context, req quest.GradeRequest) (*quest.GradeResult, error) {
	detailed := map[string]interface{}{}
	for criterion := range req.Rubric {
		detailed[criterion] = map[string]interface{}{"score": 4, "comment": "solid work"}
	}
	return &quest.GradeResult{
		DetailedGrade: detailed,
		OverallScore:  "B+",
		Feedback:      "Good effort; review the tricky parts.",
	}, nil
}
