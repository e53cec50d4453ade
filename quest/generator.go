package quest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StudentProfile describes the student a schedule is generated for.
type StudentProfile struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	GradeLevel string `json:"grade_level"`
	Interests  string `json:"interests"`
}

// CourseContext describes the course a schedule is generated against.
type CourseContext struct {
	PeriodID    string `json:"period_id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Weeks       int    `json:"weeks"`
}

// QuestStub is the input to per-quest homework generation.
type QuestStub struct {
	Name       string `json:"name"`
	Skills     string `json:"skills"`
	Week       int    `json:"week"`
	Subject    string `json:"subject"`
	GradeLevel string `json:"grade_level"`
}

// HomeworkContent is what the homework agent produces for one quest.
type HomeworkContent struct {
	Instructions string `json:"instructions"`
	Rubric       Rubric `json:"rubric"`
}

// GradeRequest is the input to submission grading.
type GradeRequest struct {
	Instructions string `json:"instructions"`
	Rubric       Rubric `json:"rubric"`
	Submission   string `json:"submission"`
}

// GradeResult is what the grading agent produces.
type GradeResult struct {
	DetailedGrade map[string]interface{} `json:"detailed_grade"`
	OverallScore  string                 `json:"overall_score"`
	Feedback      string                 `json:"feedback"`
}

// ScheduleGenerator produces an ordered weekly schedule for a student.
type ScheduleGenerator interface {
	GenerateSchedule(ctx context.Context, profile StudentProfile, course CourseContext) ([]ScheduleEntry, error)
}

// HomeworkGenerator produces homework content for one quest stub.
type HomeworkGenerator interface {
	GenerateHomework(ctx context.Context, stub QuestStub) (*HomeworkContent, error)
}

// Grader scores one submission against a quest's rubric.
type Grader interface {
	GradeSubmission(ctx context.Context, req GradeRequest) (*GradeResult, error)
}

// Generator drives the agent collaborators and feeds their output through
// the lifecycle Service. Agent responses are normalized into ScheduleEntry /
// HomeworkEntry at this boundary; nothing downstream branches on raw agent
// output shapes.
type Generator struct {
	schedules ScheduleGenerator
	homework  HomeworkGenerator
	svc       *Service
	logger    *zap.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(schedules ScheduleGenerator, homework HomeworkGenerator, svc *Service, logger *zap.Logger) *Generator {
	return &Generator{schedules: schedules, homework: homework, svc: svc, logger: logger}
}

// GenerateForEnrollment runs the cold-start pipeline: schedule agent once,
// homework agent per week, then creation plus enrichment.
func (g *Generator) GenerateForEnrollment(ctx context.Context, profile StudentProfile, course CourseContext) (*CreationResult, *EnrichmentResult, error) {
	schedule, homework, err := g.produce(ctx, profile, course)
	if err != nil {
		return nil, nil, err
	}
	created, err := g.svc.CreateFromSchedule(ctx, profile.StudentID, course.PeriodID, schedule)
	if err != nil {
		return created, nil, err
	}
	enriched, err := g.svc.EnrichWithHomework(ctx, profile.StudentID, course.PeriodID, homework)
	if err != nil {
		return created, enriched, err
	}
	return created, enriched, nil
}

// RegenerateForEnrollment runs the same pipeline but merges through
// UpdatePreservingCompleted so graded and in-progress work survives.
func (g *Generator) RegenerateForEnrollment(ctx context.Context, profile StudentProfile, course CourseContext) (*UpdateResult, error) {
	schedule, homework, err := g.produce(ctx, profile, course)
	if err != nil {
		return nil, err
	}
	return g.svc.UpdatePreservingCompleted(ctx, profile.StudentID, course.PeriodID, schedule, homework)
}

// produce generates the schedule and per-week homework. A schedule failure
// aborts; a homework failure for one week is logged and that week proceeds
// without content, to be filled by a later enrichment pass. One bad agent
// call must not sink the rest of the batch.
func (g *Generator) produce(ctx context.Context, profile StudentProfile, course CourseContext) ([]ScheduleEntry, []HomeworkEntry, error) {
	schedule, err := g.schedules.GenerateSchedule(ctx, profile, course)
	if err != nil {
		return nil, nil, fmt.Errorf("generate schedule: %w", err)
	}

	homework := make([]HomeworkEntry, 0, len(schedule))
	for _, e := range schedule {
		content, err := g.homework.GenerateHomework(ctx, QuestStub{
			Name:       e.Name,
			Skills:     e.Skills,
			Week:       e.Week,
			Subject:    course.Subject,
			GradeLevel: profile.GradeLevel,
		})
		if err != nil {
			g.logger.Warn("homework generation failed, skipping week",
				zap.Int("week", e.Week),
				zap.String("name", e.Name),
				zap.Error(err))
			continue
		}
		homework = append(homework, HomeworkEntry{
			Name:         e.Name,
			Week:         e.Week,
			Instructions: content.Instructions,
			Rubric:       content.Rubric,
		})
	}
	return schedule, homework, nil
}
