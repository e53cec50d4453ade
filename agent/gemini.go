// Package agent provides the LLM-backed collaborators the quest lifecycle
// consumes: schedule generation, homework generation, and grading. All
// implementations return the normalized quest types; raw model output never
// leaks past this package.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skillquest/server/quest"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Gemini implements quest.ScheduleGenerator, quest.HomeworkGenerator and
// quest.Grader against the Gemini API. Credentials come from the standard
// GOOGLE_API_KEY / application-default-credentials environment.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGemini creates a Gemini agent client. Every model call is bounded by
// timeout so a stalled upstream can never hang a request.
func NewGemini(ctx context.Context, model string, timeout time.Duration, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{client: client, model: model, timeout: timeout, logger: logger}, nil
}

// GenerateSchedule asks the model for a full-course weekly schedule.
func (g *Gemini) GenerateSchedule(ctx context.Context, profile quest.StudentProfile, course quest.CourseContext) ([]quest.ScheduleEntry, error) {
	var entries []quest.ScheduleEntry
	if err := g.generateJSON(ctx, schedulePrompt(profile, course), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GenerateHomework asks the model for instructions and a rubric for one quest.
func (g *Gemini) GenerateHomework(ctx context.Context, stub quest.QuestStub) (*quest.HomeworkContent, error) {
	var content quest.HomeworkContent
	if err := g.generateJSON(ctx, homeworkPrompt(stub), &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// GradeSubmission asks the model to score a submission against the rubric.
func (g *Gemini) GradeSubmission(ctx context.Context, req quest.GradeRequest) (*quest.GradeResult, error) {
	var result quest.GradeResult
	if err := g.generateJSON(ctx, gradePrompt(req), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// generateJSON sends a prompt and decodes the model's JSON reply into out.
// The model occasionally wraps its answer in a markdown code fence; strip it
// before decoding.
func (g *Gemini) generateJSON(ctx context.Context, prompt string, out interface{}) error {
	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	result, err := g.client.Models.GenerateContent(callCtx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return fmt.Errorf("agent: generate content: %w", err)
	}

	raw := result.Text()
	if raw == "" {
		return errors.New("agent: empty model response")
	}

	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.Trim(clean, "`")

	if err := json.Unmarshal([]byte(clean), out); err != nil {
		g.logger.Error("agent response is not valid JSON",
			zap.String("model", g.model),
			zap.Int("response_len", len(clean)),
			zap.Error(err))
		return fmt.Errorf("agent: decode response: %w", err)
	}
	return nil
}

// callContext derives the per-call context. The caller's deadline still
// applies when it is tighter than the configured timeout.
func (g *Gemini) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
