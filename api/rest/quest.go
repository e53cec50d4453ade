package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skillquest/server/api/sse"
	"github.com/skillquest/server/audit"
	"github.com/skillquest/server/cache"
	mw "github.com/skillquest/server/middleware"
	"github.com/skillquest/server/model"
	"github.com/skillquest/server/quest"
	"github.com/skillquest/server/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuestHandler handles quest lifecycle REST endpoints.
type QuestHandler struct {
	db            *gorm.DB
	svc           *quest.Service
	gen           *quest.Generator
	grader        quest.Grader
	cache         cache.Cache
	events        *QuestEvents
	audit         *audit.Service
	collectionTTL time.Duration
	logger        *zap.Logger
}

// QuestEvents publishes per-student lifecycle events; nil disables publishing.
type QuestEvents struct {
	PubSub cache.PubSub
}

// Publish sends one event onto the student's channel, best-effort.
func (e *QuestEvents) Publish(ctx context.Context, studentID, event string, detail interface{}) {
	if e == nil || e.PubSub == nil {
		return
	}
	payload, _ := json.Marshal(gin.H{"event": event, "detail": detail})
	_ = e.PubSub.Publish(ctx, sse.QuestChannel(studentID), string(payload))
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(db *gorm.DB, svc *quest.Service, gen *quest.Generator, grader quest.Grader,
	c cache.Cache, events *QuestEvents, auditSvc *audit.Service, collectionTTL time.Duration, logger *zap.Logger) *QuestHandler {
	if collectionTTL <= 0 {
		collectionTTL = 30 * time.Second
	}
	return &QuestHandler{
		db: db, svc: svc, gen: gen, grader: grader,
		cache: c, events: events, audit: auditSvc,
		collectionTTL: collectionTTL, logger: logger,
	}
}

// studentIDForAccount resolves the opaque student id of the logged-in account.
func (h *QuestHandler) studentIDForAccount(c *gin.Context) string {
	var acc model.Account
	if err := h.db.First(&acc, mw.GetAccountID(c)).Error; err != nil {
		return ""
	}
	return acc.StudentID
}

type generateRequest struct {
	PeriodID    string `json:"period_id" binding:"required,max=64"`
	Subject     string `json:"subject" binding:"required,max=128"`
	Description string `json:"description" binding:"max=2000"`
	Weeks       int    `json:"weeks" binding:"omitempty,min=1,max=52"`
	Name        string `json:"name" binding:"max=128"`
	GradeLevel  string `json:"grade_level" binding:"max=32"`
	Interests   string `json:"interests" binding:"max=512"`
}

// Generate handles POST /api/quests/generate.
// It runs the full cold-start pipeline: schedule agent, homework agent per
// week, then creation and enrichment.
func (h *QuestHandler) Generate(c *gin.Context) {
	studentID := h.studentIDForAccount(c)
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no student profile"})
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	release, ok := h.lockEnrollment(c, studentID, req.PeriodID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "generation already in progress"})
		return
	}
	defer release()

	start := time.Now()
	created, enriched, err := h.gen.GenerateForEnrollment(c.Request.Context(),
		quest.StudentProfile{StudentID: studentID, Name: req.Name, GradeLevel: req.GradeLevel, Interests: req.Interests},
		quest.CourseContext{PeriodID: req.PeriodID, Subject: req.Subject, Description: req.Description, Weeks: req.Weeks},
	)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCollection(c, studentID, req.PeriodID)
	h.audit.Log(audit.Entry{
		TraceID:      mw.GetTraceID(c),
		StudentID:    studentID,
		PeriodID:     req.PeriodID,
		CollectionID: created.CollectionID,
		Action:       "quests_generated",
		Detail:       gin.H{"created": created.Created, "enriched": enriched.Updated},
		IP:           c.ClientIP(),
		DurationMs:   int(time.Since(start).Milliseconds()),
	})
	h.events.Publish(c.Request.Context(), studentID, "quests_generated",
		gin.H{"collection_id": created.CollectionID, "created": created.Created})

	c.JSON(http.StatusCreated, gin.H{"creation": created, "enrichment": enriched})
}

// Regenerate handles POST /api/quests/regenerate.
// Fresh schedule and homework are merged through the preserving update, so
// graded and in-progress quests keep their content.
func (h *QuestHandler) Regenerate(c *gin.Context) {
	studentID := h.studentIDForAccount(c)
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no student profile"})
		return
	}
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	release, ok := h.lockEnrollment(c, studentID, req.PeriodID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "generation already in progress"})
		return
	}
	defer release()

	start := time.Now()
	result, err := h.gen.RegenerateForEnrollment(c.Request.Context(),
		quest.StudentProfile{StudentID: studentID, Name: req.Name, GradeLevel: req.GradeLevel, Interests: req.Interests},
		quest.CourseContext{PeriodID: req.PeriodID, Subject: req.Subject, Description: req.Description, Weeks: req.Weeks},
	)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCollection(c, studentID, req.PeriodID)
	h.audit.Log(audit.Entry{
		TraceID:    mw.GetTraceID(c),
		StudentID:  studentID,
		PeriodID:   req.PeriodID,
		Action:     "quests_regenerated",
		Detail:     result,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	h.events.Publish(c.Request.Context(), studentID, "quests_regenerated", result)

	c.JSON(http.StatusOK, result)
}

// ListByPeriod handles GET /api/periods/:pid/quests.
// The collection (with its member summaries) is served from a short-TTL
// cache keyed by enrollment; any lifecycle write invalidates it.
func (h *QuestHandler) ListByPeriod(c *gin.Context) {
	studentID := h.studentIDForAccount(c)
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no student profile"})
		return
	}
	periodID := c.Param("pid")

	cacheKey := collectionCacheKey(studentID, periodID)
	cacheCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if cached, err := h.cache.Get(cacheCtx, cacheKey); err == nil {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	col, err := h.svc.GetCollection(c.Request.Context(), studentID, periodID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	body, _ := json.Marshal(gin.H{
		"collection_id":    col.ID,
		"student_id":       col.StudentID,
		"period_id":        col.PeriodID,
		"member_summaries": col.Summaries(),
		"created_at":       col.CreatedAt,
		"last_updated_at":  col.UpdatedAt,
	})
	_ = h.cache.Set(cacheCtx, cacheKey, string(body), h.collectionTTL)
	c.Data(http.StatusOK, "application/json", body)
}

// Detail handles GET /api/quests/:id.
// The grade is returned both raw and decoded for display.
func (h *QuestHandler) Detail(c *gin.Context) {
	rec, err := h.svc.GetQuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec.StudentID != h.studentIDForAccount(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your quest"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quest": rec,
		"grade": quest.ParseGrade(rec.Grade),
	})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /api/quests/:id/status.
func (h *QuestHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID := h.studentIDForAccount(c)

	rec, err := h.svc.GetQuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec.StudentID != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your quest"})
		return
	}

	rec, err = h.svc.UpdateStatus(c.Request.Context(), rec.ID, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCollection(c, rec.StudentID, rec.PeriodID)
	h.audit.Log(audit.Entry{
		TraceID:      mw.GetTraceID(c),
		StudentID:    rec.StudentID,
		PeriodID:     rec.PeriodID,
		CollectionID: rec.CollectionID,
		Action:       "status_updated",
		Detail:       gin.H{"quest_id": rec.ID, "status": rec.Status},
		IP:           c.ClientIP(),
	})
	c.JSON(http.StatusOK, rec)
}

type submitRequest struct {
	Submission string `json:"submission" binding:"required,max=65536"`
}

// Submit handles POST /api/quests/:id/submit.
// The grading agent scores the submission against the quest's rubric; the
// result is stored as a structured grade and the quest is forced completed.
func (h *QuestHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	studentID := h.studentIDForAccount(c)

	rec, err := h.svc.GetQuest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rec.StudentID != studentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your quest"})
		return
	}

	var rubric quest.Rubric
	_ = json.Unmarshal(rec.Rubric, &rubric)

	start := time.Now()
	result, err := h.grader.GradeSubmission(c.Request.Context(), quest.GradeRequest{
		Instructions: rec.Instructions,
		Rubric:       rubric,
		Submission:   req.Submission,
	})
	if err != nil {
		h.logger.Error("grading agent failed",
			zap.String("quest_id", rec.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "grading failed"})
		return
	}

	encoded := quest.EncodeGrade(result.DetailedGrade, result.OverallScore)
	rec, err = h.svc.UpdateGradeAndFeedback(c.Request.Context(), rec.ID, encoded, result.Feedback)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.invalidateCollection(c, rec.StudentID, rec.PeriodID)
	h.audit.Log(audit.Entry{
		TraceID:      mw.GetTraceID(c),
		StudentID:    rec.StudentID,
		PeriodID:     rec.PeriodID,
		CollectionID: rec.CollectionID,
		Action:       "quest_graded",
		Detail:       gin.H{"quest_id": rec.ID, "overall_score": result.OverallScore},
		IP:           c.ClientIP(),
		DurationMs:   int(time.Since(start).Milliseconds()),
	})
	h.events.Publish(c.Request.Context(), rec.StudentID, "quest_graded",
		gin.H{"quest_id": rec.ID, "overall_score": result.OverallScore})

	c.JSON(http.StatusOK, gin.H{
		"quest": rec,
		"grade": quest.ParseGrade(rec.Grade),
	})
}

// generationLockTTL caps how long one enrollment's generation lock is held.
// It outlives the slowest agent pipeline; an owner that dies mid-run frees
// the enrollment when the TTL lapses.
const generationLockTTL = 2 * time.Minute

// lockEnrollment takes the per-enrollment single-flight lock. Generation and
// regeneration both run the full agent pipeline and merge into the same
// collection, so concurrent runs for one enrollment would race each other's
// writes; the second caller is turned away instead.
func (h *QuestHandler) lockEnrollment(c *gin.Context, studentID, periodID string) (func(), bool) {
	key := "generation_lock:" + studentID + ":" + periodID
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ok, err := h.cache.SetNX(ctx, key, "1", generationLockTTL)
	if err != nil {
		h.logger.Warn("generation lock unavailable, proceeding without it",
			zap.String("student_id", studentID), zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		relCtx, relCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer relCancel()
		_ = h.cache.Del(relCtx, key)
	}, true
}

func (h *QuestHandler) invalidateCollection(c *gin.Context, studentID, periodID string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, collectionCacheKey(studentID, periodID))
}

func collectionCacheKey(studentID, periodID string) string {
	return "collection:" + studentID + ":" + periodID
}

// writeError maps lifecycle errors onto HTTP statuses. Validation failures
// and missing entities are caller errors; everything else is internal.
func (h *QuestHandler) writeError(c *gin.Context, err error) {
	var ve *quest.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		h.logger.Error("quest operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
