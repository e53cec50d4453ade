package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records lifecycle operations against quest data: generation,
// enrichment, regeneration, status changes, grading.
type AuditLog struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID      string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	StudentID    string         `gorm:"index:idx_audit_student;size:64" json:"student_id"`
	PeriodID     string         `gorm:"size:64" json:"period_id"`
	CollectionID string         `gorm:"size:36" json:"collection_id"`
	Action       string         `gorm:"size:64;not null" json:"action"`
	Detail       datatypes.JSON `json:"detail"`
	Error        string         `gorm:"type:text" json:"error"`
	IP           string         `gorm:"size:45" json:"ip"`
	DurationMs   int            `json:"duration_ms"`
	CreatedAt    time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
