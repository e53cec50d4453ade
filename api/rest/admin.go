package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skillquest/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, logger: logger}
}

// Metrics returns platform-level counts.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	var accounts, collections, quests, graded int64
	h.db.Model(&model.Account{}).Count(&accounts)
	h.db.Model(&model.QuestCollection{}).Count(&collections)
	h.db.Model(&model.QuestRecord{}).Count(&quests)
	h.db.Model(&model.QuestRecord{}).Where("grade IS NOT NULL").Count(&graded)
	c.JSON(http.StatusOK, gin.H{
		"accounts":      accounts,
		"collections":   collections,
		"quests":        quests,
		"graded_quests": graded,
	})
}

// ListAccounts returns a page of registered accounts.
// GET /api/admin/accounts?offset=0&limit=50
func (h *AdminHandler) ListAccounts(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var accounts []model.Account
	if err := h.db.Order("id").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	type accountInfo struct {
		ID        int64  `json:"id"`
		Username  string `json:"username"`
		StudentID string `json:"student_id"`
		Role      string `json:"role"`
		Status    int    `json:"status"`
	}
	result := make([]accountInfo, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, accountInfo{
			ID: a.ID, Username: a.Username, StudentID: a.StudentID,
			Role: a.Role, Status: a.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": result, "count": len(result)})
}

// DisableAccount disables or re-enables an account.
// POST /api/admin/accounts/:id/disable
func (h *AdminHandler) DisableAccount(c *gin.Context) {
	accountID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Disable bool `json:"disable"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Disable {
		status = 0
	}
	result := h.db.Model(&model.Account{}).Where("id = ?", accountID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	h.logger.Info("admin changed account status",
		zap.Int64("account_id", accountID), zap.Int("status", status))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// ListAuditLogs returns recent audit entries, optionally filtered by student.
// GET /api/admin/audit?student_id=...&limit=100
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	q := h.db.Model(&model.AuditLog{}).Order("id DESC").Limit(limit)
	if sid := c.Query("student_id"); sid != "" {
		q = q.Where("student_id = ?", sid)
	}
	if action := c.Query("action"); action != "" {
		q = q.Where("action = ?", action)
	}

	var logs []model.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
