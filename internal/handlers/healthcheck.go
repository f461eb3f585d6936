package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// GET /api/
func (h *HealthHandler) Root(c *gin.Context) {
	RespondOK(c, gin.H{"message": "mRNA Vaccine Knowledge Base API"})
}

// GET /api/health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		RespondError(c, http.StatusServiceUnavailable, "db_unreachable", err)
		return
	}
	c.String(http.StatusOK, "ok")
}
