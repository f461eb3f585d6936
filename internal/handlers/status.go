package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type StatusHandler struct {
	log    *logger.Logger
	checks repos.StatusCheckRepo
}

func NewStatusHandler(log *logger.Logger, checks repos.StatusCheckRepo) *StatusHandler {
	return &StatusHandler{log: log.With("handler", "StatusHandler"), checks: checks}
}

type statusCheckRequest struct {
	ClientName string `json:"client_name" binding:"required"`
}

// POST /api/status
func (h *StatusHandler) CreateStatusCheck(c *gin.Context) {
	var req statusCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	check := &types.StatusCheck{
		ID:         uuid.New(),
		ClientName: req.ClientName,
		Timestamp:  time.Now().UTC(),
	}
	created, err := h.checks.Create(c.Request.Context(), nil, check)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "status_check_failed", err)
		return
	}
	RespondOK(c, created)
}

// GET /api/status
func (h *StatusHandler) ListStatusChecks(c *gin.Context) {
	checks, err := h.checks.List(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "status_list_failed", err)
		return
	}
	if checks == nil {
		checks = []*types.StatusCheck{}
	}
	RespondOK(c, checks)
}
