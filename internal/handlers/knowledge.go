package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/knowledge"
	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/services"
)

type KnowledgeHandler struct {
	log       *logger.Logger
	store     *knowledge.Store
	reconcile *services.ReconcileService
	uploads   *services.UploadService
}

func NewKnowledgeHandler(log *logger.Logger, store *knowledge.Store, reconcile *services.ReconcileService, uploads *services.UploadService) *KnowledgeHandler {
	return &KnowledgeHandler{
		log:       log.With("handler", "KnowledgeHandler"),
		store:     store,
		reconcile: reconcile,
		uploads:   uploads,
	}
}

// GET /api/knowledge/status
// Directory listing of the knowledge documents.
func (h *KnowledgeHandler) Status(c *gin.Context) {
	docs, err := h.store.List()
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "knowledge_list_failed", err)
		return
	}
	if docs == nil {
		docs = []knowledge.DocumentInfo{}
	}
	RespondOK(c, docs)
}

// GET /api/knowledge/task_status?task_id=
func (h *KnowledgeHandler) TaskStatus(c *gin.Context) {
	taskID, err := uuid.Parse(c.Query("task_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", fmt.Errorf("invalid task id"))
		return
	}
	task, ok := h.uploads.GetTask(taskID)
	if !ok {
		RespondError(c, http.StatusNotFound, "task_not_found", fmt.Errorf("task not found"))
		return
	}
	RespondOK(c, task)
}

// POST /api/knowledge/reconcile
func (h *KnowledgeHandler) Reconcile(c *gin.Context) {
	report, err := h.reconcile.Reconcile(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "reconcile_failed", err)
		return
	}
	RespondOK(c, report)
}
