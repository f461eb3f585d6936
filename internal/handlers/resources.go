package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/services"
)

type ResourceHandler struct {
	log     *logger.Logger
	content *services.ContentService
	uploads *services.UploadService
}

func NewResourceHandler(log *logger.Logger, content *services.ContentService, uploads *services.UploadService) *ResourceHandler {
	return &ResourceHandler{
		log:     log.With("handler", "ResourceHandler"),
		content: content,
		uploads: uploads,
	}
}

// GET /api/resources
// Catalog listing, optionally filtered by tag substring.
func (h *ResourceHandler) ListResources(c *gin.Context) {
	out, err := h.content.ListResources(c.Request.Context(), c.Query("tag"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "resources_list_failed", err)
		return
	}
	RespondOK(c, out)
}

// POST /api/resources/upload
// Accepts the multipart upload, answers 202 with a pollable task.
func (h *ResourceHandler) UploadResource(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", fmt.Errorf("multipart field 'file' is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	req := services.UploadRequest{
		Filename:       fileHeader.Filename,
		ContentType:    contentType,
		Size:           fileHeader.Size,
		Title:          c.PostForm("title"),
		Description:    c.PostForm("description"),
		Tags:           splitTags(c.PostForm("tags")),
		IdempotencyKey: c.PostForm("idempotency_key"),
	}

	task, err := h.uploads.SubmitUpload(c.Request.Context(), req, file)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFileTooLarge):
			RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", err)
		case errors.Is(err, services.ErrUnsupportedMediaType):
			RespondError(c, http.StatusBadRequest, "unsupported_media_type", err)
		case errors.Is(err, services.ErrMissingFile):
			RespondError(c, http.StatusBadRequest, "missing_file", err)
		default:
			RespondError(c, http.StatusInternalServerError, "upload_failed", err)
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id":         task.TaskID,
		"idempotency_key": task.IdempotencyKey,
		"status":          task.Status,
	})
}

type metadataRequest struct {
	ID          string   `json:"id"`
	Filename    string   `json:"filename"`
	URL         string   `json:"url"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

// PATCH /api/resources/metadata
func (h *ResourceHandler) UpdateMetadata(c *gin.Context) {
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ref, err := resolveRef(req.ID, req.Filename, req.URL)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_reference", err)
		return
	}
	res, err := h.content.UpdateMetadata(c.Request.Context(), ref, services.MetadataPatch{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "metadata_update_failed", err)
		return
	}
	if res == nil {
		RespondError(c, http.StatusNotFound, "resource_not_found", fmt.Errorf("resource not found"))
		return
	}
	RespondOK(c, res)
}

// DELETE /api/resources/delete
func (h *ResourceHandler) DeleteResource(c *gin.Context) {
	ref, err := resolveRef(c.Query("id"), c.Query("filename"), c.Query("url"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_reference", err)
		return
	}
	deleted, err := h.content.DeleteResource(c.Request.Context(), ref)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "resource_delete_failed", err)
		return
	}
	if !deleted {
		RespondError(c, http.StatusNotFound, "resource_not_found", fmt.Errorf("resource not found"))
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

func resolveRef(id, filename, url string) (services.ResourceRef, error) {
	ref := services.ResourceRef{
		Filename: strings.TrimSpace(filename),
		URL:      strings.TrimSpace(url),
	}
	if s := strings.TrimSpace(id); s != "" {
		parsed, err := uuid.Parse(s)
		if err != nil {
			return services.ResourceRef{}, fmt.Errorf("invalid resource id %q", s)
		}
		ref.ID = parsed
	}
	if ref.ID == uuid.Nil && ref.Filename == "" && ref.URL == "" {
		return services.ResourceRef{}, fmt.Errorf("one of id, filename or url is required")
	}
	return ref, nil
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
