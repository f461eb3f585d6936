package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/db"
	"github.com/timottowitz/covidvaccinedetox/internal/handlers"
	"github.com/timottowitz/covidvaccinedetox/internal/knowledge"
	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/services"
	"github.com/timottowitz/covidvaccinedetox/internal/storage"
	"github.com/timottowitz/covidvaccinedetox/internal/thumbs"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	dbService, err := db.NewTestDatabase(log)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	theDB := dbService.DB()

	resourceRepo := repos.NewResourceRepo(theDB, log)
	feedItemRepo := repos.NewFeedItemRepo(theDB, log)
	articleRepo := repos.NewArticleRepo(theDB, log)
	statusCheckRepo := repos.NewStatusCheckRepo(theDB, log)

	blobs, err := storage.NewLocalStore(t.TempDir(), "/uploads", log)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	knowledgeStore, err := knowledge.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("knowledge store: %v", err)
	}

	contentService := services.NewContentService(theDB, log, resourceRepo, blobs, thumbs.NewGenerator(log))
	taskStore := services.NewTaskStore(time.Hour, time.Hour, log)
	t.Cleanup(taskStore.Close)
	uploadService, err := services.NewUploadService(log, taskStore, contentService, blobs,
		services.NewIngestService(knowledgeStore, log), nil, t.TempDir(), 1)
	if err != nil {
		t.Fatalf("upload service: %v", err)
	}
	t.Cleanup(uploadService.Close)
	reconcileService := services.NewReconcileService(log, knowledgeStore, resourceRepo)

	if err := services.NewSeedService(log, resourceRepo, feedItemRepo, articleRepo).EnsureSeed(t.Context()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	return NewRouter(RouterConfig{
		ResourceHandler:  handlers.NewResourceHandler(log, contentService, uploadService),
		KnowledgeHandler: handlers.NewKnowledgeHandler(log, knowledgeStore, reconcileService, uploadService),
		FeedHandler:      handlers.NewFeedHandler(log, feedItemRepo),
		ResearchHandler:  handlers.NewResearchHandler(log, articleRepo),
		StatusHandler:    handlers.NewStatusHandler(log, statusCheckRepo),
		HealthHandler:    handlers.NewHealthHandler(theDB),
		CORSOrigins:      "*",
	})
}

func doRequest(t *testing.T, router *gin.Engine, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouterBannerAndHealth(t *testing.T) {
	router := testRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/ = %d", w.Code)
	}
	var banner map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &banner); err != nil || banner["message"] == "" {
		t.Fatalf("banner body: %s (err=%v)", w.Body.String(), err)
	}

	w = doRequest(t, router, http.MethodGet, "/api/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/health = %d", w.Code)
	}
}

func TestRouterSeededListings(t *testing.T) {
	router := testRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/resources", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/resources = %d: %s", w.Code, w.Body.String())
	}
	var resources []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resources); err != nil {
		t.Fatalf("decode resources: %v", err)
	}
	if len(resources) != 3 {
		t.Fatalf("seeded catalog should have 3 rows, got %d", len(resources))
	}

	w = doRequest(t, router, http.MethodGet, "/api/resources?tag=bifido", nil, "")
	var filtered []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode filtered: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("tag filter rows = %d, want 1", len(filtered))
	}

	w = doRequest(t, router, http.MethodGet, "/api/feed", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/feed = %d", w.Code)
	}
	w = doRequest(t, router, http.MethodGet, "/api/research?sort_by=citations", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/research = %d", w.Code)
	}
}

func TestRouterTaskStatusNotFound(t *testing.T) {
	router := testRouter(t)

	w := doRequest(t, router, http.MethodGet, "/api/knowledge/task_status?task_id="+uuid.NewString(), nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown task = %d, want 404", w.Code)
	}
	w = doRequest(t, router, http.MethodGet, "/api/knowledge/task_status?task_id=not-a-uuid", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad task id = %d, want 400", w.Code)
	}
}

func TestRouterUploadAccepted(t *testing.T) {
	router := testRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="notes.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	fmt.Fprint(part, "%PDF-1.4 test")
	_ = mw.WriteField("title", "Uploaded Notes")
	_ = mw.WriteField("idempotency_key", "router-upload-1")
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	w := doRequest(t, router, http.MethodPost, "/api/resources/upload", &buf, mw.FormDataContentType())
	if w.Code != http.StatusAccepted {
		t.Fatalf("upload = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp["task_id"] == "" || resp["status"] != "pending" {
		t.Fatalf("upload response: %v", resp)
	}

	// The returned task is pollable right away.
	w = doRequest(t, router, http.MethodGet, "/api/knowledge/task_status?task_id="+resp["task_id"], nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("task_status after upload = %d", w.Code)
	}
}

func TestRouterUploadRejectsBadType(t *testing.T) {
	router := testRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="pic.png"`)
	header.Set("Content-Type", "image/png")
	part, _ := mw.CreatePart(header)
	fmt.Fprint(part, "png bytes")
	_ = mw.Close()

	w := doRequest(t, router, http.MethodPost, "/api/resources/upload", &buf, mw.FormDataContentType())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("png upload = %d, want 400", w.Code)
	}
	var envelope handlers.ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil || envelope.Error.Code != "unsupported_media_type" {
		t.Fatalf("error envelope: %s", w.Body.String())
	}
}

func TestRouterMetadataAndDelete(t *testing.T) {
	router := testRouter(t)

	body := bytes.NewBufferString(`{"filename":"Spike-Protein-Toxicity.pdf","title":"Renamed","tags":["updated"]}`)
	w := doRequest(t, router, http.MethodPatch, "/api/resources/metadata", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("metadata patch = %d: %s", w.Code, w.Body.String())
	}
	var updated map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil || updated["title"] != "Renamed" {
		t.Fatalf("patched resource: %s", w.Body.String())
	}

	body = bytes.NewBufferString(`{"filename":"no-such-file.pdf","title":"x"}`)
	w = doRequest(t, router, http.MethodPatch, "/api/resources/metadata", body, "application/json")
	if w.Code != http.StatusNotFound {
		t.Fatalf("patch missing = %d, want 404", w.Code)
	}

	w = doRequest(t, router, http.MethodDelete, "/api/resources/delete?filename=lecture-excerpt.m4a", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(t, router, http.MethodDelete, "/api/resources/delete?filename=lecture-excerpt.m4a", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", w.Code)
	}
}

func TestRouterStatusChecks(t *testing.T) {
	router := testRouter(t)

	body := bytes.NewBufferString(`{"client_name":"probe"}`)
	w := doRequest(t, router, http.MethodPost, "/api/status", body, "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/status = %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(t, router, http.MethodGet, "/api/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/status = %d", w.Code)
	}
	var checks []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &checks); err != nil || len(checks) != 1 {
		t.Fatalf("status listing: %s", w.Body.String())
	}
	if checks[0]["client_name"] != "probe" {
		t.Fatalf("client_name = %v", checks[0]["client_name"])
	}
}
