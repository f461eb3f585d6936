package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/knowledge"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/storage"
	"github.com/timottowitz/covidvaccinedetox/internal/thumbs"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type stubGenerator struct {
	body    string
	failFor string
}

func (g stubGenerator) GenerateMarkdown(ctx context.Context, res *types.Resource, file io.Reader) (string, error) {
	if g.failFor != "" && res.Filename == g.failFor {
		return "", fmt.Errorf("knowledge service down")
	}
	return g.body, nil
}

type uploadEnv struct {
	svc       *UploadService
	content   *ContentService
	store     *knowledge.Store
	taskStore *TaskStore
}

func newUploadEnv(t *testing.T, gen KnowledgeGenerator) *uploadEnv {
	t.Helper()
	log := testLogger(t)
	theDB := testDB(t)

	blobs, err := storage.NewLocalStore(t.TempDir(), "/uploads", log)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	kstore, err := knowledge.NewStore(t.TempDir(), log)
	if err != nil {
		t.Fatalf("knowledge store: %v", err)
	}
	resourceRepo := repos.NewResourceRepo(theDB, log)
	content := NewContentService(theDB, log, resourceRepo, blobs, thumbs.NewGenerator(log))
	taskStore := NewTaskStore(time.Hour, time.Hour, log)
	t.Cleanup(taskStore.Close)

	svc, err := NewUploadService(log, taskStore, content, blobs, NewIngestService(kstore, log), gen, t.TempDir(), 1)
	if err != nil {
		t.Fatalf("upload service: %v", err)
	}
	t.Cleanup(svc.Close)
	return &uploadEnv{svc: svc, content: content, store: kstore, taskStore: taskStore}
}

func (e *uploadEnv) waitTerminal(t *testing.T, taskID uuid.UUID) types.UploadTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := e.svc.GetTask(taskID)
		if ok && task.Status.Terminal() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return types.UploadTask{}
}

func pdfRequest(key string) UploadRequest {
	return UploadRequest{
		Filename:       "Spike-Protein-Toxicity.pdf",
		ContentType:    "application/pdf",
		Size:           128,
		Title:          "Spike Protein Toxicity",
		Tags:           []string{"spike protein"},
		IdempotencyKey: key,
	}
}

func TestSubmitUploadValidation(t *testing.T) {
	env := newUploadEnv(t, stubGenerator{body: "# Notes"})
	ctx := context.Background()

	req := pdfRequest("v1")
	req.Size = maxUploadBytes + 1
	if _, err := env.svc.SubmitUpload(ctx, req, strings.NewReader("x")); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("oversized upload: err=%v, want ErrFileTooLarge", err)
	}

	req = pdfRequest("v2")
	req.ContentType = "image/png"
	if _, err := env.svc.SubmitUpload(ctx, req, strings.NewReader("x")); !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("png upload: err=%v, want ErrUnsupportedMediaType", err)
	}

	// Parameters on the media type are tolerated.
	req = pdfRequest("v3")
	req.ContentType = "Video/MP4; codecs=avc1"
	req.Filename = "clip.mp4"
	if _, err := env.svc.SubmitUpload(ctx, req, strings.NewReader("x")); err != nil {
		t.Fatalf("mp4 with params rejected: %v", err)
	}

	if _, err := env.svc.SubmitUpload(ctx, pdfRequest("v4"), nil); !errors.Is(err, ErrMissingFile) {
		t.Fatalf("nil file: err=%v, want ErrMissingFile", err)
	}

	// A rejected upload must not leave a resource behind.
	out, err := env.content.ListResources(ctx, "")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	for _, res := range out {
		if res.Filename == "Spike-Protein-Toxicity.pdf" {
			t.Fatalf("validation failure created a resource: %+v", res)
		}
	}
}

func TestUploadPipelineCompletes(t *testing.T) {
	env := newUploadEnv(t, stubGenerator{body: "# Spike Protein Toxicity\n\nFindings."})
	ctx := context.Background()

	task, err := env.svc.SubmitUpload(ctx, pdfRequest("complete-1"), strings.NewReader("%PDF-1.4 fake"))
	if err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}
	if task.Status != types.TaskStatusPending {
		t.Fatalf("fresh task status = %s", task.Status)
	}

	done := env.waitTerminal(t, task.TaskID)
	if done.Status != types.TaskStatusCompleted {
		t.Fatalf("task failed: %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.Progress != 100 || done.Result == nil {
		t.Fatalf("completed task: progress=%d result=%v", done.Progress, done.Result)
	}

	res := done.Result
	if res.Kind != types.ResourceKindPDF {
		t.Fatalf("kind = %s", res.Kind)
	}
	if res.URL == "" || res.StorageKey == "" {
		t.Fatalf("stored file not recorded: url=%q key=%q", res.URL, res.StorageKey)
	}
	if res.ThumbnailURL == nil {
		t.Fatalf("pdf upload should carry a thumbnail")
	}
	if res.KnowledgeURL == nil || res.KnowledgeHash == nil {
		t.Fatalf("ingested upload should link its document: url=%v hash=%v", res.KnowledgeURL, res.KnowledgeHash)
	}
	if res.KnowledgeJobType != nil {
		t.Fatalf("knowledge_job_type should clear after ingest")
	}

	// The document landed in the knowledge dir with the resource id inside.
	docs, err := env.store.List()
	if err != nil || len(docs) != 1 {
		t.Fatalf("knowledge listing: err=%v docs=%d", err, len(docs))
	}
	raw, err := env.store.Read(docs[0].Filename)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	fm, _ := knowledge.ParseFrontmatter(raw)
	if fm.ResourceID != res.ID.String() {
		t.Fatalf("frontmatter resource_id = %q, want %s", fm.ResourceID, res.ID)
	}
}

func TestUploadIdempotencyKeyDedupes(t *testing.T) {
	env := newUploadEnv(t, stubGenerator{body: "# Notes"})
	ctx := context.Background()

	first, err := env.svc.SubmitUpload(ctx, pdfRequest("same-key"), strings.NewReader("%PDF a"))
	if err != nil {
		t.Fatalf("first SubmitUpload: %v", err)
	}
	second, err := env.svc.SubmitUpload(ctx, pdfRequest("same-key"), strings.NewReader("%PDF b"))
	if err != nil {
		t.Fatalf("second SubmitUpload: %v", err)
	}
	if first.TaskID != second.TaskID {
		t.Fatalf("same idempotency key produced two tasks: %s vs %s", first.TaskID, second.TaskID)
	}

	env.waitTerminal(t, first.TaskID)
	out, err := env.content.ListResources(ctx, "")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	count := 0
	for _, res := range out {
		if res.Filename == "Spike-Protein-Toxicity.pdf" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("deduped upload created %d resources", count)
	}
}

func TestUploadIngestFailureIsIsolated(t *testing.T) {
	env := newUploadEnv(t, stubGenerator{body: "# Notes", failFor: "broken.pdf"})
	ctx := context.Background()

	bad := pdfRequest("isolated-bad")
	bad.Filename = "broken.pdf"
	badTask, err := env.svc.SubmitUpload(ctx, bad, strings.NewReader("%PDF bad"))
	if err != nil {
		t.Fatalf("SubmitUpload bad: %v", err)
	}
	goodTask, err := env.svc.SubmitUpload(ctx, pdfRequest("isolated-good"), strings.NewReader("%PDF good"))
	if err != nil {
		t.Fatalf("SubmitUpload good: %v", err)
	}

	badDone := env.waitTerminal(t, badTask.TaskID)
	if badDone.Status != types.TaskStatusFailed || badDone.ErrorMessage == "" {
		t.Fatalf("ingest failure should fail the task: %s (%q)", badDone.Status, badDone.ErrorMessage)
	}
	goodDone := env.waitTerminal(t, goodTask.TaskID)
	if goodDone.Status != types.TaskStatusCompleted {
		t.Fatalf("independent upload dragged down: %s (%s)", goodDone.Status, goodDone.ErrorMessage)
	}

	// The failed task left no resource visible in the catalog.
	out, err := env.content.ListResources(ctx, "")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	for _, res := range out {
		if res.Filename == "broken.pdf" {
			t.Fatalf("failed upload leaked a resource row: %+v", res)
		}
	}
}

func TestUploadSkipsIngestWithoutGenerator(t *testing.T) {
	env := newUploadEnv(t, nil)
	ctx := context.Background()

	task, err := env.svc.SubmitUpload(ctx, pdfRequest("no-gen"), strings.NewReader("%PDF x"))
	if err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}
	done := env.waitTerminal(t, task.TaskID)
	if done.Status != types.TaskStatusCompleted {
		t.Fatalf("upload without generator: %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.Result.KnowledgeJobType == nil {
		t.Fatalf("knowledge_job_type should mark the pending ingest")
	}
	if docs, _ := env.store.List(); len(docs) != 0 {
		t.Fatalf("no generator, but %d documents written", len(docs))
	}
}
