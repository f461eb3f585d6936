package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/storage"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

const maxUploadBytes = 100 << 20

var (
	ErrMissingFile          = errors.New("upload file is required")
	ErrFileTooLarge         = fmt.Errorf("upload exceeds the %d byte limit", maxUploadBytes)
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// allowedMediaTypes is the exact accept list for uploads.
var allowedMediaTypes = map[string]struct{}{
	"application/pdf": {},
	"video/mp4":       {},
	"video/quicktime": {},
	"video/webm":      {},
}

// UploadRequest carries the metadata of one multipart upload. The file body
// travels separately as a reader.
type UploadRequest struct {
	Filename       string
	ContentType    string
	Size           int64
	Title          string
	Description    string
	Tags           []string
	IdempotencyKey string
}

type uploadJob struct {
	taskID   uuid.UUID
	req      UploadRequest
	tempPath string
	size     int64
}

// UploadService validates incoming uploads synchronously, then drives the
// save/thumbnail/ingest/finalize pipeline on a bounded worker pool. The
// Resource row is written only at finalize, so a failed task leaves no
// half-built record behind.
type UploadService struct {
	log     *logger.Logger
	tasks   *TaskStore
	content *ContentService
	blobs   storage.BlobStore
	ingest  *IngestService
	gen     KnowledgeGenerator
	spool   string

	jobs     chan uploadJob
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewUploadService(baseLog *logger.Logger, tasks *TaskStore, content *ContentService, blobs storage.BlobStore, ingest *IngestService, gen KnowledgeGenerator, spoolDir string, workers int) (*UploadService, error) {
	if workers <= 0 {
		workers = 2
	}
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload spool dir: %w", err)
	}
	s := &UploadService{
		log:     baseLog.With("service", "UploadService"),
		tasks:   tasks,
		content: content,
		blobs:   blobs,
		ingest:  ingest,
		gen:     gen,
		spool:   spoolDir,
		jobs:    make(chan uploadJob, 64),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s, nil
}

// Close drains the pool. Queued jobs still run to completion.
func (s *UploadService) Close() {
	s.stopOnce.Do(func() { close(s.jobs) })
	s.wg.Wait()
}

// SubmitUpload validates the request, spools the file to disk and enqueues
// the pipeline. Returns the (possibly pre-existing) task immediately; the
// caller polls task status for the outcome.
func (s *UploadService) SubmitUpload(ctx context.Context, req UploadRequest, file io.Reader) (types.UploadTask, error) {
	if file == nil || strings.TrimSpace(req.Filename) == "" {
		return types.UploadTask{}, ErrMissingFile
	}
	if req.Size > maxUploadBytes {
		return types.UploadTask{}, ErrFileTooLarge
	}
	mediaType := normalizeMediaType(req.ContentType)
	if _, ok := allowedMediaTypes[mediaType]; !ok {
		return types.UploadTask{}, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, req.ContentType)
	}
	req.ContentType = mediaType

	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	task, created := s.tasks.CreateOrGet(req.IdempotencyKey)
	if !created {
		return task, nil
	}

	tempPath, size, err := s.spoolFile(file)
	if err != nil {
		s.tasks.Fail(task.TaskID, err.Error())
		if errors.Is(err, ErrFileTooLarge) {
			return types.UploadTask{}, err
		}
		return types.UploadTask{}, fmt.Errorf("spool upload: %w", err)
	}

	select {
	case s.jobs <- uploadJob{taskID: task.TaskID, req: req, tempPath: tempPath, size: size}:
	case <-ctx.Done():
		_ = os.Remove(tempPath)
		s.tasks.Fail(task.TaskID, "upload canceled before processing")
		return types.UploadTask{}, ctx.Err()
	}
	return task, nil
}

// GetTask returns a snapshot of the task, or false when unknown or swept.
func (s *UploadService) GetTask(taskID uuid.UUID) (types.UploadTask, bool) {
	return s.tasks.Get(taskID)
}

// spoolFile copies the body to a temp file, enforcing the size cap as it
// streams rather than trusting the declared Content-Length.
func (s *UploadService) spoolFile(file io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(s.spool, "upload-*")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(tmp, io.LimitReader(file, maxUploadBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > maxUploadBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, err
	}
	return tmp.Name(), n, nil
}

func (s *UploadService) worker(id int) {
	defer s.wg.Done()
	log := s.log.With("worker", id)
	for job := range s.jobs {
		s.runJob(log, job)
	}
}

func (s *UploadService) runJob(log *logger.Logger, job uploadJob) {
	defer os.Remove(job.tempPath)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Upload pipeline panicked", "task_id", job.taskID, "panic", r)
			s.tasks.Fail(job.taskID, "internal error")
		}
	}()

	ctx := context.Background()
	res, err := s.process(ctx, job)
	if err != nil {
		log.Warn("Upload task failed", "task_id", job.taskID, "filename", job.req.Filename, "error", err)
		s.tasks.Fail(job.taskID, err.Error())
		return
	}
	s.tasks.Complete(job.taskID, res)
	log.Info("Upload task completed", "task_id", job.taskID, "resource_id", res.ID)
}

func (s *UploadService) process(ctx context.Context, job uploadJob) (*types.Resource, error) {
	req := job.req
	ext := filepath.Ext(req.Filename)
	kind := types.KindForExt(ext)

	res := &types.Resource{
		ID:          uuid.New(),
		Title:       titleOrStem(req.Title, req.Filename),
		Filename:    filepath.Base(req.Filename),
		Ext:         strings.TrimPrefix(strings.ToLower(ext), "."),
		Kind:        kind,
		Tags:        encodeTags(req.Tags),
		Description: req.Description,
		UploadedAt:  time.Now().UTC(),
	}

	s.tasks.SetStage(job.taskID, "saving", 10)
	key := fmt.Sprintf("%s/%s%s", kind, res.ID, strings.ToLower(ext))
	f, err := os.Open(job.tempPath)
	if err != nil {
		return nil, fmt.Errorf("open spooled upload: %w", err)
	}
	err = s.blobs.Save(ctx, key, f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	res.StorageKey = key
	res.URL = s.blobs.PublicURL(key)

	s.tasks.SetStage(job.taskID, "thumbnail", 40)
	if kind == types.ResourceKindPDF || kind == types.ResourceKindVideo {
		if url, err := s.content.EnsureThumbnail(ctx, res); err != nil {
			s.log.Warn("Thumbnail generation failed", "task_id", job.taskID, "error", err)
		} else {
			res.ThumbnailURL = &url
		}
	}

	s.tasks.SetStage(job.taskID, "ingesting", 60)
	if kind == types.ResourceKindPDF || kind == types.ResourceKindVideo {
		jobType := string(kind)
		res.KnowledgeJobType = &jobType
		if s.gen != nil {
			if err := s.ingestKnowledge(ctx, job.tempPath, res); err != nil {
				return nil, fmt.Errorf("knowledge ingestion: %w", err)
			}
		}
	}

	s.tasks.SetStage(job.taskID, "finalize", 90)
	final, err := s.content.UpsertResource(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("persist resource: %w", err)
	}
	return final, nil
}

func (s *UploadService) ingestKnowledge(ctx context.Context, tempPath string, res *types.Resource) error {
	f, err := os.Open(tempPath)
	if err != nil {
		return fmt.Errorf("open spooled upload: %w", err)
	}
	defer f.Close()

	body, err := s.gen.GenerateMarkdown(ctx, res, f)
	if err != nil {
		return err
	}
	filename, hash, err := s.ingest.WriteDocument(res, body)
	if err != nil {
		return fmt.Errorf("write knowledge document: %w", err)
	}
	url := knowledgeURLFor(filename)
	res.KnowledgeURL = &url
	res.KnowledgeHash = &hash
	res.KnowledgeJobType = nil
	return nil
}

func normalizeMediaType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func titleOrStem(title, filename string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	stem := filepath.Base(filename)
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	return stem
}
