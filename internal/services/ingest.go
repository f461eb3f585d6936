package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/timottowitz/covidvaccinedetox/internal/knowledge"
	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/match"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

// KnowledgeGenerator is the opaque external service that turns an uploaded
// PDF or video into a markdown analysis. Implementations return the raw
// markdown body; frontmatter is added by the ingest service.
type KnowledgeGenerator interface {
	GenerateMarkdown(ctx context.Context, res *types.Resource, file io.Reader) (string, error)
}

// httpKnowledgeGenerator posts the stored file to KNOWLEDGE_SERVICE_URL and
// reads the markdown response.
type httpKnowledgeGenerator struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewKnowledgeGenerator returns nil (ingestion disabled) when
// KNOWLEDGE_SERVICE_URL is unset.
func NewKnowledgeGenerator(baseLog *logger.Logger) KnowledgeGenerator {
	base := strings.TrimSpace(os.Getenv("KNOWLEDGE_SERVICE_URL"))
	if base == "" {
		baseLog.Warn("KNOWLEDGE_SERVICE_URL not set, knowledge ingestion disabled")
		return nil
	}
	return &httpKnowledgeGenerator{
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		log:     baseLog.With("component", "KnowledgeGenerator"),
	}
}

func (g *httpKnowledgeGenerator) GenerateMarkdown(ctx context.Context, res *types.Resource, file io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", res.Filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("title", res.Title); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/generate", pr)
	if err != nil {
		return "", fmt.Errorf("build knowledge request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call knowledge service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("knowledge service returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read knowledge response: %w", err)
	}
	return string(body), nil
}

// IngestService wraps a generated markdown body in frontmatter, stores it in
// the knowledge directory and returns the document filename and hash.
type IngestService struct {
	store *knowledge.Store
	log   *logger.Logger
}

func NewIngestService(store *knowledge.Store, baseLog *logger.Logger) *IngestService {
	return &IngestService{store: store, log: baseLog.With("service", "IngestService")}
}

// WriteDocument persists the markdown for a resource. The frontmatter
// carries resource_id so reconciliation can link explicitly.
func (s *IngestService) WriteDocument(res *types.Resource, body string) (filename, hash string, err error) {
	filename = documentFilename(res)
	content := renderDocument(res, body)
	if err := s.store.Write(filename, []byte(content)); err != nil {
		return "", "", err
	}
	return filename, match.ContentHash([]byte(content)), nil
}

func documentFilename(res *types.Resource) string {
	stem := strings.TrimSpace(res.Filename)
	if stem == "" {
		stem = res.Title
	}
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	slug := match.Normalize(stem)
	slug = strings.ReplaceAll(slug, " ", "-")
	if slug == "" {
		slug = res.ID.String()
	}
	return slug + ".md"
}

func renderDocument(res *types.Resource, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", res.Title)
	fmt.Fprintf(&b, "date: %s\n", time.Now().UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "type: %s\n", res.Kind)
	tags := decodeTags(res.Tags)
	if len(tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(tags, ", "))
	}
	fmt.Fprintf(&b, "resource_id: %s\n", res.ID)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String()
}
