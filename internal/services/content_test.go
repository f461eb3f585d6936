package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/storage"
	"github.com/timottowitz/covidvaccinedetox/internal/thumbs"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

func newContentEnv(t *testing.T) (*ContentService, repos.ResourceRepo, string) {
	t.Helper()
	log := testLogger(t)
	theDB := testDB(t)
	uploadDir := t.TempDir()
	blobs, err := storage.NewLocalStore(uploadDir, "/uploads", log)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	resourceRepo := repos.NewResourceRepo(theDB, log)
	return NewContentService(theDB, log, resourceRepo, blobs, thumbs.NewGenerator(log)), resourceRepo, uploadDir
}

func TestUpsertResourceMergesExisting(t *testing.T) {
	svc, _, _ := newContentEnv(t)
	ctx := context.Background()

	created, err := svc.CreateResource(ctx, &types.Resource{
		Title:       "Original Title",
		Filename:    "doc.pdf",
		URL:         "/uploads/pdf/doc.pdf",
		Kind:        types.ResourceKindPDF,
		Tags:        encodeTags([]string{"one"}),
		Description: "keep me",
	})
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}

	hash := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	url := "/knowledge/doc.md"
	merged, err := svc.UpsertResource(ctx, &types.Resource{
		Filename:      "doc.pdf",
		URL:           "/uploads/pdf/doc.pdf",
		Title:         "Renamed Title",
		KnowledgeURL:  &url,
		KnowledgeHash: &hash,
	})
	if err != nil {
		t.Fatalf("UpsertResource: %v", err)
	}
	if merged.ID != created.ID {
		t.Fatalf("upsert by filename should reuse the row, got new id %s", merged.ID)
	}
	if merged.Title != "Renamed Title" {
		t.Fatalf("title not merged: %q", merged.Title)
	}
	if merged.Description != "keep me" {
		t.Fatalf("absent field was dropped: %q", merged.Description)
	}
	if merged.KnowledgeURL == nil || *merged.KnowledgeURL != url {
		t.Fatalf("knowledge_url not merged: %v", merged.KnowledgeURL)
	}

	fresh, err := svc.UpsertResource(ctx, &types.Resource{
		Title:    "Brand New",
		Filename: "other.pdf",
		URL:      "/uploads/pdf/other.pdf",
		Kind:     types.ResourceKindPDF,
	})
	if err != nil {
		t.Fatalf("UpsertResource new: %v", err)
	}
	if fresh.ID == created.ID {
		t.Fatalf("unmatched upsert should create a new row")
	}
}

func TestListResourcesGeneratesMissingThumbnails(t *testing.T) {
	svc, repo, uploadDir := newContentEnv(t)
	ctx := context.Background()

	pdf := &types.Resource{
		ID:         uuid.New(),
		Title:      "Needs A Card",
		Filename:   "card.pdf",
		Kind:       types.ResourceKindPDF,
		Tags:       encodeTags(nil),
		UploadedAt: time.Now().UTC(),
	}
	audio := &types.Resource{
		ID:         uuid.New(),
		Title:      "Audio Only",
		Filename:   "talk.m4a",
		Kind:       types.ResourceKindAudio,
		Tags:       encodeTags(nil),
		UploadedAt: time.Now().UTC(),
	}
	if _, err := repo.Create(ctx, nil, []*types.Resource{pdf, audio}); err != nil {
		t.Fatalf("seed resources: %v", err)
	}

	out, err := svc.ListResources(ctx, "")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	var gotPDF, gotAudio *types.Resource
	for _, res := range out {
		switch res.ID {
		case pdf.ID:
			gotPDF = res
		case audio.ID:
			gotAudio = res
		}
	}
	if gotPDF == nil || gotPDF.ThumbnailURL == nil {
		t.Fatalf("pdf listing should generate a thumbnail")
	}
	if gotAudio.ThumbnailURL != nil {
		t.Fatalf("audio must not get a placeholder card")
	}

	thumbPath := filepath.Join(uploadDir, "thumbnails", pdf.ID.String()+".jpg")
	if _, err := os.Stat(thumbPath); err != nil {
		t.Fatalf("thumbnail file missing: %v", err)
	}

	// The url is persisted, so the next listing reuses it.
	stored, err := repo.GetByID(ctx, nil, pdf.ID)
	if err != nil || stored.ThumbnailURL == nil {
		t.Fatalf("thumbnail url not persisted: err=%v", err)
	}
}

func TestListResourcesTagFilter(t *testing.T) {
	svc, repo, _ := newContentEnv(t)
	ctx := context.Background()

	tagged := &types.Resource{
		ID:         uuid.New(),
		Title:      "Tagged",
		Kind:       types.ResourceKindOther,
		Tags:       encodeTags([]string{"Spike Protein", "mechanisms"}),
		UploadedAt: time.Now().UTC(),
	}
	other := &types.Resource{
		ID:         uuid.New(),
		Title:      "Other",
		Kind:       types.ResourceKindOther,
		Tags:       encodeTags([]string{"gut"}),
		UploadedAt: time.Now().UTC(),
	}
	if _, err := repo.Create(ctx, nil, []*types.Resource{tagged, other}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := svc.ListResources(ctx, "spike")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	if len(out) != 1 || out[0].ID != tagged.ID {
		t.Fatalf("tag filter is a case-insensitive substring match, got %d rows", len(out))
	}
}

func TestDeleteResourceRemovesFiles(t *testing.T) {
	svc, repo, uploadDir := newContentEnv(t)
	ctx := context.Background()

	res := &types.Resource{
		ID:         uuid.New(),
		Title:      "Doomed",
		Filename:   "doomed.pdf",
		Kind:       types.ResourceKindPDF,
		StorageKey: "pdf/doomed.pdf",
		Tags:       encodeTags(nil),
		UploadedAt: time.Now().UTC(),
	}
	if _, err := repo.Create(ctx, nil, []*types.Resource{res}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	blobPath := filepath.Join(uploadDir, "pdf", "doomed.pdf")
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(blobPath, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	deleted, err := svc.DeleteResource(ctx, ResourceRef{Filename: "doomed.pdf"})
	if err != nil || !deleted {
		t.Fatalf("DeleteResource: deleted=%v err=%v", deleted, err)
	}
	if _, err := os.Stat(blobPath); !os.IsNotExist(err) {
		t.Fatalf("blob still on disk after delete")
	}
	if got, _ := repo.GetByID(ctx, nil, res.ID); got != nil {
		t.Fatalf("row still present after delete")
	}

	// Deleting something unknown is a clean not-found.
	deleted, err = svc.DeleteResource(ctx, ResourceRef{Filename: "missing.pdf"})
	if err != nil || deleted {
		t.Fatalf("missing resource: deleted=%v err=%v", deleted, err)
	}
}
