package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/knowledge"
	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/match"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

const (
	// similarityThreshold is the minimum fuzzy title score for a link.
	similarityThreshold = 0.3
)

// ReconcileService walks the knowledge directory and links each document to
// the resource it belongs to. Precedence per document: explicit resource_id
// in frontmatter, then content-hash identity, then fuzzy title match.
// Linking goes through conditional updates on the previously observed
// knowledge_url/knowledge_hash pair, so two passes racing on the same row
// cannot both claim it.
type ReconcileService struct {
	log       *logger.Logger
	store     *knowledge.Store
	resources repos.ResourceRepo
}

func NewReconcileService(baseLog *logger.Logger, store *knowledge.Store, resources repos.ResourceRepo) *ReconcileService {
	return &ReconcileService{
		log:       baseLog.With("service", "ReconcileService"),
		store:     store,
		resources: resources,
	}
}

// Reconcile runs one full pass. A document that cannot be read or matched
// is reported and the pass moves on; the pass itself only fails when the
// directory listing or the resource query fails. Running the pass twice in
// a row yields linked on the first run and skipped on the second.
func (s *ReconcileService) Reconcile(ctx context.Context) (*types.ReconcileReport, error) {
	docs, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("list knowledge documents: %w", err)
	}
	resources, err := s.resources.List(ctx, nil, "")
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	report := &types.ReconcileReport{
		Linked:   []types.ReconcileEntry{},
		Updated:  []types.ReconcileEntry{},
		Skipped:  []types.ReconcileEntry{},
		Conflict: []types.ReconcileEntry{},
	}

	// Resources claimed by a document earlier in this pass; first claim
	// wins, later documents naming the same resource report conflict.
	claimed := map[uuid.UUID]string{}
	for _, res := range resources {
		if res.KnowledgeURL != nil && *res.KnowledgeURL != "" {
			claimed[res.ID] = strings.TrimPrefix(*res.KnowledgeURL, "/knowledge/")
		}
	}

	for _, doc := range docs {
		entry := s.reconcileDocument(ctx, doc.Filename, resources, claimed)
		report.Add(entry)
	}

	s.log.Info("Reconciliation pass finished",
		"documents", len(docs),
		"linked", len(report.Linked),
		"updated", len(report.Updated),
		"skipped", len(report.Skipped),
		"conflict", len(report.Conflict))
	return report, nil
}

func (s *ReconcileService) reconcileDocument(ctx context.Context, filename string, resources []*types.Resource, claimed map[uuid.UUID]string) types.ReconcileEntry {
	raw, err := s.store.Read(filename)
	if err != nil {
		s.log.Warn("Could not read knowledge document", "filename", filename, "error", err)
		return types.ReconcileEntry{
			Filename: filename,
			Outcome:  types.ReconcileSkipped,
			Reason:   fmt.Sprintf("unreadable: %v", err),
		}
	}
	hash := match.ContentHash(raw)
	fm, _ := knowledge.ParseFrontmatter(raw)
	docURL := knowledgeURLFor(filename)

	// Tier 1: explicit resource_id in frontmatter.
	if !fm.Malformed && fm.ResourceID != "" {
		if id, err := uuid.Parse(fm.ResourceID); err == nil {
			if res := findByID(resources, id); res != nil {
				return s.linkExplicit(ctx, filename, docURL, hash, res, claimed)
			}
			return types.ReconcileEntry{
				Filename: filename,
				Outcome:  types.ReconcileConflict,
				Reason:   fmt.Sprintf("frontmatter resource_id %s does not exist", fm.ResourceID),
			}
		}
		// Unparseable id degrades to fuzzy matching below.
		s.log.Warn("Ignoring invalid frontmatter resource_id", "filename", filename, "resource_id", fm.ResourceID)
	}

	// Tier 2: content hash identity. The bytes are already linked
	// somewhere; relinking them to a second resource is never correct.
	for _, res := range resources {
		if res.KnowledgeHash != nil && *res.KnowledgeHash == hash {
			return types.ReconcileEntry{
				Filename:   filename,
				Outcome:    types.ReconcileSkipped,
				ResourceID: res.ID.String(),
				Reason:     "content already linked",
			}
		}
	}

	// Tier 3: fuzzy title match against unclaimed resources.
	title := fm.Title
	if fm.Malformed || title == "" {
		title = stemOf(filename)
	}
	best, score := bestMatch(title, filename, resources)
	if best == nil || score < similarityThreshold {
		return types.ReconcileEntry{
			Filename: filename,
			Outcome:  types.ReconcileSkipped,
			Score:    score,
			Reason:   "no resource above similarity threshold",
		}
	}
	if owner, ok := claimed[best.ID]; ok {
		if owner == filename {
			return s.refreshLink(ctx, filename, docURL, hash, best)
		}
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileConflict,
			ResourceID: best.ID.String(),
			Score:      score,
			Reason:     fmt.Sprintf("resource already linked to %s", owner),
		}
	}
	return s.link(ctx, filename, docURL, hash, best, score, claimed)
}

// linkExplicit handles a document that names its resource outright.
func (s *ReconcileService) linkExplicit(ctx context.Context, filename, docURL, hash string, res *types.Resource, claimed map[uuid.UUID]string) types.ReconcileEntry {
	if owner, ok := claimed[res.ID]; ok && owner != filename {
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileConflict,
			ResourceID: res.ID.String(),
			Reason:     fmt.Sprintf("resource already linked to %s", owner),
		}
	}
	if res.KnowledgeURL != nil && *res.KnowledgeURL == docURL {
		return s.refreshLink(ctx, filename, docURL, hash, res)
	}
	return s.link(ctx, filename, docURL, hash, res, 1.0, claimed)
}

// refreshLink re-hashes an existing link. Same bytes → skipped; changed
// bytes → hash updated in place.
func (s *ReconcileService) refreshLink(ctx context.Context, filename, docURL, hash string, res *types.Resource) types.ReconcileEntry {
	if res.KnowledgeHash != nil && *res.KnowledgeHash == hash {
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileSkipped,
			ResourceID: res.ID.String(),
			Reason:     "already linked, content unchanged",
		}
	}
	ok, err := s.resources.LinkKnowledge(ctx, nil, res.ID, res.KnowledgeURL, res.KnowledgeHash, map[string]interface{}{
		"knowledge_url":  docURL,
		"knowledge_hash": hash,
	})
	if err != nil {
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileSkipped,
			ResourceID: res.ID.String(),
			Reason:     fmt.Sprintf("update failed: %v", err),
		}
	}
	if !ok {
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileConflict,
			ResourceID: res.ID.String(),
			Reason:     "resource changed concurrently",
		}
	}
	res.KnowledgeURL = &docURL
	res.KnowledgeHash = &hash
	return types.ReconcileEntry{
		Filename:   filename,
		Outcome:    types.ReconcileUpdated,
		ResourceID: res.ID.String(),
		Reason:     "content hash refreshed",
	}
}

// link claims an unlinked resource for the document.
func (s *ReconcileService) link(ctx context.Context, filename, docURL, hash string, res *types.Resource, score float64, claimed map[uuid.UUID]string) types.ReconcileEntry {
	ok, err := s.resources.LinkKnowledge(ctx, nil, res.ID, res.KnowledgeURL, res.KnowledgeHash, map[string]interface{}{
		"knowledge_url":      docURL,
		"knowledge_hash":     hash,
		"knowledge_job_type": nil,
	})
	if err != nil {
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileSkipped,
			ResourceID: res.ID.String(),
			Score:      score,
			Reason:     fmt.Sprintf("link failed: %v", err),
		}
	}
	if !ok {
		return types.ReconcileEntry{
			Filename:   filename,
			Outcome:    types.ReconcileConflict,
			ResourceID: res.ID.String(),
			Score:      score,
			Reason:     "resource linked concurrently",
		}
	}
	claimed[res.ID] = filename
	res.KnowledgeURL = &docURL
	res.KnowledgeHash = &hash
	res.KnowledgeJobType = nil
	return types.ReconcileEntry{
		Filename:   filename,
		Outcome:    types.ReconcileLinked,
		ResourceID: res.ID.String(),
		Score:      score,
	}
}

// bestMatch scores the document against every resource title and filename,
// keeping the highest scorer. Ties go to the most recently uploaded
// resource; List already orders by uploaded_at descending, so a strict
// greater-than keeps the earlier (newer) candidate.
func bestMatch(title, filename string, resources []*types.Resource) (*types.Resource, float64) {
	var best *types.Resource
	bestScore := 0.0
	for _, res := range resources {
		score := match.SimilarityScore(title, res.Title)
		if res.Filename != "" {
			if fs := match.SimilarityScore(title, res.Filename); fs > score {
				score = fs
			}
		}
		if ds := match.SimilarityScore(stemOf(filename), res.Title); ds > score {
			score = ds
		}
		if score > bestScore {
			best = res
			bestScore = score
		}
	}
	return best, bestScore
}

func findByID(resources []*types.Resource, id uuid.UUID) *types.Resource {
	for _, res := range resources {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func stemOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i > 0 {
		return filename[:i]
	}
	return filename
}
