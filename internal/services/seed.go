package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

// SeedService inserts the demo catalog on first boot so a fresh deployment
// has something to show. Each table is seeded independently and only when
// empty; reruns are no-ops.
type SeedService struct {
	log       *logger.Logger
	resources repos.ResourceRepo
	feed      repos.FeedItemRepo
	articles  repos.ArticleRepo
}

func NewSeedService(baseLog *logger.Logger, resources repos.ResourceRepo, feed repos.FeedItemRepo, articles repos.ArticleRepo) *SeedService {
	return &SeedService{
		log:       baseLog.With("service", "SeedService"),
		resources: resources,
		feed:      feed,
		articles:  articles,
	}
}

func (s *SeedService) EnsureSeed(ctx context.Context) error {
	if err := s.seedFeed(ctx); err != nil {
		return err
	}
	if err := s.seedArticles(ctx); err != nil {
		return err
	}
	return s.seedResources(ctx)
}

func (s *SeedService) seedFeed(ctx context.Context) error {
	n, err := s.feed.Count(ctx, nil)
	if err != nil || n > 0 {
		return err
	}
	now := time.Now().UTC()
	items := []*types.FeedItem{
		{
			ID:          uuid.New(),
			Type:        "article",
			Title:       "Spike Protein and Mitochondrial Stress",
			Summary:     "Overview of mitotoxic pathways linked to spike exposure.",
			URL:         "https://doi.org/10.1101/2024.01.01.000001",
			Tags:        encodeTags([]string{"spike protein", "mitochondria", "mechanisms"}),
			PublishedAt: now,
			Source:      "bioRxiv",
		},
		{
			ID:          uuid.New(),
			Type:        "video",
			Title:       "Microglial Activation Deep Dive",
			Summary:     "Neuroinflammation pathways explained.",
			URL:         "https://youtu.be/dQw4w9WgXcQ",
			Tags:        encodeTags([]string{"neuroinflammation", "microglia"}),
			PublishedAt: now,
			Source:      "YouTube",
		},
		{
			ID:          uuid.New(),
			Type:        "resource",
			Title:       "Bifidobacterium Decline Dataset",
			Summary:     "Microbiome shifts post mRNA vaccination.",
			URL:         "/resources/bioweapons/bifidobacterium-decrease.mp4",
			Tags:        encodeTags([]string{"gut", "bifidobacterium", "dysbiosis"}),
			PublishedAt: now,
		},
	}
	if _, err := s.feed.Create(ctx, nil, items); err != nil {
		return err
	}
	s.log.Info("Seeded feed items", "count", len(items))
	return nil
}

func (s *SeedService) seedArticles(ctx context.Context) error {
	n, err := s.articles.Count(ctx, nil)
	if err != nil || n > 0 {
		return err
	}
	articles := []*types.ResearchArticle{
		{
			ID:            uuid.New(),
			Title:         "Spike Protein Toxicity: A Systems Review",
			Authors:       encodeTags([]string{"Doe J", "Smith A"}),
			PublishedDate: time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
			DOI:           "10.1234/sys.2024.0715",
			Link:          "https://pubmed.ncbi.nlm.nih.gov/000000/",
			Abstract:      "Summarizes mechanisms including endothelial dysfunction and mitochondrial impact.",
			Keywords:      encodeTags([]string{"spike protein", "endothelium", "mitochondria"}),
			Tags:          encodeTags([]string{"#spike", "#mitochondria", "#vascular"}),
			CitationCount: 42,
		},
		{
			ID:            uuid.New(),
			Title:         "IgG4 Elevation after Repeated Exposure",
			Authors:       encodeTags([]string{"Lee K", "Patel R"}),
			PublishedDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			DOI:           "10.5555/igg4.2024.0501",
			Link:          "https://www.medrxiv.org/content/early/2024/05/01/",
			Abstract:      "Explores immune class-switching toward IgG4 and tolerance patterns.",
			Keywords:      encodeTags([]string{"IgG4", "immune tolerance"}),
			Tags:          encodeTags([]string{"#IgG4", "#immune"}),
			CitationCount: 15,
		},
	}
	if _, err := s.articles.Create(ctx, nil, articles); err != nil {
		return err
	}
	s.log.Info("Seeded research articles", "count", len(articles))
	return nil
}

func (s *SeedService) seedResources(ctx context.Context) error {
	n, err := s.resources.Count(ctx, nil)
	if err != nil || n > 0 {
		return err
	}
	now := time.Now().UTC()
	resources := []*types.Resource{
		{
			ID:          uuid.New(),
			Title:       "Spike-Protein-Toxicity.pdf",
			Filename:    "Spike-Protein-Toxicity.pdf",
			Ext:         "pdf",
			URL:         "https://arxiv.org/pdf/1706.03762.pdf",
			Kind:        types.ResourceKindPDF,
			Tags:        encodeTags([]string{"spike protein", "mechanisms"}),
			Description: "Reference PDF preview for demo.",
			UploadedAt:  now,
		},
		{
			ID:          uuid.New(),
			Title:       "Bifidobacterium-Decline-clip.mp4",
			Filename:    "bifidobacterium-decrease.mp4",
			Ext:         "mp4",
			URL:         "https://samplelib.com/lib/preview/mp4/sample-5s.mp4",
			Kind:        types.ResourceKindVideo,
			Tags:        encodeTags([]string{"gut", "bifidobacterium", "dysbiosis"}),
			Description: "Short sample video clip for demo.",
			UploadedAt:  now,
		},
		{
			ID:          uuid.New(),
			Title:       "Lecture-excerpt.m4a",
			Filename:    "lecture-excerpt.m4a",
			Ext:         "m4a",
			URL:         "https://samplelib.com/lib/preview/mp3/sample-3s.mp3",
			Kind:        types.ResourceKindAudio,
			Tags:        encodeTags([]string{"podcast", "lecture"}),
			Description: "Short sample audio for demo.",
			UploadedAt:  now,
		},
	}
	if _, err := s.resources.Create(ctx, nil, resources); err != nil {
		return err
	}
	s.log.Info("Seeded resources", "count", len(resources))
	return nil
}
