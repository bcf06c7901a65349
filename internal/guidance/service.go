// Package guidance serves fraud-pattern guidance: from the store when
// a close match exists, freshly generated otherwise.
package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/crawler"
	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/generation"
	"github.com/fyrsmithlabs/fraudintel/internal/ingest"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"go.uber.org/zap"
)

// Document kinds written by this service.
const (
	KindGuidance        = "guidance"
	KindCrawledGuidance = "crawled_guidance"
)

// Statuses returned to callers.
const (
	StatusFoundInDB    = "found_in_db"
	StatusGeneratedNew = "generated_new"
	StatusSuccess      = "success"
	StatusNoArticles   = "no_articles"
)

// Result is the outcome of a guidance operation.
type Result struct {
	Status   string              `json:"status"`
	DocID    string              `json:"doc_id,omitempty"`
	Guidance generation.Guidance `json:"guidance"`
	// Score is the best store similarity seen during lookup.
	Score float32 `json:"score,omitempty"`
	// Articles is how many crawled articles fed the guidance.
	Articles int `json:"articles,omitempty"`
}

// Config holds guidance settings.
type Config struct {
	// Threshold is the similarity needed to reuse stored guidance.
	Threshold float64
	// TopK bounds lookup candidates.
	TopK int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 0.80
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
}

// Service answers guidance requests.
type Service struct {
	store     vectorstore.Store
	generator generation.Generator
	extractor *extract.Extractor
	crawler   *crawler.Crawler
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Service. extractor and crawler are only needed for
// FromCrawl.
func New(store vectorstore.Store, generator generation.Generator, extractor *extract.Extractor, crawl *crawler.Crawler, config Config, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Service{
		store:     store,
		generator: generator,
		extractor: extractor,
		crawler:   crawl,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Lookup returns stored guidance when a close enough match exists,
// otherwise generates, stores, and returns new guidance.
func (s *Service) Lookup(ctx context.Context, topic string) (*Result, error) {
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	hits, err := s.store.SearchWithScores(ctx, topic, s.config.TopK, map[string]string{"kind": KindGuidance})
	if err != nil {
		return nil, fmt.Errorf("searching guidance: %w", err)
	}

	if len(hits) > 0 && float64(hits[0].Score) >= s.config.Threshold {
		s.logger.Info("guidance served from store",
			zap.String("topic", topic),
			zap.Float32("score", hits[0].Score),
		)
		return &Result{
			Status:   StatusFoundInDB,
			DocID:    hits[0].ID,
			Guidance: generation.ParseGuidance(hits[0].Content, topic),
			Score:    hits[0].Score,
		}, nil
	}

	raw, err := s.generator.Generate(ctx, lookupPrompt(topic))
	if err != nil {
		return nil, fmt.Errorf("generating guidance: %w", err)
	}
	parsed := generation.ParseGuidance(raw, topic)

	docID, err := s.storeGuidance(ctx, KindGuidance, topic, parsed)
	if err != nil {
		return nil, err
	}

	var best float32
	if len(hits) > 0 {
		best = hits[0].Score
	}
	s.logger.Info("guidance generated",
		zap.String("topic", topic),
		zap.Float32("best_score", best),
	)
	return &Result{
		Status:   StatusGeneratedNew,
		DocID:    docID,
		Guidance: parsed,
		Score:    best,
	}, nil
}

// FromCrawl builds guidance from a board crawl. A crawl that yields
// no articles (including an unreachable board) returns
// StatusNoArticles; partial crawl results are used as-is.
func (s *Service) FromCrawl(ctx context.Context, req crawler.Request, topic string) (*Result, error) {
	if s.crawler == nil || s.extractor == nil {
		return nil, errors.New("crawler and extractor are required for crawl guidance")
	}

	crawled, err := s.crawler.Crawl(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("crawling board: %w", err)
	}
	if len(crawled.Articles) == 0 {
		return &Result{Status: StatusNoArticles}, nil
	}

	cands := make([]extract.Candidate, len(crawled.Articles))
	for i, a := range crawled.Articles {
		cands[i] = extract.Candidate{URL: a.URL, Title: a.Title}
	}
	articles := s.extractor.ExtractBatch(ctx, cands)
	if len(articles) == 0 {
		return &Result{Status: StatusNoArticles}, nil
	}

	raw, err := s.generator.Generate(ctx, crawlPrompt(topic, articles))
	if err != nil {
		return nil, fmt.Errorf("generating guidance: %w", err)
	}
	parsed := generation.ParseGuidance(raw, topic)

	docID, err := s.storeGuidance(ctx, KindCrawledGuidance, topic, parsed)
	if err != nil {
		return nil, err
	}

	s.logger.Info("guidance generated from crawl",
		zap.String("topic", topic),
		zap.Int("articles", len(articles)),
	)
	return &Result{
		Status:   StatusSuccess,
		DocID:    docID,
		Guidance: parsed,
		Articles: len(articles),
	}, nil
}

// storeGuidance persists a guidance payload as a document of the
// given kind.
func (s *Service) storeGuidance(ctx context.Context, kind, topic string, g generation.Guidance) (string, error) {
	content, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("encoding guidance: %w", err)
	}

	ids, err := s.store.AddDocuments(ctx, []vectorstore.Document{{
		Content: string(content),
		Metadata: map[string]string{
			"kind":         kind,
			"title":        topic,
			"created_at":   s.now().UTC().Format(time.RFC3339),
			"content_hash": ingest.ContentHash(string(content)),
		},
	}})
	if err != nil {
		return "", fmt.Errorf("storing guidance: %w", err)
	}
	return ids[0], nil
}

func lookupPrompt(topic string) string {
	return fmt.Sprintf(`다음 사기 유형에 대한 식별 패턴과 대응 권고를 JSON으로 작성하세요. 형식: {"summary": string, "patterns": [{"name": string, "description": string}], "recommendations": [string]}

유형: %s`, topic)
}

func crawlPrompt(topic string, articles []extract.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "다음 수집 기사를 바탕으로 %s 관련 사기 식별 패턴과 대응 권고를 JSON으로 작성하세요. ", topic)
	b.WriteString(`형식: {"summary": string, "patterns": [{"name": string, "description": string}], "recommendations": [string]}` + "\n\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, a.Title, a.Content)
	}
	return b.String()
}
