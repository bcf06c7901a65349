package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/generation"
	"github.com/fyrsmithlabs/fraudintel/internal/ingest"
	"github.com/fyrsmithlabs/fraudintel/internal/router"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"github.com/fyrsmithlabs/fraudintel/internal/websearch"
)

// maxQueryRunes bounds the routing query built from a submission.
const maxQueryRunes = 300

// Technique selection bounds, applied after the fit-score sort.
const (
	techniqueMinScore = 0.6
	techniqueLimit    = 5
)

// Workflow is the production Analyzer: it routes the case against the
// pattern store, acquires fresh articles on a miss, and generates the
// analysis from whatever context it gathered.
type Workflow struct {
	router    *router.Router
	collector *websearch.Collector
	extractor *extract.Extractor
	ingestor  *ingest.Ingestor
	generator generation.Generator
	store     vectorstore.Store
	logger    *zap.Logger
	now       func() time.Time
}

// NewWorkflow creates a Workflow. collector, extractor, and ingestor
// may be nil together to disable web acquisition on a miss.
func NewWorkflow(rt *router.Router, collector *websearch.Collector, extractor *extract.Extractor, ingestor *ingest.Ingestor, generator generation.Generator, store vectorstore.Store, logger *zap.Logger) (*Workflow, error) {
	if rt == nil {
		return nil, errors.New("router is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		router:    rt,
		collector: collector,
		extractor: extractor,
		ingestor:  ingestor,
		generator: generator,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Analyze implements Analyzer.
func (w *Workflow) Analyze(ctx context.Context, sub Submission) (map[string]any, error) {
	query := buildQuery(sub)
	if query == "" {
		return nil, errors.New("submission has no analyzable content")
	}

	decision, err := w.router.Route(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("route case: %w", err)
	}

	contextDocs := decision.Hits
	var acquired int
	if decision.Route == router.RouteMiss {
		contextDocs, acquired, err = w.acquireContext(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	raw, err := w.generator.Generate(ctx, analysisPrompt(sub, contextDocs))
	if err != nil {
		return nil, fmt.Errorf("generate analysis: %w", err)
	}
	guidance := generation.ParseGuidance(raw, query)
	techniques := w.generateTechniques(ctx, sub, contextDocs)

	reportID, err := w.storeReport(ctx, sub, query, guidance)
	if err != nil {
		// The analysis itself succeeded; losing the report copy is
		// worth a warning, not a failed case.
		w.logger.Warn("failed to store case report",
			zap.String("case_id", sub.CaseID),
			zap.Error(err),
		)
	}

	w.logger.Info("case workflow complete",
		zap.String("case_id", sub.CaseID),
		zap.String("route", string(decision.Route)),
		zap.Int("context_docs", len(contextDocs)),
		zap.Int("acquired", acquired),
	)

	return map[string]any{
		"route":           string(decision.Route),
		"query":           query,
		"summary":         guidance.Summary,
		"patterns":        guidance.Patterns,
		"recommendations": guidance.Recommendations,
		"context_docs":    len(contextDocs),
		"acquired":        acquired,
		"report_doc_id":   reportID,
		"techniques":      techniques,
	}, nil
}

// generateTechniques extracts the manipulation techniques observed in
// the case, scored by how well each fits the scenario. A failure here
// degrades the payload rather than failing the case.
func (w *Workflow) generateTechniques(ctx context.Context, sub Submission, docs []vectorstore.SearchResult) []generation.Technique {
	raw, err := w.generator.Generate(ctx, techniquesPrompt(sub, docs))
	if err != nil {
		w.logger.Warn("technique extraction failed",
			zap.String("case_id", sub.CaseID),
			zap.Error(err),
		)
		return nil
	}

	parsed, err := generation.ParseTechniques(raw)
	if err != nil {
		w.logger.Warn("technique extraction returned unparseable output",
			zap.String("case_id", sub.CaseID),
			zap.Error(err),
		)
		return nil
	}
	return generation.SelectTechniques(parsed, techniqueMinScore, techniqueLimit)
}

// acquireContext runs the miss pipeline and re-queries the store for
// the freshly ingested articles.
func (w *Workflow) acquireContext(ctx context.Context, query string) ([]vectorstore.SearchResult, int, error) {
	if w.collector == nil || w.extractor == nil || w.ingestor == nil {
		w.logger.Warn("web acquisition not configured, analyzing without context",
			zap.String("query", query),
		)
		return nil, 0, nil
	}

	results, err := w.collector.Collect(ctx, query, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("collect: %w", err)
	}

	cands := make([]extract.Candidate, 0, len(results))
	for _, r := range results {
		cands = append(cands, extract.Candidate{URL: r.URL, Title: r.Title, Snippet: r.Snippet, SourceQuery: r.Query})
	}
	articles := w.extractor.ExtractBatch(ctx, cands)

	stored, err := w.ingestor.StoreBatch(ctx, query, articles)
	if err != nil {
		return nil, 0, fmt.Errorf("store articles: %w", err)
	}

	// Rank the enlarged store rather than trusting search order.
	decision, err := w.router.Route(ctx, query)
	if err != nil {
		return nil, stored.Stored, fmt.Errorf("re-route after acquisition: %w", err)
	}
	return decision.Hits, stored.Stored, nil
}

// storeReport persists the analysis as a report document so later
// lookups can reuse it.
func (w *Workflow) storeReport(ctx context.Context, sub Submission, query string, g generation.Guidance) (string, error) {
	content, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	id := uuid.NewString()
	_, err = w.store.AddDocuments(ctx, []vectorstore.Document{{
		ID:      id,
		Content: string(content),
		Metadata: map[string]string{
			"kind":         "report",
			"case_id":      sub.CaseID,
			"query":        query,
			"content_hash": ingest.ContentHash(string(content)),
			"created_at":   w.now().UTC().Format(time.RFC3339),
		},
	}})
	if err != nil {
		return "", err
	}
	return id, nil
}

// buildQuery derives the routing query from the submission: scenario
// first, then judgement values, then caller turns, capped at
// maxQueryRunes.
func buildQuery(sub Submission) string {
	var parts []string
	if sub.Scenario != "" {
		parts = append(parts, sub.Scenario)
	}
	for _, key := range []string{"fraud_type", "verdict", "reason"} {
		if v, ok := sub.Judgement[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		for _, turn := range sub.Turns {
			if turn.Role == "caller" && turn.Text != "" {
				parts = append(parts, turn.Text)
			}
		}
	}

	query := strings.TrimSpace(strings.Join(parts, " "))
	runes := []rune(query)
	if len(runes) > maxQueryRunes {
		query = string(runes[:maxQueryRunes])
	}
	return query
}

// analysisPrompt asks for structured Korean fraud-pattern analysis of
// the case, grounded in the retrieved documents.
func analysisPrompt(sub Submission, docs []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("다음 사기 의심 통화 사례를 분석하여 사용된 수법과 대응 방안을 정리하세요.\n\n")

	if sub.Scenario != "" {
		fmt.Fprintf(&b, "시나리오: %s\n", sub.Scenario)
	}
	if len(sub.Judgement) > 0 {
		if judgement, err := json.Marshal(sub.Judgement); err == nil {
			fmt.Fprintf(&b, "판정 결과: %s\n", judgement)
		}
	}
	if len(sub.Turns) > 0 {
		b.WriteString("\n통화 내용:\n")
		for _, turn := range sub.Turns {
			fmt.Fprintf(&b, "- [%s] %s\n", turn.Role, turn.Text)
		}
	}

	if len(docs) > 0 {
		b.WriteString("\n참고 자료:\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, doc.Content)
		}
	}

	b.WriteString("\n다음 JSON 형식으로만 답하세요:\n")
	b.WriteString(`{"summary": "...", "patterns": [{"name": "...", "description": "..."}], "recommendations": ["..."]}`)
	return b.String()
}

// techniquesPrompt asks which manipulation techniques the caller used
// in this case and how well each matches the scenario, for analyst
// review.
func techniquesPrompt(sub Submission, docs []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("다음 사기 의심 통화에서 발신자가 사용한 심리 조작 기법을 식별하세요. 각 기법이 이 시나리오에 얼마나 부합하는지 0과 1 사이의 점수로 평가하세요.\n\n")

	if sub.Scenario != "" {
		fmt.Fprintf(&b, "시나리오: %s\n", sub.Scenario)
	}
	if len(sub.Turns) > 0 {
		b.WriteString("\n통화 내용:\n")
		for _, turn := range sub.Turns {
			fmt.Fprintf(&b, "- [%s] %s\n", turn.Role, turn.Text)
		}
	}

	if len(docs) > 0 {
		b.WriteString("\n유사 사례:\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "%d. %s\n", i+1, doc.Content)
		}
	}

	b.WriteString("\n다음 JSON 형식으로만 답하세요:\n")
	b.WriteString(`{"techniques": [{"name": "...", "description": "...", "application": "사례에서 관찰된 방식", "expected_effect": "대상에게 미치는 심리적 효과", "fit_score": 0.0}]}`)
	return b.String()
}
