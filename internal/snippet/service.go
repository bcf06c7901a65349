// Package snippet manages the lifecycle of stored search snippets:
// loading unprocessed ones, writing reports from them, and linking
// them to the report that consumed them.
package snippet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/generation"
	"github.com/fyrsmithlabs/fraudintel/internal/ingest"
	"github.com/fyrsmithlabs/fraudintel/internal/vectorstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KindReport tags report documents in the store.
const KindReport = "report"

// Statuses returned by WriteReport.
const (
	StatusSuccess    = "success"
	StatusNoSnippets = "no_snippets"
)

// Snippet is a stored search snippet with lifecycle metadata. The
// store assigns one ID per snippet; it serves as both the snippet
// identifier and the document identifier.
type Snippet struct {
	SnippetID      string `json:"snippet_id"`
	DocID          string `json:"doc_id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Content        string `json:"content"`
	Processed      bool   `json:"processed"`
	UsedInReportID string `json:"used_in_report_id,omitempty"`
}

// ReportResult is the outcome of writing a report from snippets.
type ReportResult struct {
	Status     string            `json:"status"`
	ReportID   string            `json:"report_id,omitempty"`
	Report     generation.Report `json:"report,omitempty"`
	SnippetIDs []string          `json:"source_snippet_ids,omitempty"`
}

// Service implements the snippet lifecycle over the vector store.
type Service struct {
	store     vectorstore.Store
	generator generation.Generator
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Service. generator may be nil if WriteReport is not
// used.
func New(store vectorstore.Store, generator generation.Generator, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Load returns stored snippets, optionally only unprocessed ones,
// up to limit (0 means no limit).
func (s *Service) Load(ctx context.Context, limit int, onlyUnprocessed bool) ([]Snippet, error) {
	filter := map[string]string{"kind": ingest.KindSnippet}
	if onlyUnprocessed {
		filter["processed"] = "false"
	}

	docs, err := s.store.GetByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("loading snippets: %w", err)
	}

	snippets := make([]Snippet, 0, len(docs))
	for _, doc := range docs {
		snippets = append(snippets, Snippet{
			SnippetID:      doc.ID,
			DocID:          doc.ID,
			Title:          doc.Metadata["title"],
			URL:            doc.Metadata["source"],
			Content:        doc.Content,
			Processed:      doc.Metadata["processed"] == "true",
			UsedInReportID: doc.Metadata["used_in_report_id"],
		})
		if limit > 0 && len(snippets) >= limit {
			break
		}
	}
	return snippets, nil
}

// MarkProcessed merges processed state into each snippet document,
// preserving unrelated metadata.
func (s *Service) MarkProcessed(ctx context.Context, docIDs []string, reportID string) error {
	processedAt := s.now().UTC().Format(time.RFC3339)
	for _, id := range docIDs {
		err := s.store.UpdateMetadata(ctx, id, map[string]string{
			"processed":         "true",
			"used_in_report_id": reportID,
			"processed_at":      processedAt,
		})
		if err != nil {
			return fmt.Errorf("marking snippet %s processed: %w", id, err)
		}
	}

	s.logger.Info("marked snippets processed",
		zap.Int("count", len(docIDs)),
		zap.String("report_id", reportID),
	)
	return nil
}

// WriteReport generates a trend report from up to limit unprocessed
// snippets, stores it, and marks the consumed snippets processed.
// With no unprocessed snippets it returns StatusNoSnippets without
// calling the generator.
func (s *Service) WriteReport(ctx context.Context, topic string, limit int) (*ReportResult, error) {
	if s.generator == nil {
		return nil, errors.New("generator is required for report writing")
	}

	snippets, err := s.Load(ctx, limit, true)
	if err != nil {
		return nil, err
	}
	if len(snippets) == 0 {
		return &ReportResult{Status: StatusNoSnippets}, nil
	}

	raw, err := s.generator.Generate(ctx, reportPrompt(topic, snippets))
	if err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}

	title := topic + " 동향 보고서"
	report := generation.ParseReport(raw, title)

	snippetIDs := make([]string, len(snippets))
	for i, sn := range snippets {
		snippetIDs[i] = sn.DocID
	}

	reportID := uuid.NewString()
	_, err = s.store.AddDocuments(ctx, []vectorstore.Document{{
		ID:      reportID,
		Content: report.Body,
		Metadata: map[string]string{
			"kind":               KindReport,
			"title":              report.Title,
			"created_at":         s.now().UTC().Format(time.RFC3339),
			"content_hash":       ingest.ContentHash(report.Body),
			"source_snippet_ids": strings.Join(snippetIDs, ","),
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	if err := s.MarkProcessed(ctx, snippetIDs, reportID); err != nil {
		return nil, err
	}

	s.logger.Info("wrote report from snippets",
		zap.String("report_id", reportID),
		zap.Int("snippets", len(snippetIDs)),
	)

	return &ReportResult{
		Status:     StatusSuccess,
		ReportID:   reportID,
		Report:     report,
		SnippetIDs: snippetIDs,
	}, nil
}

// reportPrompt builds the generation prompt from snippet material.
func reportPrompt(topic string, snippets []Snippet) string {
	var b strings.Builder
	b.WriteString("다음 수집된 기사 요약을 바탕으로 ")
	b.WriteString(topic)
	b.WriteString(" 관련 사기 수법 동향 보고서를 JSON으로 작성하세요. ")
	b.WriteString(`형식: {"title": string, "summary": string, "body": string}` + "\n\n")
	for i, sn := range snippets {
		fmt.Fprintf(&b, "[%d] %s\n%s\n(출처: %s)\n\n", i+1, sn.Title, sn.Content, sn.URL)
	}
	return b.String()
}
