// Package httpapi provides the HTTP API for fraudintel.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fraudintel/internal/cases"
	"github.com/fyrsmithlabs/fraudintel/internal/crawler"
	"github.com/fyrsmithlabs/fraudintel/internal/extract"
	"github.com/fyrsmithlabs/fraudintel/internal/guidance"
	"github.com/fyrsmithlabs/fraudintel/internal/ingest"
	"github.com/fyrsmithlabs/fraudintel/internal/router"
	"github.com/fyrsmithlabs/fraudintel/internal/snippet"
	"github.com/fyrsmithlabs/fraudintel/internal/websearch"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Services bundles the domain services the API exposes.
type Services struct {
	Router       *router.Router
	Collector    *websearch.Collector
	Extractor    *extract.Extractor
	Ingestor     *ingest.Ingestor
	Guidance     *guidance.Service
	Snippets     *snippet.Service
	Orchestrator *cases.Orchestrator
}

// Server provides HTTP endpoints for fraudintel.
type Server struct {
	echo     *echo.Echo
	services Services
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(services Services, logger *zap.Logger, cfg *Config) (*Server, error) {
	if services.Router == nil {
		return nil, fmt.Errorf("router service cannot be nil")
	}
	if services.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8200,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		services: services,
		logger:   logger,
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	v1.POST("/judgements", s.handleSubmitJudgement)
	v1.GET("/judgements", s.handleListJudgements)
	v1.GET("/judgements/:id", s.handleGetJudgement)

	v1.GET("/analyses", s.handleListAnalyses)
	v1.GET("/analyses/:id", s.handleGetAnalysis)
	v1.GET("/cases/:id/analyses", s.handleCaseAnalyses)
	v1.GET("/cases/status", s.handleCaseStatus)
	v1.POST("/cases/:id/reset", s.handleCaseReset)

	v1.POST("/search", s.handleSearch)
	v1.POST("/guidance", s.handleGuidance)
	v1.POST("/crawl", s.handleCrawl)
	v1.POST("/reports/run", s.handleRunReport)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// SubmitResponse is the response body for POST /api/v1/judgements.
type SubmitResponse struct {
	OK                bool   `json:"ok"`
	ReceivedID        string `json:"received_id"`
	CaseID            string `json:"case_id"`
	AnalysisTriggered bool   `json:"analysis_triggered"`
}

// handleSubmitJudgement accepts a case event and may start a
// background analysis. The response never waits for the analysis.
func (s *Server) handleSubmitJudgement(c echo.Context) error {
	var sub cases.Submission
	if err := c.Bind(&sub); err != nil {
		s.logger.Warn("invalid judgement request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if sub.CaseID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "case_id field is required")
	}

	ack, err := s.services.Orchestrator.Submit(sub)
	if err != nil {
		s.logger.Error("judgement submission failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "submission failed")
	}

	return c.JSON(http.StatusAccepted, SubmitResponse{
		OK:                true,
		ReceivedID:        ack.ReceivedID,
		CaseID:            ack.CaseID,
		AnalysisTriggered: ack.Triggered,
	})
}

func (s *Server) handleListJudgements(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"judgements": s.services.Orchestrator.ListReceived(),
	})
}

func (s *Server) handleGetJudgement(c echo.Context) error {
	rec, err := s.services.Orchestrator.GetReceived(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "judgement not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListAnalyses(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"analyses": s.services.Orchestrator.ListAnalyses(),
	})
}

func (s *Server) handleGetAnalysis(c echo.Context) error {
	a, err := s.services.Orchestrator.GetAnalysis(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleCaseAnalyses(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"case_id":  c.Param("id"),
		"analyses": s.services.Orchestrator.GetAnalysesByCase(c.Param("id")),
	})
}

// CaseStatusResponse is the response body for GET /api/v1/cases/status.
type CaseStatusResponse struct {
	Analyzing []string `json:"analyzing"`
	Analyzed  []string `json:"analyzed"`
}

func (s *Server) handleCaseStatus(c echo.Context) error {
	analyzing, analyzed := s.services.Orchestrator.Status()
	return c.JSON(http.StatusOK, CaseStatusResponse{
		Analyzing: analyzing,
		Analyzed:  analyzed,
	})
}

func (s *Server) handleCaseReset(c echo.Context) error {
	caseID := c.Param("id")
	s.services.Orchestrator.Reset(caseID)
	return c.JSON(http.StatusOK, map[string]any{
		"ok":      true,
		"case_id": caseID,
	})
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	// Limit bounds web acquisition on a MISS. Zero uses the
	// configured default.
	Limit int `json:"limit,omitempty"`
}

// SearchHit is one stored document returned on a HIT.
type SearchHit struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Route     string      `json:"route"`
	BestScore float32     `json:"best_score"`
	Hits      []SearchHit `json:"hits,omitempty"`
	// Acquisition reports the web pipeline outcome on a MISS.
	Acquisition *AcquisitionResult `json:"acquisition,omitempty"`
}

// AcquisitionResult summarizes a MISS-path web acquisition.
type AcquisitionResult struct {
	Collected int      `json:"collected"`
	Extracted int      `json:"extracted"`
	Stored    int      `json:"stored"`
	Skipped   int      `json:"skipped"`
	DocIDs    []string `json:"doc_ids,omitempty"`
}

// handleSearch routes the query against the store. A MISS triggers
// web acquisition when a collector is configured.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	ctx := c.Request().Context()
	decision, err := s.services.Router.Route(ctx, req.Query)
	if err != nil {
		s.logger.Error("routing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	resp := SearchResponse{
		Route:     string(decision.Route),
		BestScore: decision.BestScore,
	}
	for _, hit := range decision.Hits {
		resp.Hits = append(resp.Hits, SearchHit{
			ID:       hit.ID,
			Content:  hit.Content,
			Score:    hit.Score,
			Metadata: hit.Metadata,
		})
	}

	if decision.Route == router.RouteMiss {
		acq, err := s.acquire(ctx, req.Query, req.Limit)
		if err != nil {
			s.logger.Error("web acquisition failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "acquisition failed")
		}
		resp.Acquisition = acq
	}

	return c.JSON(http.StatusOK, resp)
}

// acquire runs the MISS pipeline: collect URLs, extract content,
// store deduplicated documents.
func (s *Server) acquire(ctx context.Context, query string, limit int) (*AcquisitionResult, error) {
	if s.services.Collector == nil || s.services.Extractor == nil || s.services.Ingestor == nil {
		s.logger.Warn("web acquisition not configured, skipping")
		return &AcquisitionResult{}, nil
	}

	results, err := s.services.Collector.Collect(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	cands := make([]extract.Candidate, 0, len(results))
	for _, r := range results {
		cands = append(cands, extract.Candidate{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Snippet,
			SourceQuery: r.Query,
		})
	}
	articles := s.services.Extractor.ExtractBatch(ctx, cands)

	stored, err := s.services.Ingestor.StoreBatch(ctx, query, articles)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &AcquisitionResult{
		Collected: len(results),
		Extracted: len(articles),
		Stored:    stored.Stored,
		Skipped:   stored.Skipped,
		DocIDs:    stored.IDs,
	}, nil
}

// GuidanceRequest is the request body for POST /api/v1/guidance.
type GuidanceRequest struct {
	Topic string `json:"topic"`
}

// handleGuidance returns stored guidance for the topic, generating
// and storing new guidance when nothing relevant exists.
func (s *Server) handleGuidance(c echo.Context) error {
	if s.services.Guidance == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "guidance not configured")
	}

	var req GuidanceRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid guidance request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic field is required")
	}

	result, err := s.services.Guidance.Lookup(c.Request().Context(), req.Topic)
	if err != nil {
		s.logger.Error("guidance lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "guidance lookup failed")
	}
	return c.JSON(http.StatusOK, result)
}

// CrawlRequest is the request body for POST /api/v1/crawl.
type CrawlRequest struct {
	BoardURL    string   `json:"board_url"`
	Topic       string   `json:"topic"`
	Strategy    string   `json:"strategy,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	PageParam   string   `json:"page_param,omitempty"`
	MaxPages    int      `json:"max_pages,omitempty"`
	MaxArticles int      `json:"max_articles,omitempty"`
}

// handleCrawl walks an article board and produces guidance from the
// matching articles.
func (s *Server) handleCrawl(c echo.Context) error {
	if s.services.Guidance == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "guidance not configured")
	}

	var req CrawlRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid crawl request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.BoardURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "board_url field is required")
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic field is required")
	}

	crawlReq := crawler.Request{
		BoardURL:    req.BoardURL,
		Strategy:    crawler.Strategy(req.Strategy),
		Keywords:    req.Keywords,
		PageParam:   req.PageParam,
		MaxPages:    req.MaxPages,
		MaxArticles: req.MaxArticles,
	}

	result, err := s.services.Guidance.FromCrawl(c.Request().Context(), crawlReq, req.Topic)
	if err != nil {
		s.logger.Error("crawl failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "crawl failed")
	}
	return c.JSON(http.StatusOK, result)
}

// ReportRequest is the request body for POST /api/v1/reports/run.
type ReportRequest struct {
	Topic string `json:"topic"`
	// Limit bounds how many unprocessed snippets feed the report.
	Limit int `json:"limit,omitempty"`
}

// handleRunReport writes a report from unprocessed snippets.
func (s *Server) handleRunReport(c echo.Context) error {
	if s.services.Snippets == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reports not configured")
	}

	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid report request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic field is required")
	}

	result, err := s.services.Snippets.WriteReport(c.Request().Context(), req.Topic, req.Limit)
	if err != nil {
		s.logger.Error("report generation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed")
	}
	return c.JSON(http.StatusOK, result)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
