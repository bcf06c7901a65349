// Package webhook delivers analysis notifications to an external
// endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrDeliveryFailed indicates the endpoint did not accept the event.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// Event is one notification. Payload fields are flattened into the
// JSON body alongside the fixed fields.
type Event struct {
	Type       string
	CaseID     string
	AnalysisID string
	AnalyzedAt time.Time
	Payload    map[string]any
}

// Config holds sender settings. An empty URL disables delivery.
type Config struct {
	URL     string
	Timeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Sender posts events as JSON. A failed delivery is reported, never
// retried.
type Sender struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Sender.
func New(config Config, logger *zap.Logger) *Sender {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

// Configured reports whether a delivery URL is set.
func (s *Sender) Configured() bool {
	return s.config.URL != ""
}

// Send delivers one event. With no URL configured it is a logged
// no-op. Success means HTTP 200, 201, or 202; anything else returns
// ErrDeliveryFailed.
func (s *Sender) Send(ctx context.Context, event Event) error {
	if !s.Configured() {
		s.logger.Debug("webhook not configured, skipping delivery",
			zap.String("case_id", event.CaseID),
		)
		return nil
	}

	body := make(map[string]any, len(event.Payload)+4)
	for k, v := range event.Payload {
		body[k] = v
	}
	body["type"] = event.Type
	body["case_id"] = event.CaseID
	if event.AnalysisID != "" {
		body["analysis_id"] = event.AnalysisID
	}
	analyzedAt := event.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}
	body["analyzed_at"] = analyzedAt.UTC().Format(time.RFC3339)

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed",
			zap.String("case_id", event.CaseID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		s.logger.Info("webhook delivered",
			zap.String("case_id", event.CaseID),
			zap.String("type", event.Type),
			zap.Int("status", resp.StatusCode),
		)
		return nil
	default:
		s.logger.Warn("webhook rejected",
			zap.String("case_id", event.CaseID),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
}
