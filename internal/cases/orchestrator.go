package cases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/fraudintel/internal/webhook"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound indicates an unknown receipt, analysis, or case ID.
var ErrNotFound = errors.New("not found")

// Webhook event types.
const (
	EventAnalysisComplete = "analysis_complete"
	EventAnalysisError    = "analysis_error"
)

// Turn is one conversation turn of a submitted case.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Submission is one external case event.
type Submission struct {
	CaseID        string         `json:"case_id"`
	RoundNo       int            `json:"round_no"`
	Turns         []Turn         `json:"turns"`
	Judgement     map[string]any `json:"judgement"`
	Scenario      string         `json:"scenario,omitempty"`
	VictimProfile map[string]any `json:"victim_profile,omitempty"`
}

// Ack acknowledges a submission.
type Ack struct {
	ReceivedID string `json:"received_id"`
	CaseID     string `json:"case_id"`
	// Triggered reports whether this event started a background
	// analysis. False means the case was already analyzing or
	// analyzed.
	Triggered bool `json:"analysis_triggered"`
}

// Received is a stored submission record.
type Received struct {
	ReceivedID string     `json:"received_id"`
	ReceivedAt time.Time  `json:"received_at"`
	Submission Submission `json:"submission"`
}

// Analysis is a stored analysis outcome, success or failure.
type Analysis struct {
	AnalysisID string         `json:"analysis_id"`
	CaseID     string         `json:"case_id"`
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      string         `json:"error,omitempty"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
	// WebhookDelivered reports whether the result event reached the
	// configured webhook. DeliveryError carries the failure; neither
	// is set when no webhook is configured.
	WebhookDelivered bool   `json:"webhook_delivered,omitempty"`
	DeliveryError    string `json:"delivery_error,omitempty"`
}

// Analyzer runs the analysis workflow for one case.
type Analyzer interface {
	Analyze(ctx context.Context, sub Submission) (map[string]any, error)
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(ctx context.Context, sub Submission) (map[string]any, error)

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, sub Submission) (map[string]any, error) {
	return f(ctx, sub)
}

// Config holds orchestrator settings.
type Config struct {
	// AnalysisTimeout bounds one background analysis run.
	AnalysisTimeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.AnalysisTimeout == 0 {
		c.AnalysisTimeout = 2 * time.Minute
	}
}

// Orchestrator processes case events: each case is analyzed at most
// once, in the background, with the result delivered via webhook.
// Received-event and analysis registries are in-memory and lost on
// restart.
type Orchestrator struct {
	registry *Registry
	analyzer Analyzer
	sender   *webhook.Sender
	config   Config
	logger   *zap.Logger

	mu       sync.Mutex
	received map[string]Received
	analyses map[string]Analysis

	wg sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(analyzer Analyzer, sender *webhook.Sender, config Config, logger *zap.Logger) (*Orchestrator, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if sender == nil {
		return nil, errors.New("webhook sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Orchestrator{
		registry: NewRegistry(),
		analyzer: analyzer,
		sender:   sender,
		config:   config,
		logger:   logger,
		received: make(map[string]Received),
		analyses: make(map[string]Analysis),
	}, nil
}

// Submit records the event and, if the case is unclaimed, starts a
// background analysis. The ack is computed synchronously; the caller
// never waits for the analysis.
func (o *Orchestrator) Submit(sub Submission) (*Ack, error) {
	if sub.CaseID == "" {
		return nil, errors.New("case_id is required")
	}

	rec := Received{
		ReceivedID: uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Submission: sub,
	}
	o.mu.Lock()
	o.received[rec.ReceivedID] = rec
	o.mu.Unlock()

	if !o.registry.TryClaim(sub.CaseID) {
		// Duplicate events are a normal no-op.
		o.logger.Info("case already claimed, skipping analysis",
			zap.String("case_id", sub.CaseID),
			zap.String("state", string(o.registry.State(sub.CaseID))),
		)
		return &Ack{ReceivedID: rec.ReceivedID, CaseID: sub.CaseID, Triggered: false}, nil
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runAnalysis(sub)
	}()

	return &Ack{ReceivedID: rec.ReceivedID, CaseID: sub.CaseID, Triggered: true}, nil
}

// runAnalysis executes the workflow for a claimed case.
func (o *Orchestrator) runAnalysis(sub Submission) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.AnalysisTimeout)
	defer cancel()

	payload, err := o.analyzer.Analyze(ctx, sub)
	analyzedAt := time.Now().UTC()
	analysis := Analysis{
		AnalysisID: uuid.NewString(),
		CaseID:     sub.CaseID,
		AnalyzedAt: analyzedAt,
	}

	if err != nil {
		// A failed case goes back to absent so a later event can
		// retry it.
		o.registry.Release(sub.CaseID)
		analysis.Status = "error"
		analysis.Error = err.Error()
		o.recordAnalysis(analysis)

		o.logger.Error("case analysis failed",
			zap.String("case_id", sub.CaseID),
			zap.Error(err),
		)

		o.deliver(ctx, webhook.Event{
			Type:       EventAnalysisError,
			CaseID:     sub.CaseID,
			AnalysisID: analysis.AnalysisID,
			AnalyzedAt: analyzedAt,
			Payload:    map[string]any{"error": err.Error()},
		})
		return
	}

	// Analyzed before delivery: a webhook failure must not cause the
	// analysis to be redone.
	o.registry.MarkAnalyzed(sub.CaseID)
	analysis.Status = "success"
	analysis.Payload = payload
	o.recordAnalysis(analysis)

	o.logger.Info("case analyzed",
		zap.String("case_id", sub.CaseID),
		zap.String("analysis_id", analysis.AnalysisID),
	)

	o.deliver(ctx, webhook.Event{
		Type:       EventAnalysisComplete,
		CaseID:     sub.CaseID,
		AnalysisID: analysis.AnalysisID,
		AnalyzedAt: analyzedAt,
		Payload:    payload,
	})
}

// deliver sends one webhook event and records the outcome on the
// analysis. Failures are not retried.
func (o *Orchestrator) deliver(ctx context.Context, event webhook.Event) {
	if !o.sender.Configured() {
		return
	}

	err := o.sender.Send(ctx, event)
	if err != nil {
		o.logger.Warn("webhook delivery failed",
			zap.String("case_id", event.CaseID),
			zap.Error(err),
		)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.analyses[event.AnalysisID]
	if !ok {
		return
	}
	if err != nil {
		a.DeliveryError = err.Error()
	} else {
		a.WebhookDelivered = true
	}
	o.analyses[event.AnalysisID] = a
}

func (o *Orchestrator) recordAnalysis(a Analysis) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.analyses[a.AnalysisID] = a
}

// ListReceived returns all received records, newest first.
func (o *Orchestrator) ListReceived() []Received {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Received, 0, len(o.received))
	for _, r := range o.received {
		out = append(out, r)
	}
	sortReceived(out)
	return out
}

// GetReceived returns one received record.
func (o *Orchestrator) GetReceived(receivedID string) (Received, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.received[receivedID]
	if !ok {
		return Received{}, ErrNotFound
	}
	return r, nil
}

// ListAnalyses returns all analysis records, newest first.
func (o *Orchestrator) ListAnalyses() []Analysis {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Analysis, 0, len(o.analyses))
	for _, a := range o.analyses {
		out = append(out, a)
	}
	sortAnalyses(out)
	return out
}

// GetAnalysis returns one analysis by ID.
func (o *Orchestrator) GetAnalysis(analysisID string) (Analysis, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.analyses[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// GetAnalysesByCase returns all analyses for a case, newest first.
func (o *Orchestrator) GetAnalysesByCase(caseID string) []Analysis {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []Analysis
	for _, a := range o.analyses {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	sortAnalyses(out)
	return out
}

// Status returns the current analyzing/analyzed membership.
func (o *Orchestrator) Status() (analyzing, analyzed []string) {
	return o.registry.Snapshot()
}

// Reset returns a case to the absent state, allowing reprocessing.
func (o *Orchestrator) Reset(caseID string) {
	o.registry.Reset(caseID)
	o.logger.Info("case reset", zap.String("case_id", caseID))
}

// Drain waits for in-flight analyses to finish, up to the context
// deadline.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sortReceived(rs []Received) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].ReceivedAt.After(rs[j].ReceivedAt)
	})
}

func sortAnalyses(as []Analysis) {
	sort.Slice(as, func(i, j int) bool {
		return as[i].AnalyzedAt.After(as[j].AnalyzedAt)
	})
}
