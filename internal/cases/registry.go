// Package cases processes external case events with per-case
// idempotency and webhook delivery.
package cases

import (
	"sort"
	"sync"
)

// State is a case's processing state.
type State string

const (
	// StateAbsent means the case has never been claimed, or was
	// released or reset.
	StateAbsent State = "absent"
	// StateAnalyzing means an analysis is in flight.
	StateAnalyzing State = "analyzing"
	// StateAnalyzed is terminal until an explicit reset.
	StateAnalyzed State = "analyzed"
)

// Registry tracks analyzing/analyzed membership per case. All
// transitions are atomic; TryClaim is the check-then-set guard that
// prevents two events from both observing an absent case.
type Registry struct {
	mu        sync.Mutex
	analyzing map[string]struct{}
	analyzed  map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		analyzing: make(map[string]struct{}),
		analyzed:  make(map[string]struct{}),
	}
}

// TryClaim atomically claims the case for analysis. It returns false
// when the case is already analyzing or analyzed.
func (r *Registry) TryClaim(caseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.analyzing[caseID]; ok {
		return false
	}
	if _, ok := r.analyzed[caseID]; ok {
		return false
	}
	r.analyzing[caseID] = struct{}{}
	return true
}

// MarkAnalyzed moves the case from analyzing to analyzed.
func (r *Registry) MarkAnalyzed(caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.analyzing, caseID)
	r.analyzed[caseID] = struct{}{}
}

// Release drops an analyzing claim, returning the case to absent so a
// later event can retry it.
func (r *Registry) Release(caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.analyzing, caseID)
}

// Reset clears both memberships. This is the only path out of the
// analyzed state.
func (r *Registry) Reset(caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.analyzing, caseID)
	delete(r.analyzed, caseID)
}

// State returns the case's current state.
func (r *Registry) State(caseID string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.analyzing[caseID]; ok {
		return StateAnalyzing
	}
	if _, ok := r.analyzed[caseID]; ok {
		return StateAnalyzed
	}
	return StateAbsent
}

// Snapshot returns sorted analyzing and analyzed case IDs.
func (r *Registry) Snapshot() (analyzing, analyzed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	analyzing = make([]string, 0, len(r.analyzing))
	for id := range r.analyzing {
		analyzing = append(analyzing, id)
	}
	analyzed = make([]string, 0, len(r.analyzed))
	for id := range r.analyzed {
		analyzed = append(analyzed, id)
	}
	sort.Strings(analyzing)
	sort.Strings(analyzed)
	return analyzing, analyzed
}
