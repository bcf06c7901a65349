package generation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Guidance is structured advisory output parsed from generated text.
type Guidance struct {
	Summary         string    `json:"summary"`
	Patterns        []Pattern `json:"patterns"`
	Recommendations []string  `json:"recommendations"`
	// ParseError carries the parse failure when the fallback shape
	// was used. Informational only.
	ParseError string `json:"parse_error,omitempty"`
}

// Pattern is one named fraud pattern within a guidance payload.
type Pattern struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Report is a written analysis document parsed from generated text.
type Report struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Body       string `json:"body"`
	ParseError string `json:"parse_error,omitempty"`
}

// StripFences removes a wrapping Markdown code fence, with or without
// a language tag. Text without a fence is returned trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the opening fence line (``` or ```json).
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		return strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseGuidance parses generated guidance JSON. A malformed payload
// degrades to a deterministic single-pattern guidance built from the
// topic, with the parse error attached.
func ParseGuidance(raw, topic string) Guidance {
	text := StripFences(raw)

	var g Guidance
	if err := json.Unmarshal([]byte(text), &g); err != nil {
		return Guidance{
			Summary: topic,
			Patterns: []Pattern{
				{Name: topic, Description: truncate(text, 500)},
			},
			ParseError: err.Error(),
		}
	}
	if g.Summary == "" {
		g.Summary = topic
	}
	return g
}

// ParseReport parses generated report JSON. A malformed payload
// degrades to a plain-body report carrying the raw text.
func ParseReport(raw, title string) Report {
	text := StripFences(raw)

	var r Report
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return Report{
			Title:      title,
			Body:       text,
			ParseError: err.Error(),
		}
	}
	if r.Title == "" {
		r.Title = title
	}
	return r
}

// Technique is one identified fraud technique with a relevance score
// against the scenario under analysis.
type Technique struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Application describes how the technique appears in the scenario.
	Application string `json:"application"`
	// ExpectedEffect is the psychological effect on the target.
	ExpectedEffect string `json:"expected_effect"`
	// FitScore rates scenario relevance in [0,1].
	FitScore float64 `json:"fit_score"`
}

// techniqueEnvelope is the wire shape around generated techniques.
type techniqueEnvelope struct {
	Techniques []Technique `json:"techniques"`
}

// ParseTechniques parses generated technique JSON and returns the
// techniques sorted by fit score, highest first. A malformed payload
// yields an empty slice with the parse error; callers treat that as a
// degraded result, never a failure.
func ParseTechniques(raw string) ([]Technique, error) {
	text := StripFences(raw)

	var env techniqueEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("parsing techniques: %w", err)
	}

	sort.SliceStable(env.Techniques, func(i, j int) bool {
		return env.Techniques[i].FitScore > env.Techniques[j].FitScore
	})
	return env.Techniques, nil
}

// SelectTechniques keeps techniques at or above minScore, up to limit
// entries. A non-positive limit keeps everything that qualifies. The
// input order (fit score descending) is preserved.
func SelectTechniques(techniques []Technique, minScore float64, limit int) []Technique {
	selected := make([]Technique, 0, len(techniques))
	for _, t := range techniques {
		if t.FitScore < minScore {
			continue
		}
		selected = append(selected, t)
		if limit > 0 && len(selected) >= limit {
			break
		}
	}
	return selected
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
