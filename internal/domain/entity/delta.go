package entity

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Delta is the LLM-interpreted gap between a Goal and the current Snapshot.
type Delta struct {
	Description     string   `json:"description"`
	Progress        float64  `json:"progress"`
	Gaps            []string `json:"gaps"`
	IsComplete      bool     `json:"is_complete"`
	SufferingDelta  *float64 `json:"suffering_delta,omitempty"`
	EgoNoise        *float64 `json:"ego_noise,omitempty"`
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseDelta extracts the first balanced JSON object embedded in prose,
// validates and clamps its numeric fields, and falls back to a degraded
// delta when parsing fails entirely. This mirrors the tolerant-by-design
// parsing style the kernel's decision pipeline uses for every free-form LLM
// reply.
func ParseDelta(raw string) Delta {
	if match := extractBalancedJSON(raw); match != "" {
		var d Delta
		if err := json.Unmarshal([]byte(match), &d); err == nil {
			d.clamp()
			return d
		}
	}

	desc := strings.TrimSpace(raw)
	if len(desc) > 200 {
		desc = desc[:200]
	}
	return Delta{
		Description: desc,
		Progress:    0,
		Gaps:        []string{"Unable to parse delta"},
		IsComplete:  false,
	}
}

// extractBalancedJSON returns the first top-level {...} block in s, tracking
// brace depth so nested objects don't truncate the match early.
func extractBalancedJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func (d *Delta) clamp() {
	d.Progress = clamp01(d.Progress)
	if d.SufferingDelta != nil {
		v := clamp(*d.SufferingDelta, -1, 1)
		d.SufferingDelta = &v
	}
	if d.EgoNoise != nil {
		v := clamp01(*d.EgoNoise)
		d.EgoNoise = &v
	}
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
