package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Suggestion is one prompt change proposed by a reflection agent.
type Suggestion struct {
	NodeID          string `json:"node_id"`
	AgentID         string `json:"agent_id"`
	SuggestedPrompt string `json:"suggested_prompt"`
	Reason          string `json:"reason"`
}

// ErrNoSuggestions is returned when a reply contains no JSON array.
var ErrNoSuggestions = errors.New("pattern: no suggestions found in reply")

// ParseSuggestions extracts the suggestion array from a reflection reply.
// Models often wrap the array in prose or code fences, or emit slightly
// broken JSON; the array is located first and repaired if it does not parse.
// Entries without a node, agent or prompt are dropped.
func ParseSuggestions(text string) ([]Suggestion, error) {
	candidate, ok := extractArray(text)
	if !ok {
		return nil, ErrNoSuggestions
	}

	var raw []Suggestion
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return nil, fmt.Errorf("pattern: parse suggestions: %w (repair failed: %v)", err, repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("pattern: parse repaired suggestions: %w", err)
		}
	}

	out := make([]Suggestion, 0, len(raw))
	for _, s := range raw {
		if s.NodeID == "" || s.AgentID == "" || strings.TrimSpace(s.SuggestedPrompt) == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// extractArray returns the JSON array inside text, preferring a fenced
// ```json block when present.
func extractArray(text string) (string, bool) {
	if _, after, found := strings.Cut(text, "```"); found {
		after = strings.TrimPrefix(after, "json")
		if body, _, closed := strings.Cut(after, "```"); closed {
			text = body
		} else {
			text = after
		}
	}

	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(text, "]")
	if end < start {
		// Truncated reply; let the repairer close the array.
		return text[start:], true
	}
	return text[start : end+1], true
}
