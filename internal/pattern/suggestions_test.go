package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuggestions(t *testing.T) {
	want := []Suggestion{{NodeID: "n1", AgentID: "a1", SuggestedPrompt: "Be concise.", Reason: "too long"}}

	tests := []struct {
		name string
		text string
		want []Suggestion
	}{
		{
			name: "bare array",
			text: `[{"node_id": "n1", "agent_id": "a1", "suggested_prompt": "Be concise.", "reason": "too long"}]`,
			want: want,
		},
		{
			name: "prose around array",
			text: "Here you go:\n[{\"node_id\": \"n1\", \"agent_id\": \"a1\", \"suggested_prompt\": \"Be concise.\", \"reason\": \"too long\"}]\nHope it helps.",
			want: want,
		},
		{
			name: "fenced block",
			text: "```json\n[{\"node_id\": \"n1\", \"agent_id\": \"a1\", \"suggested_prompt\": \"Be concise.\", \"reason\": \"too long\"}]\n```",
			want: want,
		},
		{
			name: "trailing comma repaired",
			text: `[{"node_id": "n1", "agent_id": "a1", "suggested_prompt": "Be concise.", "reason": "too long",},]`,
			want: want,
		},
		{
			name: "empty array",
			text: "Nothing to change: []",
			want: []Suggestion{},
		},
		{
			name: "incomplete entries dropped",
			text: `[{"node_id": "n1", "agent_id": "a1", "suggested_prompt": "Be concise.", "reason": "too long"}, {"node_id": "n2", "suggested_prompt": "x"}]`,
			want: want,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSuggestions(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSuggestions_NoArray(t *testing.T) {
	_, err := ParseSuggestions("The prompts look good to me.")
	require.ErrorIs(t, err, ErrNoSuggestions)
}
