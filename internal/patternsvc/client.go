package patternsvc

import (
	"context"
	"encoding/json"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// Client is the interface for calling the pattern execution service.
type Client interface {
	// Execute runs a pattern and waits for the final result document.
	Execute(ctx context.Context, kind graph.PatternKind, req Request) (json.RawMessage, error)

	// Stream runs a pattern and delivers its frames on the returned channel.
	// The channel is closed after a result or error frame, when the body ends,
	// or when ctx is cancelled.
	Stream(ctx context.Context, kind graph.PatternKind, req Request) (<-chan StreamEvent, error)
}
