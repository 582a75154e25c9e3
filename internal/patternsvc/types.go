// Package patternsvc is the boundary with the pattern execution service: the
// wire types, an HTTP client for synchronous and streaming calls, and a
// server that hosts a Handler behind the same endpoints.
package patternsvc

import (
	"encoding/json"
	"fmt"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// AgentSpec describes one agent in a request.
type AgentSpec struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Role         string `json:"role"`
}

// Request is the body of every pattern endpoint. Only the fields relevant to
// the target pattern are set.
type Request struct {
	Task   string      `json:"task"`
	Agents []AgentSpec `json:"agents"`

	// sequential
	AgentSequence []string `json:"agent_sequence,omitempty"`

	// parallel
	AgentNames []string `json:"agent_names,omitempty"`
	Aggregator string   `json:"aggregator,omitempty"`

	// debate
	Debaters  []string `json:"debaters,omitempty"`
	Moderator string   `json:"moderator,omitempty"`
	Rounds    int      `json:"rounds,omitempty"`

	// hierarchical
	Manager string   `json:"manager,omitempty"`
	Workers []string `json:"workers,omitempty"`

	// routing
	Router      string   `json:"router,omitempty"`
	Specialists []string `json:"specialists,omitempty"`

	Repository string `json:"repository,omitempty"`
}

// Agent returns the spec of the named agent.
func (r Request) Agent(name string) (AgentSpec, bool) {
	for _, a := range r.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentSpec{}, false
}

// EventType discriminates stream frames.
type EventType string

const (
	EventStatus EventType = "status"
	EventChunk  EventType = "chunk"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Agent status labels carried by status events.
const (
	StatusWaiting      = "waiting"
	StatusExecuting    = "executing"
	StatusDelegating   = "delegating"
	StatusSynthesizing = "synthesizing"
	StatusAggregating  = "aggregating"
	StatusRouting      = "routing"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// StreamEvent is one frame of a streaming response.
type StreamEvent struct {
	Type       EventType       `json:"type"`
	Agent      string          `json:"agent,omitempty"`
	Data       string          `json:"data,omitempty"`
	DurationMS *int64          `json:"duration_ms,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// Err is set if the stream could not be read or a frame was malformed.
	Err error `json:"-"`
}

// StatusEvent builds a status frame.
func StatusEvent(agent, label string) StreamEvent {
	return StreamEvent{Type: EventStatus, Agent: agent, Data: label}
}

// CompletedEvent builds a completed status frame carrying the agent's duration.
func CompletedEvent(agent string, durationMS int64) StreamEvent {
	return StreamEvent{Type: EventStatus, Agent: agent, Data: StatusCompleted, DurationMS: &durationMS}
}

// ChunkEvent builds a chunk frame.
func ChunkEvent(agent, text string) StreamEvent {
	return StreamEvent{Type: EventChunk, Agent: agent, Data: text}
}

// ServiceError is a failure reported by the service, either as a non-2xx
// response or as an error frame on a stream.
type ServiceError struct {
	Pattern    graph.PatternKind
	StatusCode int // 0 for error frames
	Message    string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("patternsvc: %s: HTTP %d: %s", e.Pattern, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("patternsvc: %s: %s", e.Pattern, e.Message)
}

// errorBody is the JSON shape of error responses.
type errorBody struct {
	Error string `json:"error"`
}
