package orchestrator

import (
	"fmt"
	"sync"
)

// progressBuffer is the per-subscriber channel capacity.
const progressBuffer = 256

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	ch chan ProgressEvent
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of
// the given size.
func NewProgressReporter(size int) *ProgressReporter {
	return &ProgressReporter{
		ch: make(chan ProgressEvent, size),
	}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full, the event is silently dropped.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	select {
	case pr.ch <- event:
	default:
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Close closes the progress event channel.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// broadcaster fans events out to any number of reporters. A slow subscriber
// loses events; it never stalls the run.
type broadcaster struct {
	mu   sync.Mutex
	subs map[*ProgressReporter]struct{}
}

func (b *broadcaster) subscribe() (<-chan ProgressEvent, func()) {
	pr := NewProgressReporter(progressBuffer)

	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[*ProgressReporter]struct{})
	}
	b.subs[pr] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return pr.Subscribe(), func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, pr)
			pr.Close()
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster) emit(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for pr := range b.subs {
		pr.Emit(ev)
	}
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
// Agent events without a status change worth printing return "".
func FormatProgress(event ProgressEvent) string {
	name := event.Node
	if name == "" {
		name = event.NodeID
	}
	switch event.Type {
	case ProgressRunStarted:
		return fmt.Sprintf("run started: %s", event.Message)
	case ProgressNodeStarted:
		return fmt.Sprintf("  ● %s...", name)
	case ProgressNodeCompleted:
		return fmt.Sprintf("  ✓ %s complete", name)
	case ProgressNodeFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", name, event.Message)
	case ProgressAgent:
		if event.Agent == nil || event.Message != "status" {
			return ""
		}
		return fmt.Sprintf("    %s: %s", event.Agent.Name, event.Agent.Status)
	case ProgressRunFinished:
		if event.Outcome != nil {
			return "run " + event.Outcome.String()
		}
		return "run finished"
	default:
		return fmt.Sprintf("  ? %s (unknown event)", name)
	}
}
