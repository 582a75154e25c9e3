package patternsvc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping the given ResponseWriter.
// Writes are buffered if the ResponseWriter does not implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{
		w:       w,
		flusher: f,
	}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// WriteEvent writes the event as a single frame:
//
//	data: {json}\n\n
func (sw *SSEWriter) WriteEvent(event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// ReadEvents reads SSE frames from body and delivers them on the returned
// channel. The channel is closed after a result or error frame, when the body
// is exhausted or fails, or when ctx is cancelled. The body is closed when
// reading finishes.
//
// Format rules:
//   - "data: " (or "data:") lines carry the JSON payload.
//   - Lines starting with ":" are comments.
//   - An empty line ends the event; multiple data lines are joined with newlines.
//   - Malformed JSON yields a StreamEvent with Err set; reading continues.
//   - A read error yields a final StreamEvent with Err set.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		// Unblock the scanner when the context ends.
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var dataBuf strings.Builder

		flush := func() bool {
			if dataBuf.Len() == 0 {
				return true
			}
			raw := dataBuf.String()
			dataBuf.Reset()
			return emit(ctx, ch, raw)
		}

		for scanner.Scan() {
			line := scanner.Text()

			switch {
			case line == "":
				if !flush() {
					return
				}

			case strings.HasPrefix(line, ":"):
				// Comment line.

			case strings.HasPrefix(line, "data:"):
				payload := strings.TrimPrefix(line, "data:")
				payload = strings.TrimPrefix(payload, " ")
				if dataBuf.Len() > 0 {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(payload)

			default:
				// Unknown field, ignored.
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			sendEvent(ctx, ch, StreamEvent{Err: fmt.Errorf("sse: read stream: %w", err)})
			return
		}
		flush()
	}()
	return ch
}

// emit unmarshals raw into a StreamEvent and sends it on ch. It reports
// whether reading should continue.
func emit(ctx context.Context, ch chan<- StreamEvent, raw string) bool {
	var ev StreamEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		ev = StreamEvent{Err: fmt.Errorf("sse: unmarshal event: %w", err)}
	}
	if !sendEvent(ctx, ch, ev) {
		return false
	}
	return ev.Type != EventResult && ev.Type != EventError
}

func sendEvent(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
