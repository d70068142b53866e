package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pipeline-orchestrator/internal/ports"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrSessionClosed  = errors.New("session closed")
	ErrBufferFull     = errors.New("session outbound buffer full")
	ErrNoFlusher      = errors.New("streaming unsupported")
)

type sseStream struct {
	outbound chan Contract
	done     chan struct{}
	once     sync.Once
}

func (s *sseStream) close() { s.once.Do(func() { close(s.done) }) }

// SSETransport delivers contracts as server-sent events. Each session has a
// buffered outbound queue drained by the request goroutine in Serve.
type SSETransport struct {
	mu        sync.RWMutex
	streams   map[string]*sseStream
	buffer    int
	heartbeat time.Duration
	logger    ports.Logger
}

func NewSSETransport(logger ports.Logger, buffer int, heartbeat time.Duration) *SSETransport {
	if buffer <= 0 {
		buffer = 32
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &SSETransport{
		streams:   map[string]*sseStream{},
		buffer:    buffer,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// Open prepares the outbound queue of a session. Opening an open session
// keeps the existing queue.
func (t *SSETransport) Open(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.streams[sessionID]; ok {
		return
	}
	t.streams[sessionID] = &sseStream{
		outbound: make(chan Contract, t.buffer),
		done:     make(chan struct{}),
	}
}

func (t *SSETransport) stream(sessionID string) (*sseStream, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.streams[sessionID]
	return s, ok
}

// Deliver queues c without blocking. A full queue means the client stopped
// reading and is reported as a failure.
func (t *SSETransport) Deliver(_ context.Context, sessionID string, c Contract) error {
	s, ok := t.stream(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbound <- c:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close ends the session's stream. Serve returns once it observes the close.
func (t *SSETransport) Close(sessionID string) {
	t.mu.Lock()
	s, ok := t.streams[sessionID]
	delete(t.streams, sessionID)
	t.mu.Unlock()
	if ok {
		s.close()
	}
}

// Serve streams the session's contracts to w until ctx is done or the session
// is closed. Idle connections get a comment line every heartbeat.
func (t *SSETransport) Serve(ctx context.Context, w http.ResponseWriter, sessionID string) error {
	s, ok := t.stream(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrNoFlusher
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "event: connected\ndata: {\"session_id\":%q}\n\n", sessionID)
	flusher.Flush()

	heartbeat := time.NewTicker(t.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(ctx, "sse client context done", "session_id", sessionID, "error", ctx.Err())
			return nil
		case <-s.done:
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		case c := <-s.outbound:
			raw, err := json.Marshal(c)
			if err != nil {
				t.logger.Warn(ctx, "failed to marshal contract", "session_id", sessionID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", c.Kind, raw); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
