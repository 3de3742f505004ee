// Package stream relays generated text fragments to an HTTP client as they
// are produced.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/visivo/backend/pkg/utils"
)

var (
	// ErrNotStarted means the source failed before headers were committed; the
	// caller can still answer with an error response.
	ErrNotStarted = errors.New("stream failed before first fragment")
	// ErrInterrupted means the source failed after headers were committed; the
	// connection can only be aborted.
	ErrInterrupted = errors.New("stream interrupted")
	// ErrStreamingUnsupported is returned when the writer cannot flush.
	ErrStreamingUnsupported = errors.New("streaming unsupported")
)

// FragmentSource produces text fragments in order. Recv returns io.EOF once
// the producer has completed.
type FragmentSource interface {
	Recv() (string, error)
	Close()
}

type messageSource struct {
	sr *schema.StreamReader[*schema.Message]
}

// FromMessages adapts an eino message stream, skipping chunks without text.
func FromMessages(sr *schema.StreamReader[*schema.Message]) FragmentSource {
	return &messageSource{sr: sr}
}

func (s *messageSource) Recv() (string, error) {
	for {
		msg, err := s.sr.Recv()
		if err != nil {
			return "", err
		}
		if msg != nil && msg.Content != "" {
			return msg.Content, nil
		}
	}
}

func (s *messageSource) Close() {
	s.sr.Close()
}

// Recorder receives relay metrics.
type Recorder interface {
	FragmentRelayed(ctx context.Context)
	RelayFinished(ctx context.Context, outcome string)
}

// State is the relay phase.
type State int

const (
	StateOpen State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Framing selects the wire format of the relayed body.
type Framing int

const (
	// PlainText writes fragments back to back as text/plain.
	PlainText Framing = iota
	// EventStream wraps each fragment in an SSE "delta" event.
	EventStream
)

// FramingFor picks EventStream when the client asks for text/event-stream.
func FramingFor(r *http.Request) Framing {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return EventStream
	}
	return PlainText
}

// Relay moves fragments from one source to one response. It is used once.
type Relay struct {
	source    FragmentSource
	framing   Framing
	recorder  Recorder
	state     State
	committed bool
	fragments int
}

// New creates a relay for a single request.
func New(source FragmentSource, framing Framing, recorder Recorder) *Relay {
	return &Relay{source: source, framing: framing, recorder: recorder}
}

// State reports the current state.
func (r *Relay) State() State { return r.state }

// Committed reports whether the status line and headers have been sent.
func (r *Relay) Committed() bool { return r.committed }

// Fragments returns the number of fragments written.
func (r *Relay) Fragments() int { return r.fragments }

// Run drains the source into w, flushing after every fragment. A failure
// before the first fragment is returned wrapped in ErrNotStarted with nothing
// written; a failure afterwards is wrapped in ErrInterrupted.
func (r *Relay) Run(ctx context.Context, w http.ResponseWriter) error {
	if r.state != StateOpen {
		return fmt.Errorf("relay already %s", r.state)
	}
	defer r.source.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return r.fail(ctx, fmt.Errorf("%w: %w", ErrNotStarted, ErrStreamingUnsupported))
	}

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, r.wrap(err))
		}

		fragment, err := r.source.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if r.committed && r.framing == EventStream {
				utils.SendSSEEvent(w, flusher, "error", map[string]string{"error": "stream interrupted"})
			}
			return r.fail(ctx, r.wrap(err))
		}

		r.commit(w)
		if err := r.write(w, flusher, fragment); err != nil {
			return r.fail(ctx, fmt.Errorf("%w: %w", ErrInterrupted, err))
		}
		r.fragments++
		if r.recorder != nil {
			r.recorder.FragmentRelayed(ctx)
		}
	}

	r.commit(w)
	if r.framing == EventStream {
		utils.SendSSEEvent(w, flusher, "done", map[string]int{"fragments": r.fragments})
	} else {
		flusher.Flush()
	}

	r.state = StateCompleted
	if r.recorder != nil {
		r.recorder.RelayFinished(ctx, StateCompleted.String())
	}
	return nil
}

func (r *Relay) commit(w http.ResponseWriter) {
	if r.committed {
		return
	}
	r.committed = true

	if r.framing == EventStream {
		utils.SetupSSEHeaders(w)
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
}

func (r *Relay) write(w http.ResponseWriter, flusher http.Flusher, fragment string) error {
	if r.framing == EventStream {
		utils.SendSSEEvent(w, flusher, "delta", map[string]string{"content": fragment})
		return nil
	}
	if _, err := io.WriteString(w, fragment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (r *Relay) wrap(err error) error {
	if r.committed {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return fmt.Errorf("%w: %w", ErrNotStarted, err)
}

func (r *Relay) fail(ctx context.Context, err error) error {
	r.state = StateFailed
	log.Printf("[relay] failed after %d fragments: %v", r.fragments, err)
	if r.recorder != nil {
		r.recorder.RelayFinished(ctx, StateFailed.String())
	}
	return err
}
