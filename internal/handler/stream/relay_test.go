package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

type sliceSource struct {
	fragments []string
	err       error
	closed    bool
}

func (s *sliceSource) Recv() (string, error) {
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *sliceSource) Close() { s.closed = true }

// flushRecorder snapshots the body at every Flush.
type flushRecorder struct {
	*httptest.ResponseRecorder
	snapshots []string
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (f *flushRecorder) Flush() {
	f.snapshots = append(f.snapshots, f.Body.String())
	f.ResponseRecorder.Flush()
}

type countingRecorder struct {
	fragments int
	outcomes  []string
}

func (c *countingRecorder) FragmentRelayed(context.Context) { c.fragments++ }

func (c *countingRecorder) RelayFinished(_ context.Context, outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func TestRelayWritesFragmentsInOrderWithFlush(t *testing.T) {
	src := &sliceSource{fragments: []string{"Hel", "lo, ", "world"}}
	rec := newFlushRecorder()
	metrics := &countingRecorder{}

	relay := New(src, PlainText, metrics)
	if err := relay.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.Body.String(); got != "Hello, world" {
		t.Fatalf("body = %q", got)
	}
	want := []string{"Hel", "Hello, ", "Hello, world", "Hello, world"}
	if !reflect.DeepEqual(rec.snapshots, want) {
		t.Fatalf("flush snapshots = %q, want %q", rec.snapshots, want)
	}
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected status/headers: %d %v", rec.Code, rec.Header())
	}
	if relay.State() != StateCompleted || relay.Fragments() != 3 || !src.closed {
		t.Fatalf("state=%s fragments=%d closed=%v", relay.State(), relay.Fragments(), src.closed)
	}
	if metrics.fragments != 3 || !reflect.DeepEqual(metrics.outcomes, []string{"completed"}) {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestRelayEmptyStreamCompletesWithEmptyBody(t *testing.T) {
	rec := newFlushRecorder()
	relay := New(&sliceSource{}, PlainText, nil)

	if err := relay.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
	if !relay.Committed() || relay.State() != StateCompleted {
		t.Fatalf("committed=%v state=%s", relay.Committed(), relay.State())
	}
}

func TestRelayFailureBeforeFirstFragment(t *testing.T) {
	upstream := errors.New("connection refused")
	rec := newFlushRecorder()
	relay := New(&sliceSource{err: upstream}, PlainText, nil)

	err := relay.Run(context.Background(), rec)
	if !errors.Is(err, ErrNotStarted) || !errors.Is(err, upstream) {
		t.Fatalf("expected ErrNotStarted wrapping upstream, got %v", err)
	}
	if relay.Committed() || rec.Body.Len() != 0 || len(rec.snapshots) != 0 {
		t.Fatalf("nothing should be written, got %q", rec.Body.String())
	}
	if relay.State() != StateFailed {
		t.Fatalf("state = %s", relay.State())
	}
}

func TestRelayFailureAfterCommitKeepsDeliveredFragments(t *testing.T) {
	upstream := errors.New("upstream reset")
	rec := newFlushRecorder()
	metrics := &countingRecorder{}
	relay := New(&sliceSource{fragments: []string{"partial ", "answer"}, err: upstream}, PlainText, metrics)

	err := relay.Run(context.Background(), rec)
	if !errors.Is(err, ErrInterrupted) || !errors.Is(err, upstream) {
		t.Fatalf("expected ErrInterrupted wrapping upstream, got %v", err)
	}
	if got := rec.Body.String(); got != "partial answer" {
		t.Fatalf("delivered fragments must stay, body = %q", got)
	}
	if !reflect.DeepEqual(metrics.outcomes, []string{"failed"}) {
		t.Fatalf("outcomes = %v", metrics.outcomes)
	}
}

func TestRelayEventStreamFraming(t *testing.T) {
	rec := newFlushRecorder()
	relay := New(&sliceSource{fragments: []string{"a", "b"}}, EventStream, nil)

	if err := relay.Run(context.Background(), rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "event: delta\ndata: {\"content\":\"a\"}\n\n" +
		"event: delta\ndata: {\"content\":\"b\"}\n\n" +
		"event: done\ndata: {\"fragments\":2}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestRelayEventStreamErrorEvent(t *testing.T) {
	rec := newFlushRecorder()
	relay := New(&sliceSource{fragments: []string{"a"}, err: errors.New("boom")}, EventStream, nil)

	if err := relay.Run(context.Background(), rec); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if !strings.HasSuffix(rec.Body.String(), "event: error\ndata: {\"error\":\"stream interrupted\"}\n\n") {
		t.Fatalf("missing error event: %q", rec.Body.String())
	}
}

func TestRelayStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &sliceSource{fragments: []string{"never"}}
	err := New(src, PlainText, nil).Run(ctx, newFlushRecorder())
	if !errors.Is(err, ErrNotStarted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled before start, got %v", err)
	}
	if !src.closed {
		t.Fatal("source should be closed")
	}
}

func TestRelayRunsOnce(t *testing.T) {
	relay := New(&sliceSource{}, PlainText, nil)
	if err := relay.Run(context.Background(), newFlushRecorder()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := relay.Run(context.Background(), newFlushRecorder()); err == nil {
		t.Fatal("second Run should fail")
	}
}

func TestFromMessagesSkipsEmptyChunks(t *testing.T) {
	sr := schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("one", nil),
		schema.AssistantMessage("", nil),
		nil,
		schema.AssistantMessage("two", nil),
	})
	src := FromMessages(sr)
	defer src.Close()

	var got []string
	for {
		frag, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got = append(got, frag)
	}
	if !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Fatalf("fragments = %v", got)
	}
}

func TestFramingFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	if FramingFor(req) != PlainText {
		t.Fatal("default framing should be plain text")
	}
	req.Header.Set("Accept", "text/event-stream")
	if FramingFor(req) != EventStream {
		t.Fatal("expected event stream framing")
	}
}
