package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// StreamState is the FragmentStream phase. Open moves to exactly one
// terminal state.
type StreamState int

const (
	StreamOpen StreamState = iota
	StreamCompleted
	StreamFailed
)

const readChunk = 4 << 10

// FragmentStream is a pull iterator over a streamed reply body. Fragments
// follow transport reads, so their boundaries carry no meaning; only the
// concatenation does. The stream cannot be replayed.
type FragmentStream struct {
	ctx     context.Context
	body    io.ReadCloser
	buf     []byte
	pending []byte
	current string
	state   StreamState
	err     error
}

func newFragmentStream(ctx context.Context, body io.ReadCloser) *FragmentStream {
	return &FragmentStream{ctx: ctx, body: body, buf: make([]byte, readChunk)}
}

// Next blocks until the next fragment is available. It returns false once
// the stream has completed or failed.
func (s *FragmentStream) Next() bool {
	for s.state == StreamOpen {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			data := append(s.pending, s.buf[:n]...)
			s.pending = nil
			if err == nil {
				data, s.pending = splitIncompleteRune(data)
			}
			if len(data) > 0 {
				s.current = string(data)
				if err != nil {
					s.finish(err)
				}
				return true
			}
		}
		if err != nil {
			s.finish(err)
			if len(s.pending) > 0 {
				s.current = string(s.pending)
				s.pending = nil
				return true
			}
			return false
		}
	}
	return false
}

// Fragment returns the fragment produced by the last successful Next.
func (s *FragmentStream) Fragment() string { return s.current }

// State returns the current phase.
func (s *FragmentStream) State() StreamState { return s.state }

// Err returns nil after a clean completion. A body that ends abruptly yields
// an error wrapping ErrStreamInterrupted.
func (s *FragmentStream) Err() error { return s.err }

// Close releases the connection. Closing an open stream marks it failed.
func (s *FragmentStream) Close() error {
	if s.state == StreamOpen {
		s.state = StreamFailed
		s.err = context.Canceled
	}
	return s.body.Close()
}

func (s *FragmentStream) finish(err error) {
	if s.state != StreamOpen {
		return
	}
	if errors.Is(err, io.EOF) {
		s.state = StreamCompleted
		return
	}
	s.state = StreamFailed
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = ctxErr
		return
	}
	s.err = fmt.Errorf("%w: %w", ErrStreamInterrupted, err)
}

// splitIncompleteRune holds back a trailing partial UTF-8 sequence so that
// a multi-byte character split across reads lands in one fragment.
func splitIncompleteRune(data []byte) ([]byte, []byte) {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if !utf8.FullRune(data[len(data)-i:]) {
			return data[:len(data)-i], append([]byte(nil), data[len(data)-i:]...)
		}
		break
	}
	return data, nil
}
