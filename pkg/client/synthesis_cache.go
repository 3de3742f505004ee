package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errSynthesisAborted = errors.New("synthesis aborted")

// AudioHandle is a local reference to synthesized audio.
type AudioHandle struct {
	URL  string
	Data []byte
}

// SynthesizeFunc produces audio for text.
type SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

type cacheEntry struct {
	ready  chan struct{}
	handle *AudioHandle
	err    error
}

// SynthesisCache maps exact text to audio handles for one session. Keys are
// compared byte for byte; nothing is normalized.
type SynthesisCache struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*cacheEntry
}

// NewSynthesisCache creates an empty cache.
func NewSynthesisCache() *SynthesisCache {
	return &SynthesisCache{entries: make(map[string]*cacheEntry)}
}

// Get returns the cached handle for text.
func (c *SynthesisCache) Get(text string) (*AudioHandle, bool) {
	c.mu.Lock()
	entry, ok := c.entries[text]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-entry.ready
	return entry.handle, entry.handle != nil
}

// GetOrSynthesize returns the handle for text, calling fn at most once per
// text. Concurrent callers for the same text share one call. A failed call
// is not cached.
func (c *SynthesisCache) GetOrSynthesize(ctx context.Context, text string, fn SynthesizeFunc) (*AudioHandle, error) {
	c.mu.Lock()
	if entry, ok := c.entries[text]; ok {
		c.mu.Unlock()
		<-entry.ready
		return entry.handle, entry.err
	}
	entry := &cacheEntry{ready: make(chan struct{})}
	c.entries[text] = entry
	c.order = append(c.order, text)
	c.mu.Unlock()

	c.fill(ctx, text, entry, fn)
	return entry.handle, entry.err
}

// fill runs fn for entry. Waiters are released even when fn panics; any
// entry left without a handle is dropped so a later call can retry.
func (c *SynthesisCache) fill(ctx context.Context, text string, entry *cacheEntry, fn SynthesizeFunc) {
	defer func() {
		if entry.handle == nil {
			if entry.err == nil {
				entry.err = errSynthesisAborted
			}
			c.forget(text)
		}
		close(entry.ready)
	}()

	data, err := fn(ctx, text)
	if err != nil {
		entry.err = err
		return
	}
	entry.handle = &AudioHandle{URL: "blob:visivo/" + uuid.NewString(), Data: data}
}

// Keys returns cached texts in insertion order.
func (c *SynthesisCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of cached texts.
func (c *SynthesisCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *SynthesisCache) forget(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, text)
	for i, k := range c.order {
		if k == text {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
