package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// writeOp is a single queued mutation, processed strictly in the order it was enqueued.
type writeOp struct {
	key    string
	value  string
	delete bool
}

// Wrapper is a write-through cache over a Store. Reads are synchronous against
// the cache; writes update the cache immediately and are appended to a single
// serial queue so the backing Store observes them in the same order they were
// issued, even though the Store call itself happens on a background goroutine.
//
// This is the StoreWrapper: a crash may lose trailing queued writes, but it can
// never reorder or drop an earlier write while persisting a later one.
type Wrapper struct {
	store  Store
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]string

	queue  chan writeOp
	done   chan struct{}
	closed bool
}

// NewWrapper wraps store with a cache and starts its serial writer goroutine.
func NewWrapper(store Store, logger *slog.Logger) *Wrapper {
	w := &Wrapper{
		store:  store,
		logger: logger,
		cache:  make(map[string]string),
		queue:  make(chan writeOp, 256),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Wrapper) run() {
	defer close(w.done)
	for op := range w.queue {
		var err error
		if op.delete {
			err = w.store.Delete(context.Background(), op.key)
		} else {
			err = w.store.Put(context.Background(), op.key, op.value)
		}
		if err != nil {
			w.logger.Error("store write failed", "key", op.key, "error", err)
		}
	}
}

// Load fetches key from the backing store into the cache if it is not already
// cached. Idempotent: a key already present in the cache (because a writer set
// it concurrently) is left untouched — "writer wins" over a stale fetch.
func (w *Wrapper) Load(ctx context.Context, key string) error {
	w.mu.RLock()
	_, cached := w.cache[key]
	w.mu.RUnlock()
	if cached {
		return nil
	}

	value, ok, err := w.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("store: load %s: %w", key, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, raced := w.cache[key]; raced {
		// A concurrent Set populated the cache while the fetch was in flight.
		return nil
	}
	if ok {
		w.cache[key] = value
	}
	return nil
}

// LoadObject loads key and JSON-decodes it into out. out must be a pointer.
// Returns ok=false if the key is absent after loading.
func (w *Wrapper) LoadObject(ctx context.Context, key string, out any) (ok bool, err error) {
	if err := w.Load(ctx, key); err != nil {
		return false, err
	}
	raw, present := w.Get(key)
	if !present {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// Get returns the cached value for key, if present. It never touches the
// backing store; call Load first.
func (w *Wrapper) Get(key string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.cache[key]
	return v, ok
}

// Set updates the cache immediately and enqueues the write on the serial tail.
func (w *Wrapper) Set(key, value string) {
	w.mu.Lock()
	w.cache[key] = value
	w.mu.Unlock()
	w.enqueue(writeOp{key: key, value: value})
}

// SetObject JSON-encodes v and calls Set.
func (w *Wrapper) SetObject(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	w.Set(key, string(b))
	return nil
}

// SetCache writes the cache only, without queuing a persistent write. Used as
// an optimistic lock, e.g. marking a client-channel creation in flight so a
// concurrent caller observes it without waiting on a store round-trip.
func (w *Wrapper) SetCache(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache[key] = value
}

// Delete removes key from the cache and enqueues the delete.
func (w *Wrapper) Delete(key string) {
	w.mu.Lock()
	delete(w.cache, key)
	w.mu.Unlock()
	w.enqueue(writeOp{key: key, delete: true})
}

func (w *Wrapper) enqueue(op writeOp) {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		w.logger.Warn("store write dropped after close", "key", op.key)
		return
	}
	w.queue <- op
}

// Close drains pending writes and stops the writer goroutine. Safe to call once.
func (w *Wrapper) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	close(w.queue)
	<-w.done
}
