package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hexwin/internal/logging"
)

// Locked serializes access to a source that is reached from more than one
// goroutine, such as kernel callbacks and a shutdown handler.
type Locked struct {
	mu  sync.Mutex
	src ByteSource
}

func NewLocked(src ByteSource) *Locked {
	return &Locked{src: src}
}

// Do runs fn with exclusive access to the source.
func (l *Locked) Do(fn func(ByteSource) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.src)
}

func (l *Locked) Modified() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Modified()
}

func (l *Locked) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Flush()
}

func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Close()
}

// Flusher is what the registry needs from a source.
type Flusher interface {
	Modified() bool
	Flush() error
	Close() error
}

// Registry tracks open sources by name so that pending edits can be
// written back on shutdown.
type Registry struct {
	sources map[string]Flusher
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Flusher)}
}

func (r *Registry) Register(name string, src Flusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = src
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, name)
}

// snapshot copies the entries so no lock is held during I/O.
func (r *Registry) snapshot() ([]string, map[string]Flusher) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	srcs := make(map[string]Flusher, len(r.sources))
	for name, src := range r.sources {
		names = append(names, name)
		srcs[name] = src
	}
	sort.Strings(names)
	return names, srcs
}

// FlushAll flushes every modified source. It returns how many were
// flushed and the failures.
func (r *Registry) FlushAll(ctx context.Context) (int, []error) {
	names, srcs := r.snapshot()

	var errs []error
	flushed := 0
	for _, name := range names {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("flush cancelled before %s: %w", name, ctx.Err()))
			return flushed, errs
		default:
		}

		src := srcs[name]
		if !src.Modified() {
			continue
		}
		logging.Debugf("Flushing modified source: %s", name)
		if err := src.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", name, err))
			continue
		}
		flushed++
	}
	return flushed, errs
}

// CloseAll closes and unregisters every source. Sources whose close fails
// stay registered.
func (r *Registry) CloseAll() []error {
	names, srcs := r.snapshot()

	var errs []error
	for _, name := range names {
		if err := srcs[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			continue
		}
		r.Unregister(name)
	}
	return errs
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
