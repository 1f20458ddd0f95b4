package locks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ContentionError reports a lock that could not be acquired within the
// bounded wait. It is retryable: nothing was modified and no partial lock
// set is held when it is returned.
type ContentionError struct {
	Path    string
	Timeout time.Duration
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("could not lock %s within %s", e.Path, e.Timeout)
}

func (e *ContentionError) Retryable() bool { return true }

// Manager hands out per-file advisory locks inside one process. Locks are
// only taken for the commit step, never across a generation call.
type Manager struct {
	mu      sync.Mutex
	sems    map[string]chan struct{}
	timeout time.Duration
}

func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{sems: map[string]chan struct{}{}, timeout: timeout}
}

func (m *Manager) sem(path string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sems[path]
	if !ok {
		s = make(chan struct{}, 1)
		m.sems[path] = s
	}
	return s
}

// AcquireAll locks every path or none. Paths are taken in sorted order so
// two commits contending on overlapping sets cannot deadlock; the wait for
// the whole set is bounded by the manager timeout.
func (m *Manager) AcquireAll(ctx context.Context, paths []string) (*Lease, error) {
	unique := map[string]bool{}
	for _, p := range paths {
		unique[p] = true
	}
	ordered := make([]string, 0, len(unique))
	for p := range unique {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()

	var held []string
	release := func() {
		for _, p := range held {
			<-m.sem(p)
		}
	}

	for _, p := range ordered {
		select {
		case m.sem(p) <- struct{}{}:
			held = append(held, p)
		case <-deadline.C:
			release()
			return nil, &ContentionError{Path: p, Timeout: m.timeout}
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return &Lease{m: m, paths: ordered}, nil
}

// Lease releases the held paths exactly once.
type Lease struct {
	m     *Manager
	paths []string
	once  sync.Once
}

func (l *Lease) Release() {
	l.once.Do(func() {
		for _, p := range l.paths {
			<-l.m.sem(p)
		}
	})
}
