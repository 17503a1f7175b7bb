package engine

import (
	"context"
	"sync"
)

// Supervisor enforces run-level concurrency: at most one in-flight run
// per concurrency key. Starting a newer run with a key cancels the older
// run's context; the older run's in-flight work is simply abandoned, not
// drained.
//
// The newer run's environment is untouched by supersession - unit
// environments are keyed by run token, so the two runs never share a
// directory.
type Supervisor struct {
	mu       sync.Mutex
	inflight map[string]*inflightRun
}

type inflightRun struct {
	token  string
	cancel context.CancelFunc
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{inflight: make(map[string]*inflightRun)}
}

// Begin registers a run under a concurrency key and returns its context.
//
// If an older run holds the key, its context is cancelled and its token
// returned as superseded, so the caller can mark it in the store. The
// returned done func releases the key; it is a no-op if this run was
// itself superseded in the meantime.
func (s *Supervisor) Begin(ctx context.Context, key, token string) (runCtx context.Context, superseded string, done func()) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
		superseded = prev.token
	}
	entry := &inflightRun{token: token, cancel: cancel}
	s.inflight[key] = entry
	s.mu.Unlock()

	done = func() {
		s.mu.Lock()
		if cur, ok := s.inflight[key]; ok && cur == entry {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		cancel()
	}
	return runCtx, superseded, done
}

// Inflight returns the token currently holding a key, or "".
func (s *Supervisor) Inflight(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.inflight[key]; ok {
		return cur.token
	}
	return ""
}
