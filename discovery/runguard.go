package discovery

import "sync"

// RunGuard allows at most one run per key at a time within the process
type RunGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewRunGuard() *RunGuard {
	return &RunGuard{
		running: make(map[string]struct{}),
	}
}

// defaultRunGuard is shared by engines that were not given their own guard,
// so that two engines for the same account still exclude each other
var defaultRunGuard = NewRunGuard()

// TryLock marks key as running. It returns false if key is already running.
func (g *RunGuard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[key]; ok {
		return false
	}
	g.running[key] = struct{}{}
	return true
}

func (g *RunGuard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.running, key)
}

// Running reports whether key is currently locked
func (g *RunGuard) Running(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.running[key]
	return ok
}
