package web

import (
	"context"
	"sync"
	"time"

	"birthdayadmin/internal/dashboard"
	"birthdayadmin/internal/metrics"
)

// Registry holds one dashboard session per open page, keyed by cookie.
// Sessions idle for longer than the TTL are closed by Prune.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  func() *dashboard.Session
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	sess *dashboard.Session
	seen time.Time
}

// NewRegistry creates a registry that builds sessions with factory.
func NewRegistry(factory func() *dashboard.Session, idle time.Duration) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*entry),
		factory:  factory,
		idle:     idle,
		now:      time.Now,
	}
}

// Create starts a new session.
func (r *Registry) Create() *dashboard.Session {
	s := r.factory()
	r.mu.Lock()
	r.sessions[s.ID] = &entry{sess: s, seen: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.Sessions.Set(float64(n))
	return s
}

// Get returns a live session and marks it as used.
func (r *Registry) Get(id string) (*dashboard.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.seen = r.now()
	return e.sess, true
}

// Remove closes and forgets a session. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		e.sess.Close()
	}
	metrics.Sessions.Set(float64(n))
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Prune closes sessions idle past the TTL and returns how many it closed.
func (r *Registry) Prune() int {
	cutoff := r.now().Add(-r.idle)
	var stale []*dashboard.Session
	r.mu.Lock()
	for id, e := range r.sessions {
		if e.seen.Before(cutoff) {
			stale = append(stale, e.sess)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	metrics.Sessions.Set(float64(n))
	return len(stale)
}

// Run prunes periodically until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.Prune()
		case <-ctx.Done():
			r.CloseAll()
			return
		}
	}
}

// CloseAll closes and forgets every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range all {
		e.sess.Close()
	}
	metrics.Sessions.Set(0)
}
