package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRegistry keeps sessions in a map guarded by one mutex. Expired
// entries are dropped when accessed; Sweep and StartJanitor only reclaim
// memory earlier.
type MemoryRegistry struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryRegistry(opts Options) *MemoryRegistry {
	return &MemoryRegistry{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

func (r *MemoryRegistry) Create(_ context.Context, in NewSession) (*Session, error) {
	if err := validateNew(in); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := r.opts.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sess := r.opts.newSession(id, in)

		r.mu.Lock()
		if _, taken := r.sessions[id]; !taken {
			r.sessions[id] = sess
			r.mu.Unlock()
			return sess.clone(), nil
		}
		r.mu.Unlock()
	}
	return nil, fmt.Errorf("generate session id: %d collisions", maxCreateAttempts)
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (*Session, error) {
	now := r.opts.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.liveLocked(id, now)
	if err != nil {
		return nil, err
	}
	return sess.clone(), nil
}

func (r *MemoryRegistry) Touch(_ context.Context, id string) (*Session, error) {
	now := r.opts.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, err := r.liveLocked(id, now)
	if err != nil {
		return nil, err
	}
	sess.ExpiresAt = r.opts.expiry(sess.CreatedAt, now)
	return sess.clone(), nil
}

func (r *MemoryRegistry) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes every expired entry and returns how many were removed.
func (r *MemoryRegistry) Sweep() int {
	now := r.opts.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if sess.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// StartJanitor runs Sweep every interval until ctx is done.
func (r *MemoryRegistry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

func (r *MemoryRegistry) liveLocked(id string, now time.Time) (*Session, error) {
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Expired(now) {
		delete(r.sessions, id)
		return nil, ErrNotFound
	}
	return sess, nil
}
