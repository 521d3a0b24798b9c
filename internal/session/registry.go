package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mudgate/mudgate/internal/identity"
	"github.com/mudgate/mudgate/internal/logutil"
)

// Registry is the process-wide table mapping external identities to live
// backend sessions. It enforces at-most-one-session-per-identity and owns
// session creation and removal; callers never touch the map directly.
type Registry struct {
	mapper *identity.Mapper
	cfg    Config

	mu      sync.Mutex
	entries map[string]*entry
}

// entry guards in-flight creation: it is installed under the registry
// mutex before the (slow) dial and login happen, so concurrent callers
// for the same identity wait on ready instead of racing a second session.
type entry struct {
	ready chan struct{}
	sess  *Session
	err   error
}

// NewRegistry creates a Registry deriving credentials with mapper and
// opening sessions with cfg.
func NewRegistry(mapper *identity.Mapper, cfg Config) *Registry {
	return &Registry{
		mapper:  mapper,
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
	}
}

// GetOrCreate returns the live session for the identity, creating one if
// none exists. The boolean reports whether this call created the session.
// Creation is atomic per identity: of N concurrent callers exactly one
// dials and authenticates, the rest share its result.
func (r *Registry) GetOrCreate(ctx context.Context, ident string) (*Session, bool, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[ident]
		if !ok {
			e = &entry{ready: make(chan struct{})}
			r.entries[ident] = e
			r.mu.Unlock()
			return r.create(ctx, ident, e)
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}

		if e.err != nil {
			return nil, false, e.err
		}
		if e.sess.State() != StateClosed {
			return e.sess, false, nil
		}

		// Stale entry for a session that closed before its watcher
		// removed it; drop it and retry.
		r.remove(ident, e)
	}
}

func (r *Registry) create(ctx context.Context, ident string, e *entry) (*Session, bool, error) {
	creds := r.mapper.Derive(ident)

	sess, err := Open(ctx, ident, creds, r.cfg)
	if err == nil {
		err = sess.Login(ctx, creds)
	}
	if err != nil {
		if sess != nil {
			sess.Close()
		}
		e.err = err
		close(e.ready)
		r.remove(ident, e)
		return nil, false, err
	}

	e.sess = sess
	close(e.ready)
	go r.watch(ident, e, sess)

	log.Printf("[registry] session %s created for identity %s (account %s)",
		sess.ID, logutil.Sanitize(ident), sess.Account)
	return sess, true, nil
}

// watch removes the registry entry when its session closes. Removal on
// closure is the only path out of the map besides CloseAll, which keeps
// the at-most-one-live-session invariant with the creation path.
func (r *Registry) watch(ident string, e *entry, sess *Session) {
	<-sess.Done()
	r.remove(ident, e)
	if err := sess.Err(); err != nil {
		log.Printf("[registry] session %s for identity %s closed: %v",
			sess.ID, logutil.Sanitize(ident), err)
	} else {
		log.Printf("[registry] session %s for identity %s closed",
			sess.ID, logutil.Sanitize(ident))
	}
}

// remove deletes the entry only if it is still the registered one, so a
// late watcher cannot evict a successor session.
func (r *Registry) remove(ident string, e *entry) {
	r.mu.Lock()
	if r.entries[ident] == e {
		delete(r.entries, ident)
	}
	r.mu.Unlock()
}

// Get returns the live session for an identity, if any.
func (r *Registry) Get(ident string) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[ident]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil || e.sess.State() == StateClosed {
		return nil, false
	}
	return e.sess, true
}

// List returns all live sessions, for the admin API.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, e := range r.entries {
		select {
		case <-e.ready:
			if e.err == nil && e.sess.State() != StateClosed {
				out = append(out, e.sess)
			}
		default:
		}
	}
	return out
}

// Len returns the number of registered identities, including in-flight
// creations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CleanupIdle closes sessions with no activity for longer than maxIdle
// and returns how many were closed. Removal happens via each session's
// watcher.
func (r *Registry) CleanupIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxIdle)

	closed := 0
	for _, sess := range r.List() {
		if sess.LastActivity().Before(cutoff) {
			log.Printf("[registry] closing idle session %s (identity %s, idle since %s)",
				sess.ID, logutil.Sanitize(sess.Identity), sess.LastActivity().Format(time.RFC3339))
			sess.Close()
			closed++
		}
	}
	return closed
}

// CloseAll gracefully tears down every live session at shutdown, waiting
// briefly for their teardown to complete.
func (r *Registry) CloseAll() {
	sessions := r.List()
	for _, sess := range sessions {
		sess.Close()
	}

	deadline := time.After(3 * time.Second)
	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-deadline:
			return
		}
	}
	log.Printf("[registry] all sessions closed (%d total)", len(sessions))
}
