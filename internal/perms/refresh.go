// Package perms keeps employee permission lists fresh. Each token's list is
// seeded instantly from the decoded identity, then revalidated against the
// server in the background. A fetch result only commits while its token is
// still the tracked one, so a fetch resolving after logout cannot resurrect
// a cleared cache; any fetch failure clears the list rather than keeping
// stale grants.
package perms

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shaadicards/console/internal/authz"
)

// Fetcher revalidates a token's permission list against the server.
// *upstream.Client satisfies it.
type Fetcher interface {
	FetchPermissions(ctx context.Context, tok string) ([]string, error)
}

type entry struct {
	perms   []string
	done    chan struct{}
	expires time.Time
}

// Refresher caches one permission list per live token.
type Refresher struct {
	fetcher      Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRefresher constructs a Refresher. Entries are revalidated again after
// ttl (15 minutes when zero).
func NewRefresher(fetcher Fetcher, ttl time.Duration, logger *slog.Logger) *Refresher {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Refresher{
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: 10 * time.Second,
		logger:       logger,
		entries:      make(map[string]*entry),
	}
}

// Track makes sure the token has a tracked permission list: on first sight
// (or after the entry went stale) it seeds the list from seed and starts a
// background revalidation. An empty token clears nothing and tracks nothing.
func (r *Refresher) Track(tok string, seed []string) {
	if tok == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(tok)

	if cur, ok := r.entries[tok]; ok {
		if time.Now().Before(cur.expires) || !closed(cur.done) {
			return
		}
		// Stale entry: keep serving its list while the refresh runs.
		seed = cur.perms
	}

	e := &entry{
		perms:   append([]string(nil), seed...),
		done:    make(chan struct{}),
		expires: time.Now().Add(r.ttl),
	}
	r.entries[tok] = e
	go r.refresh(tok, e)
}

// sweepLocked drops settled entries whose ttl elapsed, so tokens that never
// come back (the employee torn down by an admin logout, a visitor who left)
// do not accumulate. The entry being tracked is left for Track's own stale
// handling; loading entries stay until their fetch resolves.
func (r *Refresher) sweepLocked(keep string) {
	now := time.Now()
	for tok, e := range r.entries {
		if tok == keep {
			continue
		}
		if now.After(e.expires) && closed(e.done) {
			delete(r.entries, tok)
		}
	}
}

// Forget drops the token's entry. An in-flight fetch for it will find the
// entry replaced and discard its result.
func (r *Refresher) Forget(tok string) {
	r.mu.Lock()
	delete(r.entries, tok)
	r.mu.Unlock()
}

// Wait blocks until the token's pending revalidation (if any) has resolved.
func (r *Refresher) Wait(ctx context.Context, tok string) error {
	r.mu.Lock()
	e, ok := r.entries[tok]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loading reports whether the token's list is still being revalidated.
func (r *Refresher) Loading(tok string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tok]
	return ok && !closed(e.done)
}

// Permissions returns a snapshot of the token's current permission list.
func (r *Refresher) Permissions(tok string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[tok]
	if !ok {
		return nil
	}
	return append([]string(nil), e.perms...)
}

// Can reports whether the token's refreshed list (or the identity's
// role-derived super status) satisfies perm. An empty requirement passes.
func (r *Refresher) Can(id *authz.Identity, tok, perm string) bool {
	if perm == "" {
		return true
	}
	if authz.IsSuperRole(id) {
		return true
	}
	return authz.Match(r.Permissions(tok), perm)
}

// CanAny reports whether at least one requirement is satisfied.
func (r *Refresher) CanAny(id *authz.Identity, tok string, perms ...string) bool {
	for _, p := range perms {
		if r.Can(id, tok, p) {
			return true
		}
	}
	return false
}

// CanAll reports whether every requirement is satisfied.
func (r *Refresher) CanAll(id *authz.Identity, tok string, perms ...string) bool {
	for _, p := range perms {
		if !r.Can(id, tok, p) {
			return false
		}
	}
	return true
}

func (r *Refresher) refresh(tok string, e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	fetched, err, _ := r.group.Do(tok, func() (any, error) {
		return r.fetcher.FetchPermissions(ctx, tok)
	})

	perms, _ := fetched.([]string)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("permission refresh failed", slog.Any("error", err))
		}
		perms = nil
	}
	if perms == nil {
		perms = []string{}
	}

	r.mu.Lock()
	if cur, ok := r.entries[tok]; ok && cur == e {
		e.perms = perms
	}
	close(e.done)
	r.mu.Unlock()
}

func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
