package auth

import (
	"sync"
	"time"
)

const maxTrackedNonces = 1 << 16

type nonceEntry struct {
	key       string
	expiresAt int64
}

// nonceGuard remembers (caller, nonce) pairs until they age out. Entries are
// appended in arrival order, so expiry only ever trims the front of the queue.
type nonceGuard struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[string]int64
	order []nonceEntry
}

func newNonceGuard(ttl time.Duration) *nonceGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &nonceGuard{ttl: ttl, seen: map[string]int64{}}
}

// allow reports whether nonce is fresh for callerID and records it.
func (g *nonceGuard) allow(callerID, nonce string, now time.Time) bool {
	key := callerID + "\x00" + nonce
	nowMS := now.UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireLocked(nowMS)
	if exp, ok := g.seen[key]; ok && exp > nowMS {
		return false
	}
	exp := nowMS + g.ttl.Milliseconds()
	g.seen[key] = exp
	g.order = append(g.order, nonceEntry{key: key, expiresAt: exp})
	for len(g.order) > maxTrackedNonces {
		g.evictFrontLocked()
	}
	return true
}

func (g *nonceGuard) expireLocked(nowMS int64) {
	for len(g.order) > 0 && g.order[0].expiresAt <= nowMS {
		g.evictFrontLocked()
	}
	if len(g.order) == 0 && cap(g.order) > 1024 {
		g.order = nil
	}
}

func (g *nonceGuard) evictFrontLocked() {
	e := g.order[0]
	g.order = g.order[1:]
	// A later re-use of the same key owns the map slot now.
	if g.seen[e.key] == e.expiresAt {
		delete(g.seen, e.key)
	}
}

func (g *nonceGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
