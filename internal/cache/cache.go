// Package cache implements the response caches (C3): fingerprint-keyed
// bounded LRUs for engine_newPayload*/engine_forkchoiceUpdated* results,
// plus the small justified/finalized block-status sets that drive the
// consistency matcher. It owns the per-key publication channel that the
// waiter (C4) subscribes to — per §9, the only arrow is from insert to
// wake, never the reverse.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
	"github.com/ethpandaops/engine-mux/internal/waiter"
)

// CachedStatus is a cached payload/fcU status together with when it was
// observed and under which fork variant.
type CachedStatus struct {
	Status    enginetypes.PayloadStatusV1
	Fork      enginetypes.ForkVariant
	InsertedAt time.Time
}

// NewPayloadCache is the bounded LRU for engine_newPayload* results, keyed
// by NewPayloadFingerprint.
type NewPayloadCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[enginetypes.NewPayloadFingerprint, CachedStatus]
	waiter *waiter.KeyWaiter[enginetypes.NewPayloadFingerprint]
	// latestHead is updated through ObserveHead whenever a controller
	// newPayload comes back VALID, and read by the newPayload
	// wait-eligibility policy (stale payloads skip waiting).
	latestHead struct {
		sync.Mutex
		number uint64
		known  bool
	}
}

// NewNewPayloadCache builds a capacity-bounded cache. Per §3's invariants
// and §8's boundary test, a zero capacity is rejected — it would silently
// make the cache useless and is very likely a misconfiguration.
func NewNewPayloadCache(capacity int) (*NewPayloadCache, error) {
	if capacity <= 0 {
		return nil, errZeroCapacity("new_payload_cache_size")
	}
	backing, err := lru.New[enginetypes.NewPayloadFingerprint, CachedStatus](capacity)
	if err != nil {
		return nil, err
	}
	return &NewPayloadCache{lru: backing, waiter: waiter.New[enginetypes.NewPayloadFingerprint]()}, nil
}

// Get looks up a fingerprint without blocking.
func (c *NewPayloadCache) Get(key enginetypes.NewPayloadFingerprint) (CachedStatus, bool) {
	c.mu.Lock()
	v, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		newPayloadHitCounter.Inc(1)
	} else {
		newPayloadMissCounter.Inc(1)
	}
	return v, ok
}

// Insert records a controller response and wakes any waiters on key. Cache
// inserts are monotonic for a fingerprint per §3: a later response
// overwrites the earlier outright (the Engine API never revises a
// newPayload verdict for the same block hash in a way that matters here).
func (c *NewPayloadCache) Insert(key enginetypes.NewPayloadFingerprint, status enginetypes.PayloadStatusV1, fork enginetypes.ForkVariant) {
	c.mu.Lock()
	c.lru.Add(key, CachedStatus{Status: status, Fork: fork, InsertedAt: time.Now()})
	c.mu.Unlock()
	c.waiter.Publish(key)
}

// Len reports current occupancy, for metrics and the capacity invariant.
func (c *NewPayloadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// ObserveHead records the most recently seen controller head block number,
// used by the router to decide whether a follower's newPayload is "stale"
// (§4.4's new_payload_wait_cutoff policy).
func (c *NewPayloadCache) ObserveHead(number uint64) {
	c.latestHead.Lock()
	c.latestHead.number = number
	c.latestHead.known = true
	c.latestHead.Unlock()
}

// IsStale reports whether blockNumber is far enough from the latest
// observed head, in either direction, that waiting for it is pointless. A
// cutoff of zero is a sentinel disabling the wait entirely — per §8's
// boundary property, every follower newPayload must be answered instantly
// — rather than the degenerate "distance 0" case that a plain
// distance-vs-cutoff comparison would only catch for blockNumber exactly
// equal to the head. With a nonzero cutoff, an unknown head (nothing
// observed yet) never counts as stale — there is nothing to compare against.
func (c *NewPayloadCache) IsStale(blockNumber uint64, cutoff uint64) bool {
	if cutoff == 0 {
		return true
	}
	c.latestHead.Lock()
	defer c.latestHead.Unlock()
	if !c.latestHead.known {
		return false
	}
	var distance uint64
	if c.latestHead.number >= blockNumber {
		distance = c.latestHead.number - blockNumber
	} else {
		distance = blockNumber - c.latestHead.number
	}
	return distance > cutoff
}

// WaitFor blocks until a definite (VALID/INVALID) status is published for
// key or ctx is done, re-checking the cache on every wake. A cached
// SYNCING/ACCEPTED verdict is not enough to return early on its own — the
// controller is very likely about to land a definite one within the wait
// window, and returning the indefinite status immediately would defeat the
// point of waiting at all (mirrors new_payload.rs's definite_only=true
// poll). Once ctx is done, the final return falls back to whatever is
// cached, indefinite or not, leaving the SYNCING synthesis to the caller
// when there's nothing cached at all.
func (c *NewPayloadCache) WaitFor(ctx context.Context, key enginetypes.NewPayloadFingerprint) (CachedStatus, bool) {
	for {
		// Subscribing before the check closes the race where an insert
		// happens between a caller's initial miss and the subscribe call —
		// the subscription is in place first, so a Publish landing in that
		// window still wakes us.
		ch := c.waiter.Subscribe(key)
		if v, ok := c.Get(key); ok && v.Status.Status.IsDefinite() {
			c.waiter.Unsubscribe(key, ch)
			return v, true
		}
		select {
		case <-ch:
			c.waiter.Unsubscribe(key, ch)
			continue
		case <-ctx.Done():
			c.waiter.Unsubscribe(key, ch)
			waiter.RecordTimeout()
			return c.Get(key)
		}
	}
}

func errZeroCapacity(flag string) error {
	return &capacityError{flag: flag}
}

type capacityError struct{ flag string }

func (e *capacityError) Error() string {
	return "cache: " + e.flag + " must be greater than zero"
}
