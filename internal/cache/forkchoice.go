package cache

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
	"github.com/ethpandaops/engine-mux/internal/waiter"
)

// ForkchoiceCache is the bounded LRU for engine_forkchoiceUpdated* results,
// keyed by the exact (head, safe, finalized) triple, plus the
// justified/finalized rolling sets that back "loose" matching. "head-only"
// matching needs no satellite set of its own — it resolves directly off
// GetByHead.
type ForkchoiceCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[enginetypes.ForkchoiceKey, CachedStatus]
	waiter *waiter.KeyWaiter[enginetypes.ForkchoiceKey]
	// any is woken on every insert regardless of key, for followers waiting
	// under loose/head-only matching: their own key is never the one a
	// controller insert publishes under, so the exact-key waiter above would
	// never fire for them.
	any *waiter.KeyWaiter[int]

	justified *lru.Cache[common.Hash, struct{}]
	finalized *lru.Cache[common.Hash, struct{}]
}

const anyKey = 0

// NewForkchoiceCache builds the fcU cache plus its satellite status sets.
// justifiedCap/finalizedCap default to 4 per §4.3.
func NewForkchoiceCache(capacity, justifiedCap, finalizedCap int) (*ForkchoiceCache, error) {
	if capacity <= 0 {
		return nil, errZeroCapacity("fcu_cache_size")
	}
	if justifiedCap <= 0 || finalizedCap <= 0 {
		return nil, errZeroCapacity("justified_block_cache_size/finalized_block_cache_size")
	}
	backing, err := lru.New[enginetypes.ForkchoiceKey, CachedStatus](capacity)
	if err != nil {
		return nil, err
	}
	justified, err := lru.New[common.Hash, struct{}](justifiedCap)
	if err != nil {
		return nil, err
	}
	finalized, err := lru.New[common.Hash, struct{}](finalizedCap)
	if err != nil {
		return nil, err
	}
	return &ForkchoiceCache{
		lru:       backing,
		waiter:    waiter.New[enginetypes.ForkchoiceKey](),
		any:       waiter.New[int](),
		justified: justified,
		finalized: finalized,
	}, nil
}

// Get looks up the exact triple without blocking.
func (c *ForkchoiceCache) Get(key enginetypes.ForkchoiceKey) (CachedStatus, bool) {
	c.mu.Lock()
	v, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		fcuHitCounter.Inc(1)
	} else {
		fcuMissCounter.Inc(1)
	}
	return v, ok
}

// GetByHead performs the loose/head-only lookup: the first cached entry
// whose head matches, regardless of safe/finalized, mirroring fcu.rs's
// `cache.iter().find_map(...)`. The hashicorp LRU doesn't expose ordered
// iteration the way the original's `lru` crate does, so recency ordering
// isn't preserved here — acceptable, since at most one entry per head is
// ever inserted in practice (the primary only has one safe/finalized
// opinion about a given head at a time).
func (c *ForkchoiceCache) GetByHead(head common.Hash) (enginetypes.ForkchoiceKey, CachedStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if key.HeadBlockHash == head {
			v, ok := c.lru.Peek(key)
			if ok {
				return key, v, true
			}
		}
	}
	return enginetypes.ForkchoiceKey{}, CachedStatus{}, false
}

// Insert records a controller fcU response and updates the justified/
// finalized sets when the response is VALID, then wakes waiters. Matches
// fcu.rs's "ignoring redundant fcU cache update" rule: once an entry is
// definite, a later write for the same key is refused outright, never
// overwriting it — including another definite status, since the Engine API
// never revises a VALID/INVALID verdict for the same triple.
func (c *ForkchoiceCache) Insert(key enginetypes.ForkchoiceKey, status enginetypes.PayloadStatusV1, fork enginetypes.ForkVariant) (inserted bool) {
	c.mu.Lock()
	if existing, ok := c.lru.Peek(key); ok && existing.Status.Status.IsDefinite() {
		c.mu.Unlock()
		return false
	}
	c.lru.Add(key, CachedStatus{Status: status, Fork: fork, InsertedAt: time.Now()})
	if status.Status == enginetypes.StatusValid {
		c.justified.Add(key.SafeBlockHash, struct{}{})
		c.finalized.Add(key.FinalizedBlockHash, struct{}{})
	}
	c.mu.Unlock()
	c.waiter.Publish(key)
	c.any.Publish(anyKey)
	return true
}

// SubscribeAny returns a channel woken by every insert, regardless of key —
// for the loose/head-only follower wait loop, which must re-run the matcher
// after any controller insert, not just one under its own key.
func (c *ForkchoiceCache) SubscribeAny() <-chan struct{} { return c.any.Subscribe(anyKey) }

// UnsubscribeAny releases a channel obtained from SubscribeAny.
func (c *ForkchoiceCache) UnsubscribeAny(ch <-chan struct{}) { c.any.Unsubscribe(anyKey, ch) }

// Len reports current occupancy.
func (c *ForkchoiceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// IsJustified/IsFinalized back the "loose" matcher mode of §4.5.
func (c *ForkchoiceCache) IsJustified(h common.Hash) bool { return c.justified.Contains(h) }
func (c *ForkchoiceCache) IsFinalized(h common.Hash) bool { return c.finalized.Contains(h) }
