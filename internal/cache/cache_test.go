package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

func fp(b byte) enginetypes.NewPayloadFingerprint {
	var f enginetypes.NewPayloadFingerprint
	f[31] = b
	return f
}

func hash(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func TestNewPayloadCacheZeroCapacityRejected(t *testing.T) {
	if _, err := NewNewPayloadCache(0); err == nil {
		t.Fatal("expected an error for zero capacity")
	}
	if _, err := NewNewPayloadCache(-1); err == nil {
		t.Fatal("expected an error for negative capacity")
	}
}

func TestNewPayloadCacheGetInsert(t *testing.T) {
	c, err := NewNewPayloadCache(4)
	if err != nil {
		t.Fatal(err)
	}
	key := fp(1)
	if _, ok := c.Get(key); ok {
		t.Fatal("expected a miss before insert")
	}
	c.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix)
	got, ok := c.Get(key)
	if !ok || got.Status.Status != enginetypes.StatusValid {
		t.Fatalf("got = %v, ok = %v", got, ok)
	}
}

func TestNewPayloadCacheWaitForWakesOnInsert(t *testing.T) {
	c, err := NewNewPayloadCache(4)
	if err != nil {
		t.Fatal(err)
	}
	key := fp(2)

	done := make(chan CachedStatus, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v, ok := c.WaitFor(ctx, key)
		if !ok {
			return
		}
		done <- v
	}()

	time.Sleep(20 * time.Millisecond)
	c.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkCapella)

	select {
	case v := <-done:
		if v.Status.Status != enginetypes.StatusValid {
			t.Errorf("woke with unexpected status %v", v.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitFor never woke after insert")
	}
}

func TestNewPayloadCacheWaitForTimesOut(t *testing.T) {
	c, err := NewNewPayloadCache(4)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := c.WaitFor(ctx, fp(3)); ok {
		t.Fatal("expected WaitFor to time out with no insert")
	}
}

func TestNewPayloadCacheStaleness(t *testing.T) {
	c, err := NewNewPayloadCache(4)
	if err != nil {
		t.Fatal(err)
	}
	if c.IsStale(100, 64) {
		t.Fatal("unknown head must never be reported stale")
	}
	c.ObserveHead(1000)
	if c.IsStale(990, 64) {
		t.Error("within cutoff should not be stale")
	}
	if !c.IsStale(900, 64) {
		t.Error("beyond cutoff should be stale")
	}
}

// TestNewPayloadCacheZeroCutoffAlwaysStale exercises §8's boundary property:
// new_payload_wait_cutoff = 0 means every follower newPayload is answered
// instantly, including the common case of a block at or ahead of the
// observed head — not just blocks trailing behind it.
func TestNewPayloadCacheZeroCutoffAlwaysStale(t *testing.T) {
	c, err := NewNewPayloadCache(4)
	if err != nil {
		t.Fatal(err)
	}
	c.ObserveHead(1000)

	for _, blockNumber := range []uint64{1000, 1001, 2000, 900} {
		if !c.IsStale(blockNumber, 0) {
			t.Errorf("IsStale(%d, cutoff=0) = false, want true", blockNumber)
		}
	}
}

func TestNewPayloadCacheStalenessAheadOfHead(t *testing.T) {
	c, err := NewNewPayloadCache(4)
	if err != nil {
		t.Fatal(err)
	}
	c.ObserveHead(1000)
	if c.IsStale(1005, 64) {
		t.Error("a block a few ahead of head, within cutoff, should not be stale")
	}
	if !c.IsStale(1100, 64) {
		t.Error("a block far ahead of head, beyond cutoff, should be stale")
	}
}

func TestForkchoiceCacheInsertDoesNotDowngradeDefinite(t *testing.T) {
	fc, err := NewForkchoiceCache(4, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	key := enginetypes.ForkchoiceKey{HeadBlockHash: hash(1), SafeBlockHash: hash(1), FinalizedBlockHash: hash(1)}

	if ok := fc.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix); !ok {
		t.Fatal("first insert should succeed")
	}
	if ok := fc.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusSyncing}, enginetypes.ForkBellatrix); ok {
		t.Error("a later indefinite status must not overwrite an already-definite one")
	}
	got, ok := fc.Get(key)
	if !ok || got.Status.Status != enginetypes.StatusValid {
		t.Fatalf("expected the original VALID status to survive, got %v", got.Status)
	}
}

func TestForkchoiceCacheSubscribeAnyWakesOnUnrelatedKey(t *testing.T) {
	fc, err := NewForkchoiceCache(4, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	ch := fc.SubscribeAny()
	defer fc.UnsubscribeAny(ch)

	go func() {
		time.Sleep(20 * time.Millisecond)
		key := enginetypes.ForkchoiceKey{HeadBlockHash: hash(9), SafeBlockHash: hash(9), FinalizedBlockHash: hash(9)}
		fc.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix)
	}()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("wildcard channel never woke after an insert under a different key")
	}
}
