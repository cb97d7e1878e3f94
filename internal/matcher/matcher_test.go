package matcher

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethpandaops/engine-mux/internal/cache"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Exact, false},
		{"exact", Exact, false},
		{"loose", Loose, false},
		{"head_only", HeadOnly, false},
		{"bogus", Exact, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func hash(b byte) common.Hash {
	var h common.Hash
	h[31] = b
	return h
}

func newFC(t *testing.T) *cache.ForkchoiceCache {
	t.Helper()
	fc, err := cache.NewForkchoiceCache(16, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	return fc
}

func TestMatcherExact(t *testing.T) {
	fc := newFC(t)
	key := enginetypes.ForkchoiceKey{HeadBlockHash: hash(1), SafeBlockHash: hash(2), FinalizedBlockHash: hash(3)}
	fc.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix)

	m := New(Exact)
	status, matched := m.Resolve(key, fc)
	if !matched || status.Status != enginetypes.StatusValid {
		t.Fatalf("exact match on identical triple failed: matched=%v status=%v", matched, status)
	}

	other := key
	other.SafeBlockHash = hash(99)
	if _, matched := m.Resolve(other, fc); matched {
		t.Error("exact mode matched on a different safe hash")
	}
}

func TestMatcherLoose(t *testing.T) {
	fc := newFC(t)
	key := enginetypes.ForkchoiceKey{HeadBlockHash: hash(1), SafeBlockHash: hash(2), FinalizedBlockHash: hash(3)}
	fc.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix)

	m := New(Loose)
	follower := enginetypes.ForkchoiceKey{HeadBlockHash: hash(1), SafeBlockHash: hash(2), FinalizedBlockHash: hash(3)}
	if _, matched := m.Resolve(follower, fc); !matched {
		t.Fatal("loose mode failed to match a head/safe/finalized all present in cache/known sets")
	}

	follower.SafeBlockHash = hash(123) // not in the justified set
	if _, matched := m.Resolve(follower, fc); matched {
		t.Error("loose mode matched on a safe hash outside the justified set")
	}
}

func TestMatcherHeadOnly(t *testing.T) {
	fc := newFC(t)
	key := enginetypes.ForkchoiceKey{HeadBlockHash: hash(1), SafeBlockHash: hash(2), FinalizedBlockHash: hash(3)}
	fc.Insert(key, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix)

	m := New(HeadOnly)
	follower := enginetypes.ForkchoiceKey{HeadBlockHash: hash(1), SafeBlockHash: hash(77), FinalizedBlockHash: hash(88)}
	if _, matched := m.Resolve(follower, fc); !matched {
		t.Fatal("head-only mode failed to match on head alone")
	}

	follower.HeadBlockHash = hash(200)
	if _, matched := m.Resolve(follower, fc); matched {
		t.Error("head-only mode matched an unseen head")
	}
}
