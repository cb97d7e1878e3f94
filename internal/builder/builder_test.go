package builder

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

func canonicalPayload(parent common.Hash, number uint64) *enginetypes.ExecutionPayload {
	p := &enginetypes.ExecutionPayload{
		Variant:       enginetypes.ForkCapella,
		ParentHash:    parent,
		BlockNumber:   hexutil.Uint64(number),
		GasLimit:      30_000_000,
		GasUsed:       15_000_000,
		BaseFeePerGas: (*hexutil.Big)(newBig(1_000_000_000)),
	}
	p.RecomputeBlockHash()
	return p
}

func newBig(n int64) *big.Int { return big.NewInt(n) }

func TestRegisterAttributesUnknownParentRejected(t *testing.T) {
	b, err := New(8, "test-builder")
	if err != nil {
		t.Fatal(err)
	}
	attrs := &enginetypes.PayloadAttributes{Variant: enginetypes.ForkCapella, Timestamp: 100}
	_, err = b.RegisterAttributes(common.Hash{1}, attrs)
	if !errors.Is(err, ErrUnknownParent) {
		t.Fatalf("expected ErrUnknownParent, got %v", err)
	}
}

func TestRegisterAndGetPayloadCycle(t *testing.T) {
	b, err := New(8, "test-builder")
	if err != nil {
		t.Fatal(err)
	}
	parent := canonicalPayload(common.Hash{}, 10)
	b.RegisterCanonicalPayload(parent, enginetypes.StatusValid)

	attrs := &enginetypes.PayloadAttributes{Variant: enginetypes.ForkCapella, Timestamp: 200}
	id, err := b.RegisterAttributes(parent.BlockHash(), attrs)
	if err != nil {
		t.Fatal(err)
	}

	payload, err := b.GetPayload(id)
	if err != nil {
		t.Fatal(err)
	}
	if payload.ParentHash != parent.BlockHash() {
		t.Errorf("child parent hash = %v, want %v", payload.ParentHash, parent.BlockHash())
	}
	if uint64(payload.BlockNumber) != 11 {
		t.Errorf("child block number = %d, want 11", payload.BlockNumber)
	}

	// Getting the same id again must return the identical payload.
	again, err := b.GetPayload(id)
	if err != nil || again.BlockHash() != payload.BlockHash() {
		t.Fatalf("second GetPayload diverged: %v, %v", again, err)
	}
}

func TestRegisterAttributesIdempotentForSameParentAndAttrs(t *testing.T) {
	b, err := New(8, "test-builder")
	if err != nil {
		t.Fatal(err)
	}
	parent := canonicalPayload(common.Hash{}, 10)
	b.RegisterCanonicalPayload(parent, enginetypes.StatusValid)
	attrs := &enginetypes.PayloadAttributes{Variant: enginetypes.ForkCapella, Timestamp: 200}

	id1, err := b.RegisterAttributes(parent.BlockHash(), attrs)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := b.RegisterAttributes(parent.BlockHash(), attrs)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("expected the same payload id for a repeated (parent, attrs) pair, got %v != %v", id1, id2)
	}
}

func TestLookupBuiltPayloadEcho(t *testing.T) {
	b, err := New(8, "test-builder")
	if err != nil {
		t.Fatal(err)
	}
	parent := canonicalPayload(common.Hash{}, 10)
	b.RegisterCanonicalPayload(parent, enginetypes.StatusValid)
	attrs := &enginetypes.PayloadAttributes{Variant: enginetypes.ForkCapella, Timestamp: 200}

	id, err := b.RegisterAttributes(parent.BlockHash(), attrs)
	if err != nil {
		t.Fatal(err)
	}
	built, err := b.GetPayload(id)
	if err != nil {
		t.Fatal(err)
	}

	echoed, ok := b.LookupBuiltPayload(built.BlockHash())
	if !ok || echoed.BlockHash() != built.BlockHash() {
		t.Fatalf("expected to echo back the builder's own payload, ok=%v", ok)
	}

	if _, ok := b.LookupBuiltPayload(common.Hash{99}); ok {
		t.Error("an unrelated hash should not echo")
	}
}

func TestGetPayloadUnknownID(t *testing.T) {
	b, err := New(8, "test-builder")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.GetPayload(enginetypes.PayloadIDFromUint64(999)); !errors.Is(err, ErrUnknownPayload) {
		t.Fatalf("expected ErrUnknownPayload, got %v", err)
	}
}

func TestRegisterCanonicalPayloadIgnoresNonValid(t *testing.T) {
	b, err := New(8, "test-builder")
	if err != nil {
		t.Fatal(err)
	}
	parent := canonicalPayload(common.Hash{}, 10)
	b.RegisterCanonicalPayload(parent, enginetypes.StatusSyncing)

	attrs := &enginetypes.PayloadAttributes{Variant: enginetypes.ForkCapella, Timestamp: 200}
	if _, err := b.RegisterAttributes(parent.BlockHash(), attrs); !errors.Is(err, ErrUnknownParent) {
		t.Fatalf("expected a SYNCING canonical payload to never be registered as buildable, got %v", err)
	}
}
