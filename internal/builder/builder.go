// Package builder implements the dummy payload builder (C6): the
// Prepared -> Delivered state machine serving engine_forkchoiceUpdated
// with payloadAttributes, engine_getPayload*, and the newPayload echo for
// payloads it produced itself. See spec §4.6.
package builder

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

// ErrUnknownPayload is returned for a getPayload lookup whose id was never
// allocated or has since been evicted, mapped by the router to JSON-RPC
// code -38001 per §7.
var ErrUnknownPayload = errors.New("builder: unknown payload id")

// ErrUnknownParent is returned when registering attributes for a parent
// hash the builder has never seen a canonical payload for — it has nothing
// to build a descendant block on top of.
var ErrUnknownParent = errors.New("builder: unknown parent block")

// canonicalInfo is what the builder remembers about a real (non-dummy)
// payload observed from the controller, enough to build a plausible child.
type canonicalInfo struct {
	blockNumber uint64
	gasLimit    uint64
	gasUsed     uint64
	baseFee     *big.Int
}

// attrsKey deduplicates RegisterAttributes calls for the same
// (parent, attributes) pair, mirroring payload_builder.rs's
// `(ExecutionBlockHash, PayloadAttributes)` LRU key.
type attrsKey struct {
	parent common.Hash
	attrs  [32]byte
}

// record is a BuildRecord: everything needed to materialise (and
// re-materialise, idempotently) the dummy payload for one payload id.
type record struct {
	mu        sync.Mutex
	attrs     *enginetypes.PayloadAttributes
	parent    common.Hash
	delivered bool
	payload   *enginetypes.ExecutionPayload
}

// Builder is the process-wide payload builder singleton.
type Builder struct {
	extraData string
	nextID    atomic.Uint64

	mu        sync.Mutex
	byAttrs   *lru.Cache[attrsKey, enginetypes.PayloadID]
	records   *lru.Cache[uint64, *record]
	canonical *lru.Cache[common.Hash, canonicalInfo]
	byHash    *lru.Cache[common.Hash, enginetypes.PayloadID] // dummy block hash -> id, for the newPayload echo
}

// New constructs a Builder bounded by capacity (payload_builder_cache_size)
// and configured to stamp extraData into every dummy payload it produces.
func New(capacity int, extraData string) (*Builder, error) {
	if capacity <= 0 {
		return nil, errors.New("builder: payload_builder_cache_size must be greater than zero")
	}
	byAttrs, err := lru.New[attrsKey, enginetypes.PayloadID](capacity)
	if err != nil {
		return nil, err
	}
	records, err := lru.NewWithEvict[uint64, *record](capacity, func(_ uint64, _ *record) {
		evictionCounter.Inc(1)
	})
	if err != nil {
		return nil, err
	}
	canonical, err := lru.New[common.Hash, canonicalInfo](capacity)
	if err != nil {
		return nil, err
	}
	byHash, err := lru.New[common.Hash, enginetypes.PayloadID](capacity)
	if err != nil {
		return nil, err
	}
	return &Builder{
		extraData: extraData,
		byAttrs:   byAttrs,
		records:   records,
		canonical: canonical,
		byHash:    byHash,
	}, nil
}

// RegisterCanonicalPayload remembers a real payload's shape so that a
// later RegisterAttributes naming it as parent has something to build on
// top of. Ported from new_payload.rs's register_canonical_payload, which
// only bothers for VALID payloads — an INVALID/SYNCING payload is not
// something anyone should build a child of.
func (b *Builder) RegisterCanonicalPayload(payload *enginetypes.ExecutionPayload, status enginetypes.PayloadStatusV1Status) {
	if status != enginetypes.StatusValid {
		return
	}
	b.mu.Lock()
	b.canonical.Add(payload.BlockHash(), canonicalInfo{
		blockNumber: uint64(payload.BlockNumber),
		gasLimit:    uint64(payload.GasLimit),
		gasUsed:     uint64(payload.GasUsed),
		baseFee:     (*big.Int)(payload.BaseFeePerGas),
	})
	b.mu.Unlock()
}

// RegisterAttributes allocates (or returns the existing) payload id for
// building a dummy child of parentHash with attrs. A second call with the
// identical (parent, attrs) pair is idempotent and returns the same id
// without building again — this is what lets a controller resend the same
// fcU-with-attributes harmlessly.
func (b *Builder) RegisterAttributes(parentHash common.Hash, attrs *enginetypes.PayloadAttributes) (enginetypes.PayloadID, error) {
	key := attrsKey{parent: parentHash, attrs: attrs.Fingerprint(parentHash)}

	b.mu.Lock()
	if id, ok := b.byAttrs.Get(key); ok {
		b.mu.Unlock()
		return id, nil
	}
	parentInfo, ok := b.canonical.Get(parentHash)
	if !ok {
		b.mu.Unlock()
		return enginetypes.PayloadID{}, fmt.Errorf("%w: %s", ErrUnknownParent, parentHash)
	}
	id := enginetypes.PayloadIDFromUint64(b.nextID.Add(1) - 1)
	rec := &record{attrs: attrs, parent: parentHash}
	b.byAttrs.Add(key, id)
	b.records.Add(enginetypes.PayloadIDKey(id), rec)
	b.mu.Unlock()

	payload := b.materialise(attrs, parentHash, parentInfo)

	rec.mu.Lock()
	rec.payload = payload
	rec.mu.Unlock()

	b.mu.Lock()
	b.byHash.Add(payload.BlockHash(), id)
	b.mu.Unlock()

	return id, nil
}

// GetPayload returns the materialised payload for id, marking the record
// Delivered. Subsequent calls for the same id return the identical
// payload — idempotence is free here since materialisation already
// happened eagerly in RegisterAttributes, unlike payload_builder.rs's stub
// which deferred building to this call and never finished it (`todo!()`).
func (b *Builder) GetPayload(id enginetypes.PayloadID) (*enginetypes.ExecutionPayload, error) {
	b.mu.Lock()
	rec, ok := b.records.Get(enginetypes.PayloadIDKey(id))
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPayload, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.delivered = true
	return rec.payload, nil
}

// LookupBuiltPayload supports the newPayload echo: if hash was produced by
// this builder, return it without the caller contacting the primary.
func (b *Builder) LookupBuiltPayload(hash common.Hash) (*enginetypes.ExecutionPayload, bool) {
	b.mu.Lock()
	id, ok := b.byHash.Get(hash)
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	payload, err := b.GetPayload(id)
	return payload, err == nil
}

// materialise builds the dummy payload from attrs and the remembered
// parent shape, deriving the block hash per the fork's hashing rules so
// the payload is self-consistent (§4.6). Fields with no real meaning for
// an unexecuted dummy block (state/receipts roots, gas used) are left
// zero; gasLimit is copied from the parent, matching a real client
// keeping the gas limit constant absent an explicit target change.
func (b *Builder) materialise(attrs *enginetypes.PayloadAttributes, parentHash common.Hash, parentInfo canonicalInfo) *enginetypes.ExecutionPayload {
	baseFee := expectedBaseFeePerGas(parentInfo.baseFee, parentInfo.gasUsed, parentInfo.gasLimit)
	p := &enginetypes.ExecutionPayload{
		Variant:       attrs.Variant,
		ParentHash:    parentHash,
		FeeRecipient:  attrs.SuggestedFeeRecipient,
		PrevRandao:    attrs.PrevRandao,
		BlockNumber:   hexutil.Uint64(parentInfo.blockNumber + 1),
		GasLimit:      hexutil.Uint64(parentInfo.gasLimit),
		GasUsed:       0,
		Timestamp:     attrs.Timestamp,
		ExtraData:     hexutil.Bytes(b.extraData),
		BaseFeePerGas: (*hexutil.Big)(baseFee),
		Transactions:  nil,
	}
	if attrs.Variant >= enginetypes.ForkCapella {
		p.Withdrawals = attrs.Withdrawals
		if p.Withdrawals == nil {
			p.Withdrawals = []enginetypes.Withdrawal{}
		}
	}
	if attrs.Variant >= enginetypes.ForkDeneb {
		var zero hexutil.Uint64
		p.BlobGasUsed = &zero
		p.ExcessBlobGas = &zero
	}
	p.RecomputeBlockHash()
	return p
}
