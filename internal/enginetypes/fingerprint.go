package enginetypes

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// NewPayloadFingerprint is the cache key for engine_newPayload*: the block
// hash plus everything that changes the fork-determining shape of the call
// (versioned hashes and the parent beacon root, present from Deneb), per
// §3's data model. Two newPayload calls with the same block hash but
// different versioned-hash sets are deliberately different cache entries —
// they cannot both be describing the same execution.
type NewPayloadFingerprint [32]byte

// Fingerprint computes the NewPayloadFingerprint for p, given the
// Deneb-only sidecar fields that travel alongside the payload itself
// rather than inside it.
func (p *ExecutionPayload) Fingerprint(versionedHashes []common.Hash, parentBeaconBlockRoot *common.Hash) NewPayloadFingerprint {
	h := sha256.New()
	h.Write(p.BlockHashV[:])
	var tag [1]byte
	tag[0] = byte(p.Variant)
	h.Write(tag[:])
	for _, vh := range versionedHashes {
		h.Write(vh[:])
	}
	if parentBeaconBlockRoot != nil {
		h.Write(parentBeaconBlockRoot[:])
	}
	var out NewPayloadFingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// ForkchoiceKey is the cache key for engine_forkchoiceUpdated* under exact
// matching: the bare (head, safe, finalized) triple, with no dependency on
// payload attributes — attribute-bearing calls are additionally keyed into
// the payload builder via PayloadAttributes.Fingerprint.
type ForkchoiceKey = ForkchoiceStateV1

// PayloadIDKey round-trips a monotonic counter through the wire PayloadID
// encoding so the builder's LRU can be keyed directly on PayloadID.
func PayloadIDKey(id PayloadID) uint64 {
	return binary.BigEndian.Uint64(id[:])
}
