package enginetypes

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var errInvalidPayloadID = errors.New("enginetypes: invalid payload id")

// ForkchoiceStateV1 mirrors the Engine API's ForkchoiceStateV1 struct. It is
// re-declared here (rather than imported from go-ethereum/beacon/engine)
// because it additionally implements comparable-key semantics: the whole
// triple is used verbatim as a cache key under "exact" matching.
type ForkchoiceStateV1 struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// PayloadStatusV1Status enumerates the Engine API payload status strings.
type PayloadStatusV1Status string

const (
	StatusValid           PayloadStatusV1Status = "VALID"
	StatusInvalid         PayloadStatusV1Status = "INVALID"
	StatusSyncing         PayloadStatusV1Status = "SYNCING"
	StatusAccepted        PayloadStatusV1Status = "ACCEPTED"
	StatusInvalidBlockHash PayloadStatusV1Status = "INVALID_BLOCK_HASH"
)

// IsDefinite reports whether a status is a terminal verdict from the
// execution engine (VALID/INVALID/INVALID_BLOCK_HASH) as opposed to a
// provisional one (SYNCING/ACCEPTED). Followers only trust definite
// statuses without re-checking the wait deadline.
func (s PayloadStatusV1Status) IsDefinite() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusInvalidBlockHash:
		return true
	default:
		return false
	}
}

// PayloadStatusV1 is the Engine API PayloadStatusV1 response shape.
type PayloadStatusV1 struct {
	Status          PayloadStatusV1Status `json:"status"`
	LatestValidHash *common.Hash          `json:"latestValidHash"`
	ValidationError *string               `json:"validationError"`
}

// SyncingStatus is the canned response synthesized whenever the multiplexer
// has nothing cached for a follower and must answer without contacting the
// primary engine.
func SyncingStatus() PayloadStatusV1 {
	return PayloadStatusV1{Status: StatusSyncing}
}

// ForkchoiceUpdatedResponse is the result shape of engine_forkchoiceUpdated.
type ForkchoiceUpdatedResponse struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *PayloadID      `json:"payloadId"`
}

// PayloadID is the Engine API's 8-byte payload identifier, transparently
// hex-encoded on the wire (e.g. "0x0000000000000001").
type PayloadID [8]byte

func (p PayloadID) MarshalText() ([]byte, error) {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(p)*2)
	out[0], out[1] = '0', 'x'
	for i, b := range p {
		out[2+i*2] = hextable[b>>4]
		out[3+i*2] = hextable[b&0x0f]
	}
	return out, nil
}

func (p *PayloadID) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) != len(p)*2 {
		return errInvalidPayloadID
	}
	for i := range p {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return err
		}
		p[i] = hi<<4 | lo
	}
	return nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, errInvalidPayloadID
	}
}

// PayloadIDFromUint64 deterministically encodes a monotonic counter as a
// PayloadID, big-endian, so increasing counters sort as increasing IDs.
func PayloadIDFromUint64(n uint64) PayloadID {
	var id PayloadID
	for i := 7; i >= 0; i-- {
		id[i] = byte(n)
		n >>= 8
	}
	return id
}
