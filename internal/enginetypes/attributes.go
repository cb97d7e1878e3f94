package enginetypes

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ForkVariant tags the schema version of an Engine API message, tied to a
// network upgrade. Every fork-sensitive type in this package carries one so
// the router and builder can dispatch on it without reflection.
type ForkVariant int

const (
	ForkBellatrix ForkVariant = iota // V1: pre-Shanghai, no withdrawals
	ForkCapella                      // V2: + withdrawals
	ForkDeneb                        // V3: + blob gas, parent beacon block root
)

func (f ForkVariant) String() string {
	switch f {
	case ForkBellatrix:
		return "bellatrix"
	case ForkCapella:
		return "capella"
	case ForkDeneb:
		return "deneb"
	default:
		return "unknown"
	}
}

// Withdrawal mirrors the Engine API's WithdrawalV1.
type Withdrawal struct {
	Index          hexutil.Uint64 `json:"index"`
	ValidatorIndex hexutil.Uint64 `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	Amount         hexutil.Uint64 `json:"amount"`
}

// PayloadAttributes is the fork-tagged union of PayloadAttributesV1/V2/V3.
// Rather than three separate Go types bound by an interface (which the
// router would then have to switch on at every call site), this holds the
// superset of fields and a Variant tag recording which ones are meaningful
// — the schema varies by fork, but the behaviour (fingerprinting,
// materialising a payload) is dispatched from one place.
type PayloadAttributes struct {
	Variant               ForkVariant
	Timestamp             hexutil.Uint64 `json:"timestamp"`
	PrevRandao            common.Hash    `json:"prevRandao"`
	SuggestedFeeRecipient common.Address `json:"suggestedFeeRecipient"`
	Withdrawals           []Withdrawal   `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash   `json:"parentBeaconBlockRoot,omitempty"`
}

// ParsePayloadAttributes decodes a PayloadAttributes object, tagging it with
// the variant implied by which fields are present in the wire form — V3
// carries parentBeaconBlockRoot, V2 carries withdrawals, V1 has neither.
func ParsePayloadAttributes(raw json.RawMessage) (*PayloadAttributes, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var wire struct {
		Timestamp             hexutil.Uint64  `json:"timestamp"`
		PrevRandao            common.Hash     `json:"prevRandao"`
		SuggestedFeeRecipient common.Address  `json:"suggestedFeeRecipient"`
		Withdrawals           []Withdrawal    `json:"withdrawals"`
		ParentBeaconBlockRoot *common.Hash    `json:"parentBeaconBlockRoot"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	variant := ForkBellatrix
	switch {
	case wire.ParentBeaconBlockRoot != nil:
		variant = ForkDeneb
	case wire.Withdrawals != nil:
		variant = ForkCapella
	}
	return &PayloadAttributes{
		Variant:               variant,
		Timestamp:             wire.Timestamp,
		PrevRandao:            wire.PrevRandao,
		SuggestedFeeRecipient: wire.SuggestedFeeRecipient,
		Withdrawals:           wire.Withdrawals,
		ParentBeaconBlockRoot: wire.ParentBeaconBlockRoot,
	}, nil
}

// Fingerprint returns a stable key for deduplicating identical build
// requests for the same parent — the original implementation keys its LRU
// on (parentHash, attributes) directly; here we hash the tuple instead so
// it can live as a plain map/LRU key.
func (a *PayloadAttributes) Fingerprint(parentHash common.Hash) [32]byte {
	h := sha256.New()
	h.Write(parentHash[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(a.Timestamp))
	h.Write(buf[:])
	h.Write(a.PrevRandao[:])
	h.Write(a.SuggestedFeeRecipient[:])
	for _, w := range a.Withdrawals {
		binary.BigEndian.PutUint64(buf[:], uint64(w.Index))
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], uint64(w.ValidatorIndex))
		h.Write(buf[:])
		h.Write(w.Address[:])
		binary.BigEndian.PutUint64(buf[:], uint64(w.Amount))
		h.Write(buf[:])
	}
	if a.ParentBeaconBlockRoot != nil {
		h.Write(a.ParentBeaconBlockRoot[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
