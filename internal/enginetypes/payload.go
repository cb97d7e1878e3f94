package enginetypes

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
)

// ExecutionPayload is the fork-tagged union of ExecutionPayloadV1/V2/V3,
// following the design note in §9: one struct carrying the superset of
// fields plus a Variant tag, rather than three structs unified by an
// interface. BlockHash, Fingerprint, ToHeader and RecomputeBlockHash are
// the capability set every fork variant supports; the builder's own
// materialise step produces new dummy payloads.
type ExecutionPayload struct {
	Variant       ForkVariant
	ParentHash    common.Hash     `json:"parentHash"`
	FeeRecipient  common.Address  `json:"feeRecipient"`
	StateRoot     common.Hash     `json:"stateRoot"`
	ReceiptsRoot  common.Hash     `json:"receiptsRoot"`
	LogsBloom     hexutil.Bytes   `json:"logsBloom"`
	PrevRandao    common.Hash     `json:"prevRandao"`
	BlockNumber   hexutil.Uint64  `json:"blockNumber"`
	GasLimit      hexutil.Uint64  `json:"gasLimit"`
	GasUsed       hexutil.Uint64  `json:"gasUsed"`
	Timestamp     hexutil.Uint64  `json:"timestamp"`
	ExtraData     hexutil.Bytes   `json:"extraData"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas"`
	BlockHashV    common.Hash     `json:"blockHash"`
	Transactions  []hexutil.Bytes `json:"transactions"`

	// Capella (V2)+
	Withdrawals []Withdrawal `json:"withdrawals,omitempty"`

	// Deneb (V3)+
	BlobGasUsed   *hexutil.Uint64 `json:"blobGasUsed,omitempty"`
	ExcessBlobGas *hexutil.Uint64 `json:"excessBlobGas,omitempty"`
}

// ParseExecutionPayload decodes an ExecutionPayload, tagging the variant by
// the method name the payload arrived under (the wire shape doesn't self
// describe, unlike PayloadAttributes, since newPayloadV1 and a hypothetical
// trimmed V2 can't be told apart from field presence alone when optional
// fields are omitted — the method name is authoritative).
func ParseExecutionPayload(raw json.RawMessage, method string) (*ExecutionPayload, error) {
	var p ExecutionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	switch VariantForMethod(method) {
	case ForkDeneb:
		p.Variant = ForkDeneb
	case ForkCapella:
		p.Variant = ForkCapella
	default:
		p.Variant = ForkBellatrix
	}
	return &p, nil
}

// VariantForMethod maps an engine_newPayload_vN / engine_getPayload_vN /
// engine_forkchoiceUpdated_vN method name to its fork variant.
func VariantForMethod(method string) ForkVariant {
	if len(method) == 0 {
		return ForkBellatrix
	}
	switch method[len(method)-1] {
	case '3', '4':
		return ForkDeneb
	case '2':
		return ForkCapella
	default:
		return ForkBellatrix
	}
}

// BlockHash returns the execution block hash carried in the payload, used
// as the cache fingerprint and as the builder's newPayload-echo key.
func (p *ExecutionPayload) BlockHash() common.Hash {
	return p.BlockHashV
}

// ToHeader converts the payload into the go-ethereum block header that
// RecomputeBlockHash hashes per the fork's hashing rules, so a dummy payload
// self-consistently carries the block hash that its own fields imply —
// exactly what real execution clients do, and required by §4.6.
func (p *ExecutionPayload) ToHeader() *types.Header {
	header := &types.Header{
		ParentHash:  p.ParentHash,
		UncleHash:   types.EmptyUncleHash,
		Coinbase:    p.FeeRecipient,
		Root:        p.StateRoot,
		TxHash:      types.DeriveSha(types.Transactions(decodeTransactions(p.Transactions)), trie.NewStackTrie(nil)),
		ReceiptHash: p.ReceiptsRoot,
		Bloom:       types.BytesToBloom(p.LogsBloom),
		Difficulty:  common.Big0,
		Number:      new(big.Int).SetUint64(uint64(p.BlockNumber)),
		GasLimit:    uint64(p.GasLimit),
		GasUsed:     uint64(p.GasUsed),
		Time:        uint64(p.Timestamp),
		Extra:       p.ExtraData,
		MixDigest:   p.PrevRandao,
		BaseFee:     (*big.Int)(p.BaseFeePerGas),
	}
	if p.Variant >= ForkCapella {
		wroot := types.DeriveSha(withdrawalsList(p.Withdrawals), trie.NewStackTrie(nil))
		header.WithdrawalsHash = &wroot
	}
	if p.Variant >= ForkDeneb {
		var used, excess uint64
		if p.BlobGasUsed != nil {
			used = uint64(*p.BlobGasUsed)
		}
		if p.ExcessBlobGas != nil {
			excess = uint64(*p.ExcessBlobGas)
		}
		header.BlobGasUsed = &used
		header.ExcessBlobGas = &excess
	}
	return header
}

// RecomputeBlockHash fills BlockHashV from the RLP+keccak256 hash of the
// header implied by the payload's own fields.
func (p *ExecutionPayload) RecomputeBlockHash() {
	p.BlockHashV = p.ToHeader().Hash()
}

// decodeTransactions turns the payload's opaque RLP-encoded transaction
// blobs into go-ethereum transactions purely to feed DeriveSha; a
// malformed blob (never produced by the builder, possible from a
// forwarded primary payload we're re-hashing) is skipped, leaving it out of
// the list, rather than failing hash computation outright.
func decodeTransactions(raw []hexutil.Bytes) types.Transactions {
	txs := make(types.Transactions, 0, len(raw))
	for _, enc := range raw {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(enc); err != nil {
			continue
		}
		txs = append(txs, &tx)
	}
	return txs
}

func withdrawalsList(ws []Withdrawal) types.Withdrawals {
	out := make(types.Withdrawals, len(ws))
	for i, w := range ws {
		out[i] = &types.Withdrawal{
			Index:     uint64(w.Index),
			Validator: uint64(w.ValidatorIndex),
			Address:   w.Address,
			Amount:    uint64(w.Amount),
		}
	}
	return out
}
