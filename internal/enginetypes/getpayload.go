package enginetypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// blobsBundle is the (always-empty, for a dummy builder) BlobsBundleV1
// wire shape required by engine_getPayloadV3's response envelope.
type blobsBundle struct {
	Commitments []hexutil.Bytes `json:"commitments"`
	Proofs      []hexutil.Bytes `json:"proofs"`
	Blobs       []hexutil.Bytes `json:"blobs"`
}

// GetPayloadResponseV2 is engine_getPayloadV2's response envelope: the
// payload plus its value to the proposer. A dummy build is worth nothing.
type GetPayloadResponseV2 struct {
	ExecutionPayload *ExecutionPayload `json:"executionPayload"`
	BlockValue       *hexutil.Big      `json:"blockValue"`
}

// GetPayloadResponseV3 additionally carries the blobs bundle and the
// "should override builder" flag introduced in Deneb.
type GetPayloadResponseV3 struct {
	ExecutionPayload      *ExecutionPayload `json:"executionPayload"`
	BlockValue            *hexutil.Big      `json:"blockValue"`
	BlobsBundle           blobsBundle       `json:"blobsBundle"`
	ShouldOverrideBuilder bool              `json:"shouldOverrideBuilder"`
}

// Envelope wraps p in the response shape engine_getPayload_vN expects for
// its own variant: bare for V1, {executionPayload, blockValue} for V2,
// plus the blobs bundle for V3+. A dummy build never earns a proposer
// anything, so BlockValue is always zero.
func (p *ExecutionPayload) Envelope() interface{} {
	switch p.Variant {
	case ForkDeneb:
		return &GetPayloadResponseV3{
			ExecutionPayload: p,
			BlockValue:       (*hexutil.Big)(big.NewInt(0)),
			BlobsBundle:      blobsBundle{Commitments: []hexutil.Bytes{}, Proofs: []hexutil.Bytes{}, Blobs: []hexutil.Bytes{}},
		}
	case ForkCapella:
		return &GetPayloadResponseV2{ExecutionPayload: p, BlockValue: (*hexutil.Big)(big.NewInt(0))}
	default:
		return p
	}
}
