package builder

import "math/big"

// EIP-1559 constants, as used by go-ethereum's own core/consensus/misc
// base fee calculation and ported here from
// original_source/src/base_fee.rs (a feature the distilled spec dropped —
// see SPEC_FULL.md's supplemented-features list).
const (
	elasticityMultiplier        = 2
	baseFeeMaxChangeDenominator = 8
)

// expectedBaseFeePerGas computes the next block's base fee from its
// parent, the way a real execution client would. The dummy payload builder
// uses it instead of leaving baseFeePerGas zero, feeding it the gas used
// and gas limit of the real canonical parent payload the controller
// submitted; the result is clamped at zero.
func expectedBaseFeePerGas(parentBaseFeePerGas *big.Int, parentGasUsed, parentGasLimit uint64) *big.Int {
	if parentBaseFeePerGas == nil {
		return big.NewInt(0)
	}
	parentGasTarget := parentGasLimit / elasticityMultiplier
	if parentGasTarget == 0 {
		return new(big.Int).Set(parentBaseFeePerGas)
	}

	switch {
	case parentGasUsed == parentGasTarget:
		return new(big.Int).Set(parentBaseFeePerGas)

	case parentGasUsed > parentGasTarget:
		gasUsedDelta := parentGasUsed - parentGasTarget
		delta := new(big.Int).Mul(parentBaseFeePerGas, new(big.Int).SetUint64(gasUsedDelta))
		delta.Div(delta, new(big.Int).SetUint64(parentGasTarget))
		delta.Div(delta, big.NewInt(baseFeeMaxChangeDenominator))
		if delta.Sign() == 0 {
			delta = big.NewInt(1)
		}
		return new(big.Int).Add(parentBaseFeePerGas, delta)

	default:
		gasUsedDelta := parentGasTarget - parentGasUsed
		delta := new(big.Int).Mul(parentBaseFeePerGas, new(big.Int).SetUint64(gasUsedDelta))
		delta.Div(delta, new(big.Int).SetUint64(parentGasTarget))
		delta.Div(delta, big.NewInt(baseFeeMaxChangeDenominator))
		next := new(big.Int).Sub(parentBaseFeePerGas, delta)
		if next.Sign() < 0 {
			return big.NewInt(0)
		}
		return next
	}
}
