package config

import "github.com/ethpandaops/engine-mux/internal/enginetypes"

// forkSchedule is a network's Capella/Deneb activation timestamps, used
// only to cross-check the fork variant a method name implies against what
// the configured network's schedule would imply at a given timestamp —
// informational logging only (§1's Non-goals exclude payload validation,
// so a mismatch is never rejected, only logged).
type forkSchedule struct {
	capella uint64
	deneb   uint64
}

var networks = map[string]forkSchedule{
	"mainnet": {capella: 1681338455, deneb: 1710338135},
	"holesky": {capella: 1696000704, deneb: 1707305664},
	"sepolia": {capella: 1677557088, deneb: 1706655072},
}

// ExpectedVariant returns the fork variant the configured network's
// schedule implies was active at timestamp, or ForkBellatrix if network is
// unrecognized (treated as pre-Shanghai rather than failing closed, since
// this is advisory only).
func ExpectedVariant(network string, timestamp uint64) enginetypes.ForkVariant {
	sched, ok := networks[network]
	if !ok {
		return enginetypes.ForkBellatrix
	}
	switch {
	case timestamp >= sched.deneb:
		return enginetypes.ForkDeneb
	case timestamp >= sched.capella:
		return enginetypes.ForkCapella
	default:
		return enginetypes.ForkBellatrix
	}
}
