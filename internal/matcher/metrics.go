package matcher

import "github.com/ethereum/go-ethereum/metrics"

// matchedCounter and unmatchedCounter count Resolve outcomes: whether a
// follower's forkchoiceUpdated was backed by a controller-observed status
// or fell through to a synthesized SYNCING.
var (
	matchedCounter   = metrics.NewRegisteredCounter("enginemux/matcher/matched", nil)
	unmatchedCounter = metrics.NewRegisteredCounter("enginemux/matcher/unmatched", nil)
)
