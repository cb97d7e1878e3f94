package cache

import "github.com/ethereum/go-ethereum/metrics"

// Cache hit/miss counters, one pair per cache, in the style of
// eth/catalyst/metrics.go's per-call registered counters.
var (
	newPayloadHitCounter  = metrics.NewRegisteredCounter("enginemux/cache/newpayload/hit", nil)
	newPayloadMissCounter = metrics.NewRegisteredCounter("enginemux/cache/newpayload/miss", nil)

	fcuHitCounter  = metrics.NewRegisteredCounter("enginemux/cache/fcu/hit", nil)
	fcuMissCounter = metrics.NewRegisteredCounter("enginemux/cache/fcu/miss", nil)
)
