package router

import "github.com/ethereum/go-ethereum/metrics"

// dispatchTimer tracks wall-clock latency of a single Dispatch call,
// across every method class and role.
var dispatchTimer = metrics.NewRegisteredTimer("enginemux/router/dispatch", nil)
