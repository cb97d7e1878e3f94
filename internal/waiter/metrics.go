package waiter

import "github.com/ethereum/go-ethereum/metrics"

// timeoutCounter counts waits that ended via their caller's deadline rather
// than a Publish. KeyWaiter itself has no notion of a deadline — the select
// against ctx.Done() happens in the caches and the router — so callers
// report their own timeouts through RecordTimeout rather than this package
// inferring it.
var timeoutCounter = metrics.NewRegisteredCounter("enginemux/waiter/timeout", nil)

// RecordTimeout is called by a waiter consumer when its wait ends via
// context deadline rather than a Publish.
func RecordTimeout() { timeoutCounter.Inc(1) }
