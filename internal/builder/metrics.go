package builder

import "github.com/ethereum/go-ethereum/metrics"

// evictionCounter counts build records evicted from the bounded LRU,
// whether or not GetPayload was ever called for them; an evicted id can no
// longer be delivered.
var evictionCounter = metrics.NewRegisteredCounter("enginemux/builder/eviction", nil)
