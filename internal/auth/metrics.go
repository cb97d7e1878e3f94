package auth

import "github.com/ethereum/go-ethereum/metrics"

// failureCounter counts bearer tokens that failed verification against
// every secret tried, for either role.
var failureCounter = metrics.NewRegisteredCounter("enginemux/auth/failure", nil)
