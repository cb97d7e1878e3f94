package router

import (
	"context"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

// handleGeneric answers eth_*/net_*/web3_* for every role by passing
// through to the primary, except for two multiplexer-local special cases
// carried over from the original implementation's meta.rs: eth_syncing
// always answers false (the multiplexer itself never "syncs"), and
// eth_chainId is memoized since a chain id never changes for the life of
// a process.
func (r *Router) handleGeneric(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	switch req.Method {
	case "eth_syncing":
		return enginetypes.NewResultResponse(req.ID, false)
	case "eth_chainId":
		return r.chainIDResponse(ctx, req)
	default:
		return r.forwardResponse(ctx, req)
	}
}

func (r *Router) chainIDResponse(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	r.chainID.Lock()
	cached := r.chainID.raw
	r.chainID.Unlock()
	if cached != nil {
		return &enginetypes.Response{JSONRPC: enginetypes.Version, ID: req.ID, Result: cached}
	}

	raw, err := r.engine.Call(ctx, req.Method)
	if err != nil {
		return upstreamControllerError(req.ID, err)
	}
	r.chainID.Lock()
	r.chainID.raw = raw
	r.chainID.Unlock()
	return &enginetypes.Response{JSONRPC: enginetypes.Version, ID: req.ID, Result: raw}
}
