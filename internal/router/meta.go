package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

// transitionConfiguration mirrors the Engine API's
// TransitionConfigurationV1, the only method this multiplexer answers
// without any real opinion of its own.
type transitionConfiguration struct {
	TerminalTotalDifficulty *hexutil.Big   `json:"terminalTotalDifficulty"`
	TerminalBlockHash       interface{}    `json:"terminalBlockHash"`
	TerminalBlockNumber     hexutil.Uint64 `json:"terminalBlockNumber"`
}

// handleMeta forwards engine_exchangeCapabilities and
// engine_getPayloadBodiesBy* to the primary for every role, and special
// cases engine_exchangeTransitionConfigurationV1 for followers (§ the
// SUPPLEMENTED FEATURES transition-config echo).
func (r *Router) handleMeta(ctx context.Context, role auth.Role, req *enginetypes.Request) *enginetypes.Response {
	switch {
	case strings.HasPrefix(req.Method, "engine_exchangeTransitionConfiguration"):
		if role.Kind == auth.RoleController {
			return r.forwardResponse(ctx, req)
		}
		return r.echoTransitionConfig(req)

	case strings.HasPrefix(req.Method, "engine_getPayloadBodies"):
		if err := r.validatePayloadBodiesBatch(req); err != nil {
			return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, err.Error())
		}
		return r.forwardResponse(ctx, req)

	default: // engine_exchangeCapabilities
		return r.forwardResponse(ctx, req)
	}
}

// echoTransitionConfig answers a follower's transition-config exchange
// with its own submitted configuration rather than the primary's, since a
// follower has no business learning (or influencing) the primary's view
// of the long-deprecated terminal-PoW parameters.
func (r *Router) echoTransitionConfig(req *enginetypes.Request) *enginetypes.Response {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed params: "+err.Error())
	}
	var cfg transitionConfiguration
	if err := json.Unmarshal(paramAt(elems, 0), &cfg); err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed TransitionConfigurationV1: "+err.Error())
	}
	return enginetypes.NewResultResponse(req.ID, cfg)
}

func (r *Router) validatePayloadBodiesBatch(req *enginetypes.Request) error {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return err
	}
	var count int
	switch {
	case strings.Contains(req.Method, "ByHash"):
		var hashes []json.RawMessage
		if err := json.Unmarshal(paramAt(elems, 0), &hashes); err != nil {
			return err
		}
		count = len(hashes)
	case strings.Contains(req.Method, "ByRange"):
		var c hexutil.Uint64
		if err := json.Unmarshal(paramAt(elems, 1), &c); err != nil {
			return err
		}
		count = int(c)
	}
	if count > r.cfg.MaxPayloadBodiesBatch {
		return fmt.Errorf("requested %d payload bodies, exceeds limit of %d", count, r.cfg.MaxPayloadBodiesBatch)
	}
	return nil
}
