// Package router implements the request router (C7): method
// classification, controller-vs-follower dispatch, batch fan-out/fan-in,
// and JSON-RPC envelope assembly. See spec §4.7.
package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/builder"
	"github.com/ethpandaops/engine-mux/internal/cache"
	"github.com/ethpandaops/engine-mux/internal/engineclient"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
	"github.com/ethpandaops/engine-mux/internal/matcher"
)

// Config bundles the router's tunables, taken verbatim from spec §6's
// single-flight and bodies-batch settings.
type Config struct {
	NewPayloadWait       time.Duration
	NewPayloadWaitCutoff uint64
	FCUWait              time.Duration
	MaxPayloadBodiesBatch int
	Network               string
}

// Router is the process-wide C7 singleton: it holds references to every
// other singleton component, per §9's "pass them into request handlers by
// shared reference" note; its only state of its own is the memoized
// eth_chainId result.
type Router struct {
	engine  *engineclient.Client
	np      *cache.NewPayloadCache
	fc      *cache.ForkchoiceCache
	match   *matcher.Matcher
	build   *builder.Builder
	cfg     Config

	chainID struct {
		sync.Mutex
		raw json.RawMessage
	}
}

// New constructs the router from its already-initialized dependencies.
func New(engine *engineclient.Client, np *cache.NewPayloadCache, fc *cache.ForkchoiceCache, m *matcher.Matcher, b *builder.Builder, cfg Config) *Router {
	return &Router{engine: engine, np: np, fc: fc, match: m, build: b, cfg: cfg}
}

// Dispatch handles a single JSON-RPC request for role, returning the
// response element to place at this request's position — or nil if the
// request was a notification and therefore produces no response element.
func (r *Router) Dispatch(ctx context.Context, role auth.Role, req *enginetypes.Request) *enginetypes.Response {
	defer dispatchTimer.UpdateSince(time.Now())

	if req.JSONRPC != enginetypes.Version {
		resp := enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		if req.IsNotification() {
			return nil
		}
		return resp
	}

	var resp *enginetypes.Response
	switch Classify(req.Method) {
	case ClassCacheable:
		if role.Kind == auth.RoleController {
			resp = r.controllerCacheable(ctx, req)
		} else {
			resp = r.followerCacheable(ctx, req)
		}
	case ClassBuild:
		resp = r.handleBuild(ctx, role, req)
	case ClassMeta:
		resp = r.handleMeta(ctx, role, req)
	case ClassGeneric:
		resp = r.handleGeneric(ctx, req)
	default:
		resp = enginetypes.NewErrorResponse(req.ID, enginetypes.CodeMethodNotFound, "method not found: "+req.Method)
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

// HandleBatch runs every request concurrently (§5: "each JSON-RPC batch
// element is an independent task") and reassembles responses in the
// original order, dropping notifications, per §4.7/§8.
func (r *Router) HandleBatch(ctx context.Context, role auth.Role, reqs []*enginetypes.Request) []*enginetypes.Response {
	batchID := uuid.New().String()
	log.Debug("dispatching batch", "batch", batchID, "size", len(reqs), "role", role.String())

	results := make([]*enginetypes.Response, len(reqs))
	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(i int, req *enginetypes.Request) {
			defer wg.Done()
			results[i] = r.Dispatch(ctx, role, req)
		}(i, req)
	}
	wg.Wait()

	out := make([]*enginetypes.Response, 0, len(reqs))
	for _, resp := range results {
		if resp != nil {
			out = append(out, resp)
		}
	}
	return out
}

// decodeParams splits a JSON-RPC params array into its elements. Engine API
// calls are always positional arrays, never named objects.
func decodeParams(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	return elems, nil
}

func paramAt(elems []json.RawMessage, i int) json.RawMessage {
	if i < 0 || i >= len(elems) {
		return nil
	}
	return elems[i]
}

// forwardResponse forwards method verbatim to the primary engine and
// returns its raw result as the response body, for classes that need no
// multiplexer-side interpretation.
func (r *Router) forwardResponse(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed params: "+err.Error())
	}
	args := make([]interface{}, len(elems))
	for i, e := range elems {
		args[i] = e
	}
	raw, err := r.engine.Call(ctx, req.Method, args...)
	if err != nil {
		return upstreamControllerError(req.ID, err)
	}
	return &enginetypes.Response{JSONRPC: enginetypes.Version, ID: req.ID, Result: raw}
}

// upstreamControllerError maps an engineclient failure to the §7 "Upstream,
// for controller requests" shape: a synthesized -32603 with a descriptive
// message, never a cached value.
func upstreamControllerError(id json.RawMessage, err error) *enginetypes.Response {
	return enginetypes.NewErrorResponse(id, enginetypes.CodeInternalError, "upstream engine error: "+err.Error())
}
