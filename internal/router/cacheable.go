package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethpandaops/engine-mux/internal/cache"
	"github.com/ethpandaops/engine-mux/internal/config"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
	"github.com/ethpandaops/engine-mux/internal/matcher"
)

// controllerCacheable handles engine_newPayload*/engine_forkchoiceUpdated*
// on the canonical route: forward to the primary, publish the result into
// the cache, per §4.7's "Engine/cacheable, canonical route" row.
func (r *Router) controllerCacheable(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	if isForkchoiceMethod(req.Method) {
		return r.controllerForkchoice(ctx, req)
	}
	return r.controllerNewPayload(ctx, req)
}

// followerCacheable handles the same methods on the client route: consult
// the cache, wait if eligible, then let the matcher decide the status.
func (r *Router) followerCacheable(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	if isForkchoiceMethod(req.Method) {
		return r.followerForkchoice(ctx, req)
	}
	return r.followerNewPayload(ctx, req)
}

func isForkchoiceMethod(method string) bool {
	return strings.HasPrefix(method, "engine_forkchoiceUpdated")
}

// decodedPayload is the result of parsing an engine_newPayload* params
// array into its payload plus the Deneb-only sidecar fields that travel
// alongside it rather than inside it.
type decodedPayload struct {
	payload               *enginetypes.ExecutionPayload
	versionedHashes       []common.Hash
	parentBeaconBlockRoot *common.Hash
	fingerprint           enginetypes.NewPayloadFingerprint
}

func decodeNewPayload(req *enginetypes.Request) (*decodedPayload, error) {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return nil, err
	}
	payload, err := enginetypes.ParseExecutionPayload(paramAt(elems, 0), req.Method)
	if err != nil {
		return nil, err
	}
	var versionedHashes []common.Hash
	if raw := paramAt(elems, 1); raw != nil {
		_ = json.Unmarshal(raw, &versionedHashes)
	}
	var parentBeaconBlockRoot *common.Hash
	if raw := paramAt(elems, 2); raw != nil {
		_ = json.Unmarshal(raw, &parentBeaconBlockRoot)
	}
	return &decodedPayload{
		payload:               payload,
		versionedHashes:       versionedHashes,
		parentBeaconBlockRoot: parentBeaconBlockRoot,
		fingerprint:           payload.Fingerprint(versionedHashes, parentBeaconBlockRoot),
	}, nil
}

// controllerNewPayload forwards to the primary and caches the verdict,
// short-circuiting with the builder's own echo when the block hash is one
// the builder produced itself — a follower's build can arrive at the
// controller's route too (e.g. a relay resubmitting it), so the echo check
// runs for every role, per §4.6.
func (r *Router) controllerNewPayload(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	decoded, err := decodeNewPayload(req)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed newPayload params: "+err.Error())
	}

	if status, ok := r.echoBuiltPayload(decoded); ok {
		r.np.Insert(decoded.fingerprint, status, decoded.payload.Variant)
		return enginetypes.NewResultResponse(req.ID, status)
	}

	resp := r.forwardResponse(ctx, req)
	if resp.Error != nil {
		return resp
	}
	var status enginetypes.PayloadStatusV1
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		return upstreamControllerError(req.ID, err)
	}
	r.np.Insert(decoded.fingerprint, status, decoded.payload.Variant)
	if status.Status == enginetypes.StatusValid {
		r.np.ObserveHead(uint64(decoded.payload.BlockNumber))
		r.build.RegisterCanonicalPayload(decoded.payload, status.Status)
	}
	return resp
}

func (r *Router) followerNewPayload(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	decoded, err := decodeNewPayload(req)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed newPayload params: "+err.Error())
	}

	if status, ok := r.echoBuiltPayload(decoded); ok {
		return enginetypes.NewResultResponse(req.ID, status)
	}

	cached, ok := r.np.Get(decoded.fingerprint)
	if !ok || !cached.Status.Status.IsDefinite() {
		blockNumber := uint64(decoded.payload.BlockNumber)
		if r.np.IsStale(blockNumber, r.cfg.NewPayloadWaitCutoff) {
			log.Debug("stale newPayload, answering instantly", "block", blockNumber)
		} else {
			waitCtx, cancel := context.WithTimeout(ctx, r.cfg.NewPayloadWait)
			defer cancel()
			cached, ok = r.np.WaitFor(waitCtx, decoded.fingerprint)
		}
	}
	status := statusOrSyncing(cached, ok)
	return enginetypes.NewResultResponse(req.ID, status)
}

// echoBuiltPayload implements §4.6's newPayload echo: a block hash the
// builder produced is always VALID without contacting the primary,
// regardless of caller role.
func (r *Router) echoBuiltPayload(decoded *decodedPayload) (enginetypes.PayloadStatusV1, bool) {
	built, ok := r.build.LookupBuiltPayload(decoded.payload.BlockHash())
	if !ok {
		return enginetypes.PayloadStatusV1{}, false
	}
	hash := built.BlockHash()
	return enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid, LatestValidHash: &hash}, true
}

// controllerForkchoice implements §4.7's dual action: forward the
// sanitized (attribute-stripped) fcU to the primary to keep its head
// tracking live, and, once that forward succeeds, register a build when
// attributes are present. The primary never sees the attributes (§8's invariant).
func (r *Router) controllerForkchoice(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed fcU params: "+err.Error())
	}
	var fcState enginetypes.ForkchoiceStateV1
	if err := json.Unmarshal(paramAt(elems, 0), &fcState); err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed forkchoiceState: "+err.Error())
	}
	attrs, err := enginetypes.ParsePayloadAttributes(paramAt(elems, 1))
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidPayloadAttrs, "malformed payloadAttributes: "+err.Error())
	}
	if attrs != nil {
		r.logForkScheduleMismatch(attrs)
	}

	raw, callErr := r.engine.Call(ctx, req.Method, fcState)
	if callErr != nil {
		return upstreamControllerError(req.ID, callErr)
	}
	var fcuResp enginetypes.ForkchoiceUpdatedResponse
	if err := json.Unmarshal(raw, &fcuResp); err != nil {
		return upstreamControllerError(req.ID, err)
	}

	variant := enginetypes.VariantForMethod(req.Method)
	r.fc.Insert(fcState, fcuResp.PayloadStatus, variant)

	if attrs == nil {
		return enginetypes.NewResultResponse(req.ID, fcuResp)
	}

	payloadID, err := r.build.RegisterAttributes(fcState.HeadBlockHash, attrs)
	if err != nil {
		log.Debug("cannot register build, unknown parent", "head", fcState.HeadBlockHash, "error", err)
		return enginetypes.NewResultResponse(req.ID, enginetypes.ForkchoiceUpdatedResponse{PayloadStatus: fcuResp.PayloadStatus})
	}
	return enginetypes.NewResultResponse(req.ID, enginetypes.ForkchoiceUpdatedResponse{
		PayloadStatus: fcuResp.PayloadStatus,
		PayloadID:     &payloadID,
	})
}

// followerForkchoice resolves the cached/matched status for a follower,
// waiting up to fcu_wait_millis, and additionally runs the building side
// of fcU-with-attrs for the follower too — per §4.7's table, Engine/build's
// client route is also C6, so any role may request a dummy build.
func (r *Router) followerForkchoice(ctx context.Context, req *enginetypes.Request) *enginetypes.Response {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed fcU params: "+err.Error())
	}
	var fcState enginetypes.ForkchoiceStateV1
	if err := json.Unmarshal(paramAt(elems, 0), &fcState); err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed forkchoiceState: "+err.Error())
	}
	attrs, err := enginetypes.ParsePayloadAttributes(paramAt(elems, 1))
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidPayloadAttrs, "malformed payloadAttributes: "+err.Error())
	}

	status := r.resolveForkchoiceWithWait(ctx, fcState)

	resp := enginetypes.ForkchoiceUpdatedResponse{PayloadStatus: status}
	if attrs != nil {
		r.logForkScheduleMismatch(attrs)
		if payloadID, err := r.build.RegisterAttributes(fcState.HeadBlockHash, attrs); err == nil {
			resp.PayloadID = &payloadID
		} else {
			log.Debug("cannot register follower build, unknown parent", "head", fcState.HeadBlockHash, "error", err)
		}
	}
	return enginetypes.NewResultResponse(req.ID, resp)
}

func statusOrSyncing(cached cache.CachedStatus, ok bool) enginetypes.PayloadStatusV1 {
	return matcher.NewPayloadStatus(cached.Status, ok)
}

// logForkScheduleMismatch flags, purely for operator visibility, when the
// attributes' own fork variant disagrees with what the configured
// network's schedule implies for their timestamp — never rejected, since
// payload validation is explicitly out of scope.
func (r *Router) logForkScheduleMismatch(attrs *enginetypes.PayloadAttributes) {
	expected := config.ExpectedVariant(r.cfg.Network, uint64(attrs.Timestamp))
	if expected != attrs.Variant {
		log.Debug("payload attributes fork variant disagrees with network schedule",
			"network", r.cfg.Network, "timestamp", attrs.Timestamp, "got", attrs.Variant, "expected", expected)
	}
}
