package router

import (
	"context"
	"encoding/json"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

// handleBuild answers engine_getPayload_vN for any role: the dummy builder
// is the sole authority on payload ids, regardless of who asks, per
// §4.7's "Engine/build" row applying identically to both routes.
func (r *Router) handleBuild(_ context.Context, _ auth.Role, req *enginetypes.Request) *enginetypes.Response {
	elems, err := decodeParams(req.Params)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed getPayload params: "+err.Error())
	}
	var id enginetypes.PayloadID
	if err := json.Unmarshal(paramAt(elems, 0), &id); err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeInvalidParams, "malformed payloadId: "+err.Error())
	}
	payload, err := r.build.GetPayload(id)
	if err != nil {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.CodeUnknownPayload, err.Error())
	}
	return enginetypes.NewResultResponse(req.ID, payload.Envelope())
}
