package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

// serveJSONRPC reads and size-limits the body, decodes it as either a
// single JSON-RPC request or a batch, dispatches through the router, and
// writes the JSON-RPC response(s) — always HTTP 200 for a successfully
// parsed body, per §4.8/§6 ("Successful dispatch always returns 200 OK
// with a JSON-RPC envelope, including for JSON-RPC-level errors").
func (s *Server) serveJSONRPC(w http.ResponseWriter, req *http.Request, role auth.Role) {
	body, err := readLimited(req.Body, s.bodyLimit)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.CodeParseError, "failed to read body: "+err.Error()))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.CodeParseError, "empty body"))
		return
	}

	if trimmed[0] == '[' {
		var reqs []*enginetypes.Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.CodeParseError, "malformed json-rpc batch: "+err.Error()))
			return
		}
		responses := s.router.HandleBatch(req.Context(), role, reqs)
		writeBatch(w, responses)
		return
	}

	var single enginetypes.Request
	if err := json.Unmarshal(trimmed, &single); err != nil {
		writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.CodeParseError, "malformed json-rpc request: "+err.Error()))
		return
	}
	resp := s.router.Dispatch(req.Context(), role, &single)
	if resp == nil {
		// a bare notification still gets an empty 200 OK, there being no
		// JSON-RPC batch to fold it into.
		w.WriteHeader(http.StatusOK)
		return
	}
	writeResponse(w, resp)
}

var errBodyTooLarge = errors.New("request body exceeds configured limit")

// readLimited reads up to limit+1 bytes so it can distinguish "exactly at
// the limit" (accepted, per §8's boundary test) from "one byte over"
// (rejected) without buffering an unbounded attacker-supplied body.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeResponse(w http.ResponseWriter, resp *enginetypes.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("failed to encode json-rpc response", "error", err)
	}
}

func writeBatch(w http.ResponseWriter, responses []*enginetypes.Response) {
	if len(responses) == 0 {
		// a batch made up entirely of notifications gets no body at all,
		// per JSON-RPC 2.0 — there is nothing to fold into an empty array.
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(responses); err != nil {
		log.Error("failed to encode json-rpc batch response", "error", err)
	}
}
