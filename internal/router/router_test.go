package router

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/engine-mux/internal/auth"
	"github.com/ethpandaops/engine-mux/internal/builder"
	"github.com/ethpandaops/engine-mux/internal/cache"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
	"github.com/ethpandaops/engine-mux/internal/matcher"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	np, err := cache.NewNewPayloadCache(16)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := cache.NewForkchoiceCache(16, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := builder.New(16, "engine-mux-test")
	if err != nil {
		t.Fatal(err)
	}
	m := matcher.New(matcher.Exact)
	cfg := Config{
		NewPayloadWait:        200 * time.Millisecond,
		NewPayloadWaitCutoff:  64,
		FCUWait:               200 * time.Millisecond,
		MaxPayloadBodiesBatch: 32,
		Network:               "mainnet",
	}
	// the engine client is never touched by the follower paths exercised
	// here, so a nil *engineclient.Client is a legitimate test double.
	return New(nil, np, fc, m, b, cfg)
}

// hash32/addr20 format an exact-length hex string (common.Hash/
// common.Address both reject anything but the exact byte count), keyed
// off a small distinguishing tag so tests stay readable.
func hash32(tag byte) string { return fmt.Sprintf("0x%064x", tag) }
func addr20(tag byte) string { return fmt.Sprintf("0x%040x", tag) }

func newPayloadRequest(blockHash string) *enginetypes.Request {
	params := fmt.Sprintf(`[{"parentHash":%q,"feeRecipient":%q,"stateRoot":%q,"receiptsRoot":%q,"logsBloom":"0x","prevRandao":%q,"blockNumber":"0x64","gasLimit":"0x1c9c380","gasUsed":"0x0","timestamp":"0x12345","extraData":"0x","baseFeePerGas":"0x0","blockHash":%q,"transactions":[]}]`,
		hash32(0x0b), addr20(0x0c), hash32(0x0d), hash32(0x0e), hash32(0x0f), blockHash)
	return &enginetypes.Request{
		JSONRPC: enginetypes.Version,
		Method:  "engine_newPayloadV1",
		Params:  json.RawMessage(params),
		ID:      json.RawMessage(`1`),
	}
}

func decodedPayloadFingerprint(t *testing.T, req *enginetypes.Request) enginetypes.NewPayloadFingerprint {
	t.Helper()
	decoded, err := decodeNewPayload(req)
	if err != nil {
		t.Fatal(err)
	}
	return decoded.fingerprint
}

// TestFollowerNewPayloadWaitsPastIndefiniteForDefinite reproduces the
// single-flight window a follower actually relies on: the controller's
// first cached verdict is the provisional SYNCING sent while it's still
// processing the call, and the definite VALID lands a little later. The
// follower's wait must not return on the SYNCING — it has to keep waiting
// (up to NewPayloadWait) and come back with VALID.
func TestFollowerNewPayloadWaitsPastIndefiniteForDefinite(t *testing.T) {
	r := newTestRouter(t)
	req := newPayloadRequest(hash32(0xaa))
	fp := decodedPayloadFingerprint(t, req)

	r.np.Insert(fp, enginetypes.PayloadStatusV1{Status: enginetypes.StatusSyncing}, enginetypes.ForkBellatrix)

	done := make(chan *enginetypes.Response, 1)
	go func() {
		done <- r.Dispatch(context.Background(), auth.Role{Kind: auth.RoleClient, KeyID: "follower"}, req)
	}()

	time.Sleep(20 * time.Millisecond)
	r.np.Insert(fp, enginetypes.PayloadStatusV1{Status: enginetypes.StatusValid}, enginetypes.ForkBellatrix)

	select {
	case resp := <-done:
		var status enginetypes.PayloadStatusV1
		if err := json.Unmarshal(resp.Result, &status); err != nil {
			t.Fatal(err)
		}
		if status.Status != enginetypes.StatusValid {
			t.Fatalf("follower newPayload returned %v before the definite VALID landed, want VALID", status.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("follower newPayload never returned")
	}
}

// TestFollowerNewPayloadFallsBackToIndefiniteAfterDeadline covers the other
// half: if no definite status ever arrives, the follower must still get
// back the cached indefinite one once NewPayloadWait elapses, rather than
// blocking forever or erroring out.
func TestFollowerNewPayloadFallsBackToIndefiniteAfterDeadline(t *testing.T) {
	r := newTestRouter(t)
	r.cfg.NewPayloadWait = 50 * time.Millisecond
	req := newPayloadRequest(hash32(0xbb))
	fp := decodedPayloadFingerprint(t, req)

	r.np.Insert(fp, enginetypes.PayloadStatusV1{Status: enginetypes.StatusAccepted}, enginetypes.ForkBellatrix)

	resp := r.Dispatch(context.Background(), auth.Role{Kind: auth.RoleClient}, req)
	var status enginetypes.PayloadStatusV1
	if err := json.Unmarshal(resp.Result, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != enginetypes.StatusAccepted {
		t.Fatalf("got %v, want the cached indefinite ACCEPTED after the deadline", status.Status)
	}
}

func forkchoiceRequest(head string) *enginetypes.Request {
	params := fmt.Sprintf(`[{"headBlockHash":%q,"safeBlockHash":%q,"finalizedBlockHash":%q}]`, head, head, head)
	return &enginetypes.Request{
		JSONRPC: enginetypes.Version,
		Method:  "engine_forkchoiceUpdatedV1",
		Params:  json.RawMessage(params),
		ID:      json.RawMessage(`1`),
	}
}

// TestFollowerForkchoiceWaitsPastIndefiniteForDefinite is the fcU analogue
// of the newPayload test above: the matcher must not settle for a
// SYNCING-backed match while a definite status is still within the wait
// window.
func TestFollowerForkchoiceWaitsPastIndefiniteForDefinite(t *testing.T) {
	r := newTestRouter(t)
	head := hash32(0x12)
	req := forkchoiceRequest(head)

	var fcState enginetypes.ForkchoiceStateV1
	elems, err := decodeParams(req.Params)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(elems[0], &fcState); err != nil {
		t.Fatal(err)
	}

	r.fc.Insert(fcState, enginetypes.PayloadStatusV1{Status: enginetypes.StatusSyncing}, enginetypes.ForkBellatrix)

	done := make(chan *enginetypes.Response, 1)
	go func() {
		done <- r.Dispatch(context.Background(), auth.Role{Kind: auth.RoleClient, KeyID: "follower"}, req)
	}()

	time.Sleep(20 * time.Millisecond)
	// Insert refuses to overwrite a definite entry, and SYNCING isn't
	// definite, so this one goes through and wakes the waiting follower.
	r.fc.Insert(fcState, enginetypes.PayloadStatusV1{Status: enginetypes.StatusInvalid}, enginetypes.ForkBellatrix)

	select {
	case resp := <-done:
		var fcuResp enginetypes.ForkchoiceUpdatedResponse
		if err := json.Unmarshal(resp.Result, &fcuResp); err != nil {
			t.Fatal(err)
		}
		if fcuResp.PayloadStatus.Status != enginetypes.StatusInvalid {
			t.Fatalf("follower fcU returned %v before the definite status landed, want INVALID", fcuResp.PayloadStatus.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("follower forkchoiceUpdated never returned")
	}
}
