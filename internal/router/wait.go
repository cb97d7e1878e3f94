package router

import (
	"context"

	"github.com/ethpandaops/engine-mux/internal/enginetypes"
	"github.com/ethpandaops/engine-mux/internal/waiter"
)

// resolveForkchoiceWithWait answers a follower's forkchoiceUpdated request,
// waiting up to fcu_wait_millis for a controller insert that the matcher
// accepts with a definite (VALID/INVALID) status (§4.4: "For fcU: always
// wait up to fcu_wait_millis") — a matched but indefinite SYNCING/ACCEPTED
// status is not enough to return early, since a definite one is very
// likely still coming from the controller (mirrors fcu.rs's
// definite_only=true poll). Because a loose/head-only match can be
// satisfied by a controller insert under a key different from the
// follower's own, this subscribes to the cache-wide wake channel rather
// than the follower's exact key. Once the deadline passes, the fallback
// accepts whatever the matcher resolves to, indefinite or not, before
// finally synthesizing SYNCING if nothing matched at all.
func (r *Router) resolveForkchoiceWithWait(ctx context.Context, follower enginetypes.ForkchoiceKey) enginetypes.PayloadStatusV1 {
	if status, matched := r.match.Resolve(follower, r.fc); matched && status.Status.IsDefinite() {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FCUWait)
	defer cancel()

	for {
		ch := r.fc.SubscribeAny()
		// Re-check after subscribing, closing the race between the initial
		// miss above and the subscription taking effect.
		if status, matched := r.match.Resolve(follower, r.fc); matched && status.Status.IsDefinite() {
			r.fc.UnsubscribeAny(ch)
			return status
		}
		select {
		case <-ch:
			r.fc.UnsubscribeAny(ch)
			continue
		case <-ctx.Done():
			r.fc.UnsubscribeAny(ch)
			waiter.RecordTimeout()
			if status, matched := r.match.Resolve(follower, r.fc); matched {
				return status
			}
			return enginetypes.SyncingStatus()
		}
	}
}
