// Package matcher implements the consistency matcher (C5): given a
// follower's forkchoiceUpdated request, decides whether a controller
// response cached under a different (head, safe, finalized) triple may be
// returned as-is, or must be downgraded to SYNCING. See §4.5.
package matcher

import (
	"github.com/ethpandaops/engine-mux/internal/cache"
	"github.com/ethpandaops/engine-mux/internal/enginetypes"
)

// Mode selects one of the three matching strategies, chosen at
// configuration time and fixed for the process lifetime.
type Mode int

const (
	Exact Mode = iota
	Loose
	HeadOnly
)

// ParseMode parses the fcu_matching configuration value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "exact", "":
		return Exact, nil
	case "loose":
		return Loose, nil
	case "head_only":
		return HeadOnly, nil
	default:
		return Exact, errUnknownMode(s)
	}
}

func (m Mode) String() string {
	switch m {
	case Loose:
		return "loose"
	case HeadOnly:
		return "head_only"
	default:
		return "exact"
	}
}

type unknownModeError string

func (e unknownModeError) Error() string { return "matcher: unknown fcu_matching mode " + string(e) }
func errUnknownMode(s string) error      { return unknownModeError(s) }

// Matcher resolves a follower's forkchoiceUpdated request against the
// cached controller state.
type Matcher struct {
	mode Mode
}

// New constructs a Matcher fixed to mode for the process lifetime.
func New(mode Mode) *Matcher { return &Matcher{mode: mode} }

// Mode reports the configured matching strategy.
func (m *Matcher) Mode() Mode { return m.mode }

// Resolve returns the status to hand back to a follower asking about
// follower's triple, given fc's current contents. matched reports whether
// a controller-observed response backed the result (false means the
// returned status is a synthesized SYNCING with no upstream backing).
func (m *Matcher) Resolve(follower enginetypes.ForkchoiceKey, fc *cache.ForkchoiceCache) (status enginetypes.PayloadStatusV1, matched bool) {
	defer func() {
		if matched {
			matchedCounter.Inc(1)
		} else {
			unmatchedCounter.Inc(1)
		}
	}()
	switch m.mode {
	case Exact:
		if cached, ok := fc.Get(follower); ok {
			return cached.Status, true
		}
		return enginetypes.SyncingStatus(), false

	case Loose:
		_, cached, ok := fc.GetByHead(follower.HeadBlockHash)
		if !ok {
			return enginetypes.SyncingStatus(), false
		}
		if !fc.IsJustified(follower.SafeBlockHash) || !fc.IsFinalized(follower.FinalizedBlockHash) {
			return enginetypes.SyncingStatus(), false
		}
		return cached.Status, true

	case HeadOnly:
		_, cached, ok := fc.GetByHead(follower.HeadBlockHash)
		if !ok {
			return enginetypes.SyncingStatus(), false
		}
		return cached.Status, true

	default:
		return enginetypes.SyncingStatus(), false
	}
}

// NewPayloadStatus is the "no relaxation" rule for newPayload: a fingerprint
// either matches exactly or the follower gets SYNCING, regardless of
// matcher mode. It exists alongside Resolve purely so callers in the
// router don't have to special-case newPayload's lack of a matcher mode.
func NewPayloadStatus(cached enginetypes.PayloadStatusV1, ok bool) enginetypes.PayloadStatusV1 {
	if !ok {
		return enginetypes.SyncingStatus()
	}
	return cached
}
