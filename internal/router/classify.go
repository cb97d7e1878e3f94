package router

import "strings"

// Class is the method classification of §4.7's table. Classification is by
// name alone — role only changes which handler within a class runs.
type Class int

const (
	ClassCacheable Class = iota
	ClassBuild
	ClassMeta
	ClassGeneric
	ClassUnknown
)

// Classify maps a JSON-RPC method name to its dispatch class. Order matters:
// engine_getPayloadBodies* must be checked before the engine_getPayload*
// prefix it would otherwise also match.
func Classify(method string) Class {
	switch {
	case strings.HasPrefix(method, "engine_newPayload"):
		return ClassCacheable
	case strings.HasPrefix(method, "engine_forkchoiceUpdated"):
		return ClassCacheable
	case strings.HasPrefix(method, "engine_getPayloadBodies"):
		return ClassMeta
	case method == "engine_exchangeCapabilities":
		return ClassMeta
	case strings.HasPrefix(method, "engine_exchangeTransitionConfiguration"):
		return ClassMeta
	case strings.HasPrefix(method, "engine_getPayload"):
		return ClassBuild
	case strings.HasPrefix(method, "eth_"), strings.HasPrefix(method, "net_"), strings.HasPrefix(method, "web3_"):
		return ClassGeneric
	default:
		return ClassUnknown
	}
}
