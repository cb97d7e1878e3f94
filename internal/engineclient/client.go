// Package engineclient is the authenticated JSON-RPC client to the primary
// execution engine (C1). It is a thin wrapper around go-ethereum's own
// rpc.Client — the outbound transport is explicitly out of scope per §1,
// "treated as a library the core consumes" — adding only JWT signing and
// the error-kind split §7 requires (JSON-RPC error vs. transport/upstream
// failure).
package engineclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v5"
)

// Client talks to the one primary execution engine. It is not a pool — per
// §4.2, a single instance is sufficient, the primary provides its own
// concurrency.
type Client struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// New dials the primary engine's endpoint, installing an HTTP auth hook
// that mints a fresh HS256-signed bearer token (claims {iat}) on every
// request, the way evstack's getAuthToken/WithHTTPAuth pairing does.
func New(ctx context.Context, url string, jwtSecret []byte, timeout time.Duration) (*Client, error) {
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPAuth(func(h http.Header) error {
		token, err := mintToken(jwtSecret)
		if err != nil {
			return err
		}
		h.Set("Authorization", "Bearer "+token)
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("dial primary engine %s: %w", url, err)
	}
	return &Client{rpc: c, timeout: timeout}, nil
}

func mintToken(secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
	})
	return token.SignedString(secret)
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Error is the distinction §7 requires at the engine-client boundary:
// Transport is true for dial/network/deserialisation failures, false for a
// well-formed JSON-RPC error object returned by the primary.
type Error struct {
	Transport bool
	RPCError  *jsonrpcError // non-nil only when Transport is false
	Cause     error
}

type jsonrpcError struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Transport {
		return fmt.Sprintf("engineclient: transport error: %v", e.Cause)
	}
	return fmt.Sprintf("engineclient: json-rpc error %d: %s", e.RPCError.Code, e.RPCError.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Call invokes method on the primary engine with a per-call deadline and
// decodes the raw JSON result, leaving interpretation (e.g. into a
// PayloadStatusV1) to the caller.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw json.RawMessage
	err := c.rpc.CallContext(ctx, &raw, method, params...)
	if err == nil {
		return raw, nil
	}
	if rpcErr, ok := err.(rpc.Error); ok {
		log.Debug("primary engine returned json-rpc error", "method", method, "code", rpcErr.ErrorCode(), "message", rpcErr.Error())
		return nil, &Error{
			Transport: false,
			RPCError:  &jsonrpcError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()},
			Cause:     err,
		}
	}
	log.Debug("primary engine call failed", "method", method, "error", err)
	return nil, &Error{Transport: true, Cause: err}
}
