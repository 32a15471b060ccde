package ledger

import (
	"errors"
	"fmt"
)

// TransportError means a node produced no well-formed response at all:
// unreachable, timed out, or replied with garbage. It is the only error that
// triggers failover to the next candidate node.
type TransportError struct {
	Node string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger: transport failure against %s: %v", e.Node, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError means a node returned a well-formed non-OK status code. A
// rejection is a property of the request, not the node, so it is terminal
// and never retried against a different node.
type RejectionError struct {
	Code ResponseCode
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("ledger: rejected with %s (%d)", e.Code, int32(e.Code))
}

// IsTransport reports whether err is (or wraps) a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is (or wraps) a ledger rejection, and if
// so returns the code.
func IsRejection(err error) (ResponseCode, bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}
