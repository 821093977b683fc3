package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

// Kind is the typed failure taxonomy the store exposes at its boundary.
// Callers classify on Kind, never on raw error message text.
type Kind int

const (
	KindInternal Kind = iota
	KindConnectivity
	KindPolicyDenied
	KindNotFound
	KindAlreadySubmitted
	KindConflict
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindPolicyDenied:
		return "policy_denied"
	case KindNotFound:
		return "not_found"
	case KindAlreadySubmitted:
		return "already_submitted"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error is the store's boundary error. Op names the failed operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store.%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store.%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from any error returned by this package.
// Errors from other sources report KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// wrap maps a raw driver failure to a typed store error.
func wrap(op string, err error) *Error {
	return newError(op, kindFromDriver(err), err)
}

func kindFromDriver(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, sql.ErrNoRows) {
		return KindNotFound
	}
	if errors.Is(err, driver.ErrBadConn) {
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnectivity
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "57014": // query_canceled
			return KindTimeout
		case pqErr.Code == "23505": // unique_violation
			return KindConflict
		case pqErr.Code == "42501": // insufficient_privilege
			return KindPolicyDenied
		case pqErr.Code.Class() == "28": // invalid authorization
			return KindPolicyDenied
		case pqErr.Code.Class() == "08": // connection exception
			return KindConnectivity
		}
	}

	return KindInternal
}
