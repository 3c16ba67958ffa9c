package engine

import (
	"errors"
	"fmt"

	"github.com/samaelod/netprobe/types"
)

var (
	// ErrTimeout means a connect, bind, disconnect or unbind was not
	// confirmed within the engine timeout.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotBound and ErrNotConnected report a request that found the role
	// already in the target state. They are informational.
	ErrNotBound     = errors.New("not currently bound")
	ErrNotConnected = errors.New("not currently connected")

	// ErrConnectionLost marks a peer-initiated teardown of an active connection.
	ErrConnectionLost = errors.New("connection lost")

	ErrUnsupportedRole = errors.New("operation not supported for role")
	ErrNoHandle        = errors.New("no live socket")
)

// OpError records which operation failed, on which role and address.
type OpError struct {
	Op   string
	Role types.Role
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Role, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Role, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func newOpError(op string, role types.Role, addr string, err error) *OpError {
	return &OpError{Op: op, Role: role, Addr: addr, Err: err}
}

// IsInformational reports errors that leave the role untouched.
func IsInformational(err error) bool {
	return errors.Is(err, ErrNotBound) || errors.Is(err, ErrNotConnected)
}
