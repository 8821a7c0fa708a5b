// Package nctypes holds the error kinds and shared enums used across the
// connect/listen core so that every package can classify failures the same
// way the setup and teardown paths expect.
package nctypes

import "github.com/pkg/errors"

// Family restricts candidate resolution and socket creation to one address
// family, or leaves it unspecified so both are tried.
type Family int

const (
	FamilyUnspecified Family = iota
	FamilyV4
	FamilyV6
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "inet"
	case FamilyV6:
		return "inet6"
	default:
		return "unspec"
	}
}

// SockType is the transport the candidate/stream is carrying.
type SockType int

const (
	SockNone SockType = iota
	SockStream
	SockDatagram
)

func (s SockType) String() string {
	switch s {
	case SockStream:
		return "stream"
	case SockDatagram:
		return "dgram"
	default:
		return "none"
	}
}

// Mode selects outbound (client) or inbound (one-shot listener) operation.
type Mode int

const (
	ModeConnect Mode = iota
	ModeListen
)

// ResolveError wraps a failure from the endpoint resolver (C3). It is
// always fatal at setup and never arises mid-session.
type ResolveError struct{ Detail string }

func (e *ResolveError) Error() string { return "resolve: " + e.Detail }

func NewResolveError(detail string) error { return errors.WithStack(&ResolveError{Detail: detail}) }

// SocketCreateError distinguishes a candidate whose family/socktype pairing
// isn't supported by the host (skip and try the next candidate) from a hard
// failure that should abort the whole walk.
type SocketCreateError struct {
	Unsupported bool
	Detail      string
}

func (e *SocketCreateError) Error() string { return "socket: " + e.Detail }

func NewSocketCreateError(unsupported bool, detail string) error {
	return errors.WithStack(&SocketCreateError{Unsupported: unsupported, Detail: detail})
}

// BindError, ConnectError, ListenError and AcceptError are per-candidate:
// logged in verbose mode, not fatal while candidates remain, fatal once the
// list is exhausted with no success.
type BindError struct{ Detail string }

func (e *BindError) Error() string { return "bind: " + e.Detail }
func NewBindError(detail string) error {
	return errors.WithStack(&BindError{Detail: detail})
}

type ConnectError struct{ Detail string }

func (e *ConnectError) Error() string { return "connect: " + e.Detail }
func NewConnectError(detail string) error {
	return errors.WithStack(&ConnectError{Detail: detail})
}

type ListenError struct{ Detail string }

func (e *ListenError) Error() string { return "listen: " + e.Detail }
func NewListenError(detail string) error {
	return errors.WithStack(&ListenError{Detail: detail})
}

type AcceptError struct{ Detail string }

func (e *AcceptError) Error() string { return "accept: " + e.Detail }
func NewAcceptError(detail string) error {
	return errors.WithStack(&AcceptError{Detail: detail})
}

// ReadError and WriteError are mid-session, on one specific descriptor.
// They transition their owning stream's state and are recovered locally;
// they never propagate to process exit by themselves.
type ReadError struct{ Detail string }

func (e *ReadError) Error() string { return "read: " + e.Detail }
func NewReadError(detail string) error {
	return errors.WithStack(&ReadError{Detail: detail})
}

type WriteError struct{ Detail string }

func (e *WriteError) Error() string { return "write: " + e.Detail }
func NewWriteError(detail string) error {
	return errors.WithStack(&WriteError{Detail: detail})
}

// TimeoutExpired marks a hold-timeout or connect-timeout deadline. It is not
// itself a failure unless the connection never came up.
type TimeoutExpired struct{ Detail string }

func (e *TimeoutExpired) Error() string { return "timeout: " + e.Detail }
func NewTimeoutExpired(detail string) error {
	return errors.WithStack(&TimeoutExpired{Detail: detail})
}

// InternalInvariantError marks an assertion failure. It is always fatal and
// indicates a bug in this package, never a runtime condition.
type InternalInvariantError struct{ Detail string }

func (e *InternalInvariantError) Error() string { return "internal invariant violated: " + e.Detail }
func NewInternalInvariantError(detail string) error {
	return errors.WithStack(&InternalInvariantError{Detail: detail})
}
