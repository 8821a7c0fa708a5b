// Package sockopt wraps the raw socket options and syscalls the core
// depends on that net.Conn cannot express portably: v6-only mode,
// reuse-address, nagle-disable, datagram peek, and descriptor duplication
// for the listener's one-shot UDP session handoff. The platform-specific
// pieces live in sockopt_unix.go / sockopt_other.go.
package sockopt

import (
	"net"
	"strings"
	"time"
)

// Listener returns a net.ListenConfig whose Control hook applies the
// listener's bind-time socket options (§4.5 step 2): best-effort v6-only on
// a v6 candidate, and best-effort SO_REUSEADDR unless suppressed.
func Listener(dontReuseAddr bool) net.ListenConfig {
	return net.ListenConfig{Control: controlFunc(!dontReuseAddr)}
}

// Dialer returns a net.Dialer whose Control hook applies the connector's
// bind-time v6-only option (§4.4 step b) before connect. Reuse-address does
// not apply to an outbound connect, so it is never requested here.
func Dialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{Timeout: timeout, Control: controlFunc(false)}
}

// SetNoDelay applies the --no-nagle-disable / DISABLE_NAGLE policy to a
// connected stream socket. It is a no-op for anything other than a
// *net.TCPConn, matching the "optional nagle-disable" wording in §6.2: not
// every transport has a Nagle algorithm to disable.
func SetNoDelay(conn net.Conn, disable bool) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetNoDelay(disable)
}

// IsUnsupportedFamily reports whether err is the kind of socket-creation
// failure that means "this candidate's family/socktype pairing isn't
// supported on this host, skip it and try the next one" rather than a hard
// failure that should abort the whole candidate walk. Ported from netcat6's
// network.c unsupported_sock_error, which matches EPFNOSUPPORT,
// EAFNOSUPPORT, EPROTONOSUPPORT, ESOCKTNOSUPPORT and ENOPROTOOPT.
func IsUnsupportedFamily(err error) bool {
	if err == nil {
		return false
	}
	return isUnsupportedFamily(err)
}

// unwrapOpError peels a *net.OpError down to its underlying syscall error,
// since every candidate-attempt error arrives wrapped by the net package.
func unwrapOpError(err error) error {
	for {
		if u, ok := err.(interface{ Unwrap() error }); ok {
			if inner := u.Unwrap(); inner != nil {
				err = inner
				continue
			}
		}
		return err
	}
}

// looksLikeUnsupported is a last-resort string match used when the error
// has already lost its underlying syscall.Errno (e.g. crossed an os.File
// boundary). On unix the errno check is tried first; on Windows this string
// match is the only check.
func looksLikeUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "address family not supported") ||
		strings.Contains(msg, "protocol not supported") ||
		strings.Contains(msg, "socket type not supported") ||
		strings.Contains(msg, "protocol not available")
}
