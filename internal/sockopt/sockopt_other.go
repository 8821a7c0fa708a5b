// +build windows

package sockopt

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// controlFunc is a no-op on Windows: the socket options this Control hook
// would apply are unix-specific (IPV6_V6ONLY/SO_REUSEADDR are already the
// platform default or handled elsewhere by the Go runtime on this OS), so
// there is nothing best-effort left to do here.
func controlFunc(reuseAddr bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error { return nil }
}

func isUnsupportedFamily(err error) bool {
	return looksLikeUnsupported(unwrapOpError(err))
}

var errUDPPeekUnsupported = errors.New("sockopt: datagram peek is not implemented on this platform")

// PeekUDP has no Windows implementation in this core and always returns an
// error, so a datagram listener fails with an accept error on this platform.
func PeekUDP(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	return 0, nil, errUDPPeekUnsupported
}

// DupAndConnectUDP has no portable Windows implementation in this core.
func DupAndConnectUDP(conn *net.UDPConn, peer *net.UDPAddr) (*net.UDPConn, error) {
	return nil, errUDPPeekUnsupported
}
