// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package sockopt

import (
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// controlFunc builds the net.Dialer/net.ListenConfig Control hook. It is
// best-effort throughout: a setsockopt failure here is diagnostic, never
// fatal, matching §4.4/§4.5's "best-effort" wording for v6-only and
// reuse-address.
func controlFunc(reuseAddr bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		return c.Control(func(fd uintptr) {
			if network == "tcp6" || network == "udp6" {
				_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)
			}
			if reuseAddr {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}
		})
	}
}

func isUnsupportedFamily(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EPFNOSUPPORT, unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT, unix.ESOCKTNOSUPPORT, unix.ENOPROTOOPT:
			return true
		}
		return false
	}
	return looksLikeUnsupported(unwrapOpError(err))
}

// PeekUDP reads the next datagram without consuming it, reporting the
// sender's address so the listener can apply the peer filter (§6.3) before
// committing to a session. It is the Go-level equivalent of recvfrom with
// MSG_PEEK from network.c.
func PeekUDP(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, nil, err
	}
	var n int
	var from unix.Sockaddr
	var recvErr error
	err = raw.Read(func(fd uintptr) bool {
		n, from, recvErr = unix.Recvfrom(int(fd), buf, unix.MSG_PEEK)
		return recvErr != unix.EAGAIN
	})
	if err != nil {
		return 0, nil, err
	}
	if recvErr != nil {
		return 0, nil, recvErr
	}
	addr, aerr := sockaddrToUDPAddr(from)
	if aerr != nil {
		return n, nil, aerr
	}
	return n, addr, nil
}

// DupAndConnectUDP duplicates the listening UDP descriptor and connects the
// duplicate to peer, so the resulting conn is dedicated to this one session.
// The duplicate shares the underlying socket with conn, so the connect
// applies to conn as well; conn's own descriptor is not closed here.
func DupAndConnectUDP(conn *net.UDPConn, peer *net.UDPAddr) (*net.UDPConn, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var dupFD int
	var dupErr error
	err = raw.Control(func(fd uintptr) {
		dupFD, dupErr = unix.Dup(int(fd))
	})
	if err != nil {
		return nil, err
	}
	if dupErr != nil {
		return nil, dupErr
	}

	sa, err := udpAddrToSockaddr(peer)
	if err != nil {
		unix.Close(dupFD)
		return nil, err
	}
	if err := unix.Connect(dupFD, sa); err != nil {
		unix.Close(dupFD)
		return nil, err
	}

	file := os.NewFile(uintptr(dupFD), "nccat-udp-session")
	fc, err := net.FileConn(file)
	_ = file.Close()
	if err != nil {
		return nil, err
	}
	udpConn, ok := fc.(*net.UDPConn)
	if !ok {
		fc.Close()
		return nil, errors.New("sockopt: duplicated descriptor is not a UDP socket")
	}
	return udpConn, nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) (*net.UDPAddr, error) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}, nil
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: append([]byte(nil), s.Addr[:]...), Port: s.Port}, nil
	default:
		return nil, errors.New("sockopt: unsupported sockaddr type from recvfrom")
	}
}

func udpAddrToSockaddr(addr *net.UDPAddr) (unix.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, errors.Errorf("sockopt: invalid peer address %v", addr.IP)
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip6)
	return sa, nil
}
