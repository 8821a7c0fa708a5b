// Package filter implements the peer-allow predicate (§6.3). Argument
// parsing and the rest of the flag/verbosity bookkeeping are explicitly out
// of scope for the core (spec.md §1 names them external collaborators); this
// package is the one piece of that boundary the core still needs a concrete
// implementation of, since a listener with a remote filter configured but no
// predicate to consult would have nothing to run against.
package filter

import (
	"context"
	"net"

	"github.com/xtaci/nccat/internal/nctypes"
	"github.com/xtaci/nccat/internal/resolve"
)

// Predicate decides whether peer is allowed to lock in as the session's
// remote endpoint. It is consulted once per accepted/peeked candidate.
type Predicate func(peer net.Addr) (bool, error)

// Allow is the predicate that accepts every peer: used when the remote
// filter has neither host nor service set, per §6.3 ("the predicate is not
// consulted and all peers are accepted").
func Allow(net.Addr) (bool, error) { return true, nil }

// FromRemote builds the predicate for a configured remote filter: it
// resolves host/service once up front into a candidate set, then accepts a
// peer whose IP and (when service is set) port match one of them. An empty
// host or service matches any value for that field.
func FromRemote(ctx context.Context, host, service string, sockType nctypes.SockType) (Predicate, error) {
	if host == "" && service == "" {
		return Allow, nil
	}

	var candidates []resolve.Candidate
	if host != "" {
		var err error
		candidates, err = resolve.Resolve(ctx, host, service, resolve.Options{SockType: sockType})
		if err != nil {
			return nil, err
		}
	}

	var wantPort int
	if service != "" && host == "" {
		// Port-only filter: resolve the service name in isolation to learn
		// the numeric port without requiring a host.
		c, err := resolve.Resolve(ctx, "", service, resolve.Options{SockType: sockType, Passive: true})
		if err != nil {
			return nil, err
		}
		if len(c) > 0 {
			wantPort = c[0].Port
		}
	}

	return func(peer net.Addr) (bool, error) {
		ip, port, err := splitHostPort(peer)
		if err != nil {
			return false, err
		}
		if host == "" {
			return service == "" || port == wantPort, nil
		}
		for _, c := range candidates {
			if !c.IP.Equal(ip) {
				continue
			}
			if service == "" || c.Port == port {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

func splitHostPort(addr net.Addr) (net.IP, int, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP, a.Port, nil
	case *net.UDPAddr:
		return a.IP, a.Port, nil
	default:
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil, 0, nctypes.NewInternalInvariantError("peer address " + addr.String() + " has no host:port form")
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, 0, nctypes.NewInternalInvariantError("peer address " + host + " did not parse as an IP")
		}
		p, err := net.LookupPort("", portStr)
		if err != nil {
			return nil, 0, err
		}
		return ip, p, nil
	}
}
