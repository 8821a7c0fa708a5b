// Package resolve implements the Endpoint Resolver: turning a (host,
// service, family, protocol) tuple into an ordered candidate list via the
// platform address-resolution primitive, with the IPv6-first reordering
// listen mode relies on to avoid dual-stack double-bind failures.
package resolve

import (
	"context"
	"net"
	"strconv"

	"github.com/xtaci/nccat/internal/nctypes"
)

// Candidate is one resolved (family, socktype, protocol, address) tuple.
// The candidate list is produced once by Resolve and consumed once by the
// connector or listener, then discarded.
type Candidate struct {
	Family   nctypes.Family
	SockType nctypes.SockType
	IP       net.IP
	Port     int
	// Host is the host string exactly as the caller supplied it, recorded
	// alongside the resolved IP so Describe can name the candidate by both
	// without a second lookup. No reverse-DNS lookup is ever made.
	Host string
}

// Addr renders the candidate as a dial/listen address string, e.g.
// "192.0.2.1:2000" or "[2001:db8::1]:2000".
func (c Candidate) Addr() string {
	return net.JoinHostPort(c.IP.String(), strconv.Itoa(c.Port))
}

// Network returns the net package network name for this candidate's
// transport: "tcp"/"tcp4"/"tcp6" or "udp"/"udp4"/"udp6".
func (c Candidate) Network() string {
	base := "tcp"
	if c.SockType == nctypes.SockDatagram {
		base = "udp"
	}
	switch c.Family {
	case nctypes.FamilyV4:
		return base + "4"
	case nctypes.FamilyV6:
		return base + "6"
	default:
		return base
	}
}

// Describe renders the candidate for verbose-mode diagnostics, echoing
// netcat6's hbuf_num/hbuf_rev convention of naming an attempt by both its
// numeric address and, when available and requested, its hostname. The
// hostname is Host as supplied to Resolve, not a reverse-DNS name.
func (c Candidate) Describe(numeric bool) string {
	if numeric || c.Host == "" {
		return c.Addr()
	}
	return c.Host + " (" + c.Addr() + ")"
}

// Options controls how Resolve interprets host/service.
type Options struct {
	Family   nctypes.Family
	SockType nctypes.SockType
	Numeric  bool // NUMERIC_ONLY: skip name resolution, host must be a literal address
	Passive  bool // PASSIVE: host empty means "any address" (bind sites)
}

// Resolve produces the candidate list for host/service. Either may be
// empty: an empty host with Passive set resolves to the wildcard address;
// an empty service is valid for Connector-side candidates that only need a
// source address, with Port left 0.
func Resolve(ctx context.Context, host, service string, opt Options) ([]Candidate, error) {
	port := 0
	if service != "" {
		p, err := net.DefaultResolver.LookupPort(ctx, networkHint(opt.SockType), service)
		if err != nil {
			return nil, nctypes.NewResolveError("service " + service + ": " + err.Error())
		}
		port = p
	}

	ips, err := resolveHost(ctx, host, opt)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(ips))
	for _, ip := range ips {
		fam := nctypes.FamilyV4
		if ip.To4() == nil {
			fam = nctypes.FamilyV6
		}
		if opt.Family != nctypes.FamilyUnspecified && opt.Family != fam {
			continue
		}
		candidates = append(candidates, Candidate{
			Family:   fam,
			SockType: opt.SockType,
			IP:       ip,
			Port:     port,
			Host:     host,
		})
	}
	return candidates, nil
}

func resolveHost(ctx context.Context, host string, opt Options) ([]net.IP, error) {
	if host == "" {
		if !opt.Passive {
			return nil, nctypes.NewResolveError("host required for a non-passive candidate")
		}
		switch opt.Family {
		case nctypes.FamilyV4:
			return []net.IP{net.IPv4zero}, nil
		case nctypes.FamilyV6:
			return []net.IP{net.IPv6unspecified}, nil
		default:
			return []net.IP{net.IPv6unspecified, net.IPv4zero}, nil
		}
	}

	if opt.Numeric {
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, nctypes.NewResolveError("numeric mode requested but " + host + " is not a literal address")
		}
		return []net.IP{ip}, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, nctypes.NewResolveError(host + ": " + err.Error())
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func networkHint(s nctypes.SockType) string {
	if s == nctypes.SockDatagram {
		return "udp"
	}
	return "tcp"
}

// OrderIPv6First returns a stable permutation of candidates with every v6
// entry moved ahead of every v4 entry, preserving the relative order within
// each family. Binding the v6 wildcard first on a dual-stack host makes the
// later v4 bind a harmless no-op instead of a double-bind error. A list
// with no v6 entries is returned unchanged.
func OrderIPv6First(candidates []Candidate) []Candidate {
	ordered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Family == nctypes.FamilyV6 {
			ordered = append(ordered, c)
		}
	}
	for _, c := range candidates {
		if c.Family != nctypes.FamilyV6 {
			ordered = append(ordered, c)
		}
	}
	return ordered
}
