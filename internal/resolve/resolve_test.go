package resolve

import (
	"context"
	"net"
	"testing"

	"github.com/xtaci/nccat/internal/nctypes"
)

func TestResolveNumericLiteral(t *testing.T) {
	got, err := Resolve(context.Background(), "127.0.0.1", "2000", Options{
		SockType: nctypes.SockStream,
		Numeric:  true,
	})
	if err != nil {
		t.Fatalf("Resolve: %+v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one candidate, got %d", len(got))
	}
	if got[0].Family != nctypes.FamilyV4 {
		t.Fatalf("expected v4, got %s", got[0].Family)
	}
	if got[0].Addr() != "127.0.0.1:2000" {
		t.Fatalf("unexpected address: %s", got[0].Addr())
	}
}

func TestResolveNumericRejectsHostname(t *testing.T) {
	_, err := Resolve(context.Background(), "localhost", "2000", Options{
		SockType: nctypes.SockStream,
		Numeric:  true,
	})
	if err == nil {
		t.Fatalf("expected ResolveError for a hostname under NUMERIC_ONLY")
	}
	var target *nctypes.ResolveError
	if !asResolveError(err, &target) {
		t.Fatalf("expected *nctypes.ResolveError, got %T: %v", err, err)
	}
}

func TestResolvePassiveEmptyHostYieldsWildcard(t *testing.T) {
	got, err := Resolve(context.Background(), "", "2000", Options{
		SockType: nctypes.SockStream,
		Passive:  true,
	})
	if err != nil {
		t.Fatalf("Resolve: %+v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected wildcard v6+v4 candidates, got %d", len(got))
	}
	if !got[0].IP.Equal(net.IPv6unspecified) {
		t.Fatalf("expected v6 wildcard first, got %v", got[0].IP)
	}
}

func TestResolveNonPassiveEmptyHostFails(t *testing.T) {
	_, err := Resolve(context.Background(), "", "2000", Options{SockType: nctypes.SockStream})
	if err == nil {
		t.Fatalf("expected ResolveError for empty host without PASSIVE")
	}
}

func TestOrderIPv6FirstStablePartition(t *testing.T) {
	v4a := Candidate{Family: nctypes.FamilyV4, Host: "v4a"}
	v4b := Candidate{Family: nctypes.FamilyV4, Host: "v4b"}
	v6a := Candidate{Family: nctypes.FamilyV6, Host: "v6a"}
	v6b := Candidate{Family: nctypes.FamilyV6, Host: "v6b"}

	in := []Candidate{v4a, v6a, v4b, v6b}
	got := OrderIPv6First(in)

	want := []string{"v6a", "v6b", "v4a", "v4b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, h := range want {
		if got[i].Host != h {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Host, h)
		}
	}
}

func TestOrderIPv6FirstNoV6Unchanged(t *testing.T) {
	in := []Candidate{
		{Family: nctypes.FamilyV4, Host: "a"},
		{Family: nctypes.FamilyV4, Host: "b"},
	}
	got := OrderIPv6First(in)
	if got[0].Host != "a" || got[1].Host != "b" {
		t.Fatalf("expected unchanged order, got %v", got)
	}
}

func TestCandidateDescribeNumericVsReverse(t *testing.T) {
	c := Candidate{IP: net.ParseIP("192.0.2.1"), Port: 2000, Host: "example.test"}
	if got := c.Describe(true); got != "192.0.2.1:2000" {
		t.Fatalf("numeric describe: got %q", got)
	}
	if got := c.Describe(false); got != "example.test (192.0.2.1:2000)" {
		t.Fatalf("reverse describe: got %q", got)
	}
}

func asResolveError(err error, target **nctypes.ResolveError) bool {
	for err != nil {
		if re, ok := err.(*nctypes.ResolveError); ok {
			*target = re
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
