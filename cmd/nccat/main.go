package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"github.com/xtaci/nccat/internal/connector"
	"github.com/xtaci/nccat/internal/engine"
	"github.com/xtaci/nccat/internal/listener"
	"github.com/xtaci/nccat/internal/nctypes"
	"github.com/xtaci/nccat/internal/sockopt"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func init() {
	// SIGPIPE would otherwise kill the process the moment a half-closed
	// peer stops reading; ignored, the write fails with an error instead.
	signal.Ignore(syscall.SIGPIPE)
}

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "nccat"
	app.Usage = "bidirectional TCP/UDP connect-or-listen relay"
	app.Version = VERSION
	app.ArgsUsage = "[host] port"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "listen, l", Usage: "listen for an incoming connection instead of connecting out"},
		cli.BoolFlag{Name: "udp, u", Usage: "use UDP instead of TCP"},
		cli.BoolFlag{Name: "4", Usage: "use IPv4 only"},
		cli.BoolFlag{Name: "6", Usage: "use IPv6 only"},
		cli.BoolFlag{Name: "numeric, n", Usage: "log the connected/accepted peer by numeric address only; names are still resolved"},
		cli.BoolFlag{Name: "verbose, v", Usage: "log each candidate attempted"},
		cli.BoolFlag{Name: "very-verbose, vv", Usage: "also log per-direction byte counts when the session ends"},
		cli.BoolFlag{Name: "recv-only", Usage: "never read stdin; only write what the peer sends to stdout"},
		cli.BoolFlag{Name: "send-only", Usage: "never read from the peer; only forward stdin to it"},
		cli.BoolFlag{Name: "strict-ipv6", Usage: "reject any non-IPv6 candidate outright (paired with -6)"},
		cli.BoolFlag{Name: "no-nagle-disable", Usage: "leave Nagle's algorithm enabled on the remote socket"},
		cli.BoolFlag{Name: "dont-reuse-addr", Usage: "do not set SO_REUSEADDR when binding"},
		cli.BoolFlag{Name: "half-close", Usage: "signal write-shutdown instead of fully closing once the remote side is drained"},
		cli.IntFlag{Name: "hold-timeout", Value: 0, Usage: "seconds to keep draining after read-close; 0 immediate, -1 indefinite"},
		cli.IntFlag{Name: "mtu", Value: 0, Usage: "maximum single datagram send size; 0 uses the stream default"},
		cli.IntFlag{Name: "nru", Value: 0, Usage: "maximum single datagram receive size; 0 uses the stream default"},
		cli.StringFlag{Name: "source", Usage: "bind to this local address before connecting"},
		cli.StringFlag{Name: "source-port", Usage: "bind to this local service/port before connecting"},
		cli.IntFlag{Name: "connect-timeout", Value: 0, Usage: "seconds to keep trying candidates; 0 means no deadline"},
		cli.StringFlag{Name: "log", Usage: "redirect log output to this file instead of stderr"},
		cli.StringFlag{Name: "c, config", Usage: "load settings from a JSON file, overriding the flags above"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := Config{
		UDP:          c.Bool("udp"),
		V4Only:       c.Bool("4"),
		V6Only:       c.Bool("6"),
		NumericOnly:  c.Bool("numeric"),
		Verbose:      c.Bool("verbose"),
		VeryVerbose:  c.Bool("very-verbose"),
		RecvOnly:     c.Bool("recv-only"),
		SendOnly:     c.Bool("send-only"),
		StrictIPv6:   c.Bool("strict-ipv6"),
		NoNagleDisbl: c.Bool("no-nagle-disable"),
		DontReuseA:   c.Bool("dont-reuse-addr"),
		HalfClose:    c.Bool("half-close"),
		HoldTimeout:  c.Int("hold-timeout"),
		MTU:          c.Int("mtu"),
		NRU:          c.Int("nru"),
		Source:       c.String("source"),
		SourcePort:   c.String("source-port"),
		ConnectTmout: c.Int("connect-timeout"),
		Log:          c.String("log"),
	}
	cfg.ListenMode = c.Bool("listen")

	args := c.Args()
	switch len(args) {
	case 1:
		cfg.Host, cfg.Service = "", args.Get(0)
	case 2:
		cfg.Host, cfg.Service = args.Get(0), args.Get(1)
	default:
		return errors.New("expected [host] port, got " + args.First())
	}

	if path := c.String("config"); path != "" {
		if err := ParseJSONConfig(&cfg, path); err != nil {
			return err
		}
	}

	if cfg.Log != "" {
		f, err := os.OpenFile(cfg.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
	}

	flags := buildFlags(cfg)
	sockType := nctypes.SockStream
	if cfg.UDP {
		sockType = nctypes.SockDatagram
	}
	family := nctypes.FamilyUnspecified
	switch {
	case cfg.V4Only:
		family = nctypes.FamilyV4
	case cfg.V6Only || cfg.StrictIPv6:
		family = nctypes.FamilyV6
	}

	ctx := context.Background()

	var conn interface {
		Close() error
	}
	var result engine.Options
	if flags.Has(nctypes.ListenMode) {
		// In listen mode the positional host/service is the optional peer
		// filter (§6.3), not the bind address: the local endpoint comes
		// from --source/--source-port, exactly as nc6's -s/-p do.
		res, err := listener.Accept(ctx, listener.Target{
			LocalHost:     cfg.Source,
			LocalService:  cfg.SourcePort,
			RemoteHost:    cfg.Host,
			RemoteService: cfg.Service,
			Family:        family,
			SockType:      sockType,
			DontReuseAddr: cfg.DontReuseA,
			Verbose:       cfg.Verbose || cfg.VeryVerbose,
		})
		if err != nil {
			return err
		}
		log.Println("accepted:", res.Candidate.Describe(cfg.NumericOnly))
		_ = sockopt.SetNoDelay(res.Conn, !cfg.NoNagleDisbl)
		conn = res.Conn
		result.Remote = res.Conn
	} else {
		res, err := connector.Connect(ctx, connector.Target{
			RemoteHost:     cfg.Host,
			RemoteService:  cfg.Service,
			LocalHost:      cfg.Source,
			LocalService:   cfg.SourcePort,
			Family:         family,
			SockType:       sockType,
			ConnectTimeout: time.Duration(cfg.ConnectTmout) * time.Second,
			DisableNagle:   !cfg.NoNagleDisbl,
			Verbose:        cfg.Verbose || cfg.VeryVerbose,
		})
		if err != nil {
			return err
		}
		log.Println("connected:", res.Candidate.Describe(cfg.NumericOnly))
		conn = res.Conn
		result.Remote = res.Conn
	}
	defer conn.Close()

	result.Stdin = os.Stdin
	result.Stdout = os.Stdout
	result.SockType = sockType
	result.MTU = cfg.MTU
	result.NRU = cfg.NRU
	result.HalfClose = cfg.HalfClose
	result.RecvDataOnly = cfg.RecvOnly
	result.SendDataOnly = cfg.SendOnly
	if cfg.HoldTimeout != 0 {
		result.HoldTimeout = time.Duration(cfg.HoldTimeout) * time.Second
	}

	out := engine.Run(ctx, result)
	if cfg.VeryVerbose {
		log.Printf("bytes: local in=%d out=%d remote in=%d out=%d",
			out.LocalBytesIn, out.LocalBytesOut, out.RemoteBytesIn, out.RemoteBytesOut)
	}
	if out.Err != nil {
		return out.Err
	}
	return nil
}

func buildFlags(cfg Config) nctypes.Flags {
	var f nctypes.Flags
	if cfg.ListenMode {
		f |= nctypes.ListenMode
	} else {
		f |= nctypes.ConnectMode
	}
	if cfg.NumericOnly {
		f |= nctypes.NumericMode
	}
	if cfg.Verbose {
		f |= nctypes.VerboseMode
	}
	if cfg.VeryVerbose {
		f |= nctypes.VeryVerboseMode
	}
	if cfg.RecvOnly {
		f |= nctypes.RecvDataOnly
	}
	if cfg.SendOnly {
		f |= nctypes.SendDataOnly
	}
	if cfg.StrictIPv6 || cfg.V6Only {
		f |= nctypes.StrictIPv6
	}
	if !cfg.NoNagleDisbl {
		f |= nctypes.DisableNagle
	}
	if cfg.DontReuseA {
		f |= nctypes.DontReuseAddr
	}
	return f
}

