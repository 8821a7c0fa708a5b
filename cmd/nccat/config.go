package main

import (
	"encoding/json"
	"os"
)

// Config mirrors the CLI flags: every field here can also be supplied by a
// JSON file via -c, which takes precedence over whatever the flags set.
type Config struct {
	ListenMode   bool   `json:"listen"`
	Host         string `json:"host"`
	Service      string `json:"service"`
	UDP          bool   `json:"udp"`
	V4Only       bool   `json:"v4only"`
	V6Only       bool   `json:"v6only"`
	NumericOnly  bool   `json:"numeric"`
	Verbose      bool   `json:"verbose"`
	VeryVerbose  bool   `json:"very_verbose"`
	RecvOnly     bool   `json:"recv_only"`
	SendOnly     bool   `json:"send_only"`
	StrictIPv6   bool   `json:"strict_ipv6"`
	NoNagleDisbl bool   `json:"no_nagle_disable"`
	DontReuseA   bool   `json:"dont_reuse_addr"`
	HalfClose    bool   `json:"half_close"`
	HoldTimeout  int    `json:"hold_timeout"`
	MTU          int    `json:"mtu"`
	NRU          int    `json:"nru"`
	Source       string `json:"source"`
	SourcePort   string `json:"source_port"`
	ConnectTmout int    `json:"connect_timeout"`
	Log          string `json:"log"`
}

// ParseJSONConfig decodes path into config, overriding whatever flags
// already populated it.
func ParseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
