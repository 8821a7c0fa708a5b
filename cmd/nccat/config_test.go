package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigSuccess(t *testing.T) {
	path := writeTempConfig(t, `{"host":"example.com","service":"8080","udp":true,"mtu":1200,"hold_timeout":5}`)

	var cfg Config
	if err := ParseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("ParseJSONConfig returned error: %v", err)
	}

	if cfg.Host != "example.com" || cfg.Service != "8080" {
		t.Fatalf("unexpected endpoint: %+v", cfg)
	}
	if !cfg.UDP {
		t.Fatalf("expected udp to be populated")
	}
	if cfg.MTU != 1200 || cfg.HoldTimeout != 5 {
		t.Fatalf("unexpected numeric fields: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := ParseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("ParseJSONConfig expected error for missing file")
	}
}

func TestParseJSONConfigOverridesFlagDefaults(t *testing.T) {
	path := writeTempConfig(t, `{"half_close":true,"dont_reuse_addr":true}`)

	cfg := Config{HalfClose: false, DontReuseA: false, MTU: 1500}
	if err := ParseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("ParseJSONConfig returned error: %v", err)
	}
	if !cfg.HalfClose || !cfg.DontReuseA {
		t.Fatalf("expected config file booleans to override flag defaults: %+v", cfg)
	}
	if cfg.MTU != 1500 {
		t.Fatalf("fields absent from the config file must survive untouched: %+v", cfg)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
