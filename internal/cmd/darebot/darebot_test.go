package darebot

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("darebot", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.DataPath != "data/darely.store" {
		t.Fatalf("unexpected default data path %q", cfg.DataPath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("darebot", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-addr", "127.0.0.1:9999", "-data", "/tmp/darely.store"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected addr override, got %q", cfg.Addr)
	}
	if cfg.DataPath != "/tmp/darely.store" {
		t.Fatalf("expected data path override, got %q", cfg.DataPath)
	}
}

func TestParseAdmins(t *testing.T) {
	admins, err := parseAdmins([]string{"chief", " ", "deputy"})
	if err != nil {
		t.Fatalf("parse admins: %v", err)
	}
	if len(admins) != 2 || admins[0] != "chief" || admins[1] != "deputy" {
		t.Fatalf("unexpected admins: %v", admins)
	}
}

func TestRunRequiresBotPublicKey(t *testing.T) {
	err := Run(t.Context(), Config{DataPath: t.TempDir() + "/darely.store"})
	if err == nil {
		t.Fatal("expected error when bot public key is missing")
	}
}
