package config

import "testing"

func TestParseEnvDefaults(t *testing.T) {
	e, err := ParseEnv()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if e.Addr != ":8080" {
		t.Errorf("addr = %s, want :8080", e.Addr)
	}
	if e.DBPath != "dicee.db" {
		t.Errorf("db path = %s, want dicee.db", e.DBPath)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("DICEE_ADDR", ":9999")
	t.Setenv("DICEE_JWKS_URL", "https://id.example.com/jwks.json")
	t.Setenv("DICEE_LOG_LEVEL", "debug")

	e, err := ParseEnv()
	if err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if e.Addr != ":9999" {
		t.Errorf("addr = %s, want :9999", e.Addr)
	}
	if e.JWKSURL != "https://id.example.com/jwks.json" {
		t.Errorf("jwks url = %s", e.JWKSURL)
	}
	if e.LogLevel != "debug" {
		t.Errorf("log level = %s, want debug", e.LogLevel)
	}
}

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()
	if r.TurnTimeoutSeconds != 60 || r.WarningLeadSeconds != 15 {
		t.Errorf("turn timing = %d/%d, want 60/15", r.TurnTimeoutSeconds, r.WarningLeadSeconds)
	}
	if r.WarningLeadSeconds >= r.TurnTimeoutSeconds {
		t.Error("warning lead must be shorter than the timeout")
	}
	if r.MaxPlayers < 2 {
		t.Errorf("max players = %d", r.MaxPlayers)
	}
}

func TestLoadRulesEmptyPathKeepsDefaults(t *testing.T) {
	r, err := LoadRules("")
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if r != DefaultRules() {
		t.Errorf("rules = %+v, want defaults", r)
	}
}
