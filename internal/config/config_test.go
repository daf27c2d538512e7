package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsPassValidation(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Defaults() should validate cleanly: %v", err)
	}
}

func TestLoadMergesOverridesOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
schema_version: "1"
node:
  id: gateway-1
  min_stake: 5000
consensus:
  min_nodes: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ID != "gateway-1" || cfg.Node.MinStake != 5000 {
		t.Fatalf("expected overridden node fields, got %+v", cfg.Node)
	}
	if cfg.Consensus.MinNodes != 5 {
		t.Fatalf("expected overridden min_nodes=5, got %d", cfg.Consensus.MinNodes)
	}
	if cfg.Consensus.Threshold != 0.8 {
		t.Fatalf("expected default threshold to survive merge, got %f", cfg.Consensus.Threshold)
	}
}

func TestValidateRejectsBadSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "99"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for unsupported schema_version")
	}
}

func TestValidateRequiresTLSWhenPeersConfigured(t *testing.T) {
	cfg := Defaults()
	cfg.Node.PeerNodes = []Peer{{ID: "b", Addr: "10.0.0.2:9443"}}
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error when peer_nodes set without TLS material")
	}
}

func TestValidateRejectsUnknownSensorAdapter(t *testing.T) {
	cfg := Defaults()
	cfg.Sensors = map[string]SensorConfig{"s1": {Adapter: "barometer", PollingInterval: 1}}
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for unknown adapter kind")
	}
}

func TestEnvOverrideSetsTLSKeyFile(t *testing.T) {
	t.Setenv("ORACLENODE_PEER_TLS_KEY_FILE", "/secrets/peer.key")
	cfg := Defaults()
	applyEnvOverrides(&cfg)
	if cfg.Peer.TLSKeyFile != "/secrets/peer.key" {
		t.Fatalf("expected env override applied, got %q", cfg.Peer.TLSKeyFile)
	}
}
