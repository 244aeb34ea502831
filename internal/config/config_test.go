package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, "server:\n port: 8080\nstorage:\n disk_roots: [/tmp/d1]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Address != "0.0.0.0" {
		t.Errorf("address: got %q, want 0.0.0.0", cfg.Server.Address)
	}
	if cfg.Erasure.DataShards != 8 || cfg.Erasure.ParityShards != 4 {
		t.Errorf("erasure defaults: got %d+%d, want 8+4", cfg.Erasure.DataShards, cfg.Erasure.ParityShards)
	}
	if cfg.Placement.VirtualNodes != 128 {
		t.Errorf("virtual nodes: got %d, want 128", cfg.Placement.VirtualNodes)
	}
	if cfg.Cache.MaxEntries != 10000 || cfg.Cache.TTLSecs != 300 {
		t.Errorf("cache defaults: got %d/%ds", cfg.Cache.MaxEntries, cfg.Cache.TTLSecs)
	}
	if cfg.Server.ShutdownTimeoutSecs != 30 {
		t.Errorf("shutdown timeout: got %d, want 30", cfg.Server.ShutdownTimeoutSecs)
	}
}

func TestLoad_EmptyFile_MissingDiskRoots(t *testing.T) {
	p := writeConfig(t, "")
	_, err := Load(p)
	if err == nil {
		t.Error("expected error for missing storage.disk_roots")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := writeConfig(t, "{{invalid yaml}}")
	_, err := Load(p)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Config{Server: ServerConfig{Address: "127.0.0.1", Port: 8080}}
	if got := cfg.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("ListenAddr: got %q, want 127.0.0.1:8080", got)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	yaml := `
server:
 address: "192.168.1.1"
 port: 3000
storage:
 disk_roots:
 - /data/disk1
 - /data/disk2
erasure:
 data_shards: 6
 parity_shards: 3
registry:
 enabled: true
 node_id: node-a
`
	p := writeConfig(t, yaml)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "192.168.1.1" {
		t.Errorf("address: got %q", cfg.Server.Address)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
	if len(cfg.Storage.DiskRoots) != 2 {
		t.Errorf("disk_roots: got %v", cfg.Storage.DiskRoots)
	}
	if cfg.Erasure.DataShards != 6 || cfg.Erasure.ParityShards != 3 {
		t.Errorf("erasure override: got %d+%d", cfg.Erasure.DataShards, cfg.Erasure.ParityShards)
	}
	if !cfg.Registry.Enabled || cfg.Registry.NodeID != "node-a" {
		t.Errorf("registry override: got %+v", cfg.Registry)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	p := writeConfig(t, "storage:\n disk_roots: [/tmp/d1]\n")
	t.Setenv("GRIDSTORE_PORT", "7000")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("port: got %d, want 7000 from env override", cfg.Server.Port)
	}
}
