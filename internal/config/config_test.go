package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/tensorctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tensord.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDaemonConfigAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, `[status]
addr = ":9999"
`)

	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Runtime.Mode != "accelerated" {
		t.Fatalf("mode = %q, want accelerated default", cfg.Runtime.Mode)
	}
	if cfg.Runtime.SolverCount != 1 {
		t.Fatalf("solver_count = %d, want 1", cfg.Runtime.SolverCount)
	}
	if cfg.Runtime.RootSeed != -1 {
		t.Fatalf("root_seed = %d, want -1", cfg.Runtime.RootSeed)
	}
	if cfg.Status.Addr != ":9999" {
		t.Fatalf("addr = %q, want :9999", cfg.Status.Addr)
	}
	if cfg.Status.Name != "tensord" {
		t.Fatalf("name = %q, want tensord default", cfg.Status.Name)
	}
}

func TestLoadDaemonConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"unknown mode":    "[runtime]\nmode = \"quantum\"\n",
		"negative device": "[runtime]\ndevices = [0, -2]\n",
		"zero solvers":    "[runtime]\nsolver_count = 0\n",
		"bad seed":        "[runtime]\nroot_seed = -7\n",
		"blank addr":      "[status]\naddr = \"  \"\n",
	}
	for name, body := range cases {
		if _, err := LoadDaemonConfig(writeFile(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestLoadDaemonConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadDaemonConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestTemplateRoundTrips(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "gen.toml")
	if err := WriteTemplate(path, "daemon", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "daemon", false); err == nil {
		t.Fatal("expected overwrite refusal")
	}
	cfg, err := LoadDaemonConfig(path)
	if err != nil {
		t.Fatalf("load generated template: %v", err)
	}
	if cfg.Status.Name != "tensord" {
		t.Fatalf("name = %q", cfg.Status.Name)
	}
	if _, err := Template("ghost"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
