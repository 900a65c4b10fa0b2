package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const functionsYAML = `token: file-token
environment_id: "12345"
dossier_per_project_connector: Dossiers_per_project
files_per_dossier_connector: Bijlagen_per_dossier
project_id_custom_field_id: project_number
`

func writeFunctionsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "functions.yaml")
	if err := os.WriteFile(path, []byte(functionsYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRequiresContextSecret(t *testing.T) {
	t.Setenv("CONTEXT_SECRET", "")
	t.Setenv("FUNCTIONS_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without CONTEXT_SECRET")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONTEXT_SECRET", "s")
	t.Setenv("FUNCTIONS_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("unexpected addrs %s %s", cfg.ListenAddr, cfg.MetricsAddr)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected request timeout %s", cfg.RequestTimeout)
	}
}

func TestLoadFunctionsFileWithEnvOverride(t *testing.T) {
	t.Setenv("CONTEXT_SECRET", "s")
	t.Setenv("FUNCTIONS_CONFIG", writeFunctionsFile(t))
	t.Setenv("FUNCTIONS_TOKEN", "env-token")
	t.Setenv("FUNCTIONS_ZAPIER_WEBHOOK_URL", "https://hooks.example.com/1")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	f := cfg.Functions
	if f.Token != "env-token" {
		t.Errorf("env should override file token, got %q", f.Token)
	}
	if f.EnvironmentID != "12345" || f.FilesPerDossierConnector != "Bijlagen_per_dossier" {
		t.Errorf("file values not loaded: %+v", f)
	}
	if f.ZapierWebhookURL != "https://hooks.example.com/1" {
		t.Errorf("unexpected webhook %q", f.ZapierWebhookURL)
	}
}

func TestLoadFunctionsFileErrors(t *testing.T) {
	if _, err := LoadFunctionsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("token: [unterminated"), 0644)
	if _, err := LoadFunctionsFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("RESOLVE_TIMEOUT", "1500")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("S3_CREATE_BUCKET", "true")
	t.Setenv("SAVE_BACKEND", "")

	cfg := LoadClient()
	if cfg.ResolveTimeout != 1500*time.Millisecond {
		t.Errorf("plain milliseconds: got %s", cfg.ResolveTimeout)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("duration string: got %s", cfg.RequestTimeout)
	}
	if !cfg.S3CreateBucket {
		t.Error("expected S3CreateBucket")
	}
	if cfg.SaveBackend != "local" {
		t.Errorf("expected local default, got %s", cfg.SaveBackend)
	}
}

func TestClientResolveTimeoutDefault(t *testing.T) {
	t.Setenv("RESOLVE_TIMEOUT", "soon")
	if got := LoadClient().ResolveTimeout; got != 2*time.Second {
		t.Errorf("invalid value should fall back to 2s, got %s", got)
	}
}
