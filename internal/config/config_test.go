package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileWithDefaults(t *testing.T) {
	path := writeConfig(t, `
cloud:
  endpoint: https://api.gopass.test
  api_key: secret
terminal:
  location: FBM
printers:
  - id: desk
    name: Desk printer
    type: network
    address: 10.0.0.20
    port: 9100
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ConfigPath != path {
		t.Fatalf("ConfigPath = %q", c.ConfigPath)
	}
	if c.Cloud.Endpoint != "https://api.gopass.test" || c.Cloud.APIKey != "secret" {
		t.Fatalf("cloud section not loaded: %+v", c.Cloud)
	}
	if c.Terminal.Location != "FBM" {
		t.Fatalf("location = %q", c.Terminal.Location)
	}
	if c.Terminal.ID != "POS-01" {
		t.Fatalf("terminal id default = %q", c.Terminal.ID)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("server port default = %d", c.Server.Port)
	}
	if c.Cloud.ProbeInterval != 5*time.Second {
		t.Fatalf("probe interval default = %v", c.Cloud.ProbeInterval)
	}
	if c.Pricing.Domestic != 15 || c.Pricing.International != 55 || c.Pricing.Preset != 50 {
		t.Fatalf("pricing defaults = %+v", c.Pricing)
	}
	if c.Printing.SettleDelay != time.Second {
		t.Fatalf("settle delay default = %v", c.Printing.SettleDelay)
	}
	if len(c.Printers) != 1 || c.Printers[0].Port != 9100 {
		t.Fatalf("printers = %+v", c.Printers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
cloud:
  endpoint: https://api.gopass.test
`)
	t.Setenv("GOPASS_CLOUD_ENDPOINT", "https://override.gopass.test")
	t.Setenv("GOPASS_STORAGE_DRIVER", "sqlite")
	t.Setenv("GOPASS_STORAGE_PATH", "/var/lib/gopass/queue.db")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Cloud.Endpoint != "https://override.gopass.test" {
		t.Fatalf("endpoint env override = %q", c.Cloud.Endpoint)
	}
	if c.Storage.Driver != "sqlite" || c.Storage.Path != "/var/lib/gopass/queue.db" {
		t.Fatalf("storage env override = %+v", c.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	c.Storage.Driver = "redis"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	c = Default()
	c.Cloud.UseWebSocket = true
	if err := c.Validate(); err == nil {
		t.Fatalf("expected ws endpoint error")
	}
}

func TestSaveAndReload(t *testing.T) {
	c := Default()
	c.Cloud.Endpoint = "https://saved.gopass.test"
	c.Terminal.Location = "GOM"
	path := filepath.Join(t.TempDir(), "saved.yaml")
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Cloud.Endpoint != "https://saved.gopass.test" || got.Terminal.Location != "GOM" {
		t.Fatalf("round trip lost values: %+v", got)
	}
	if got.Cloud.Timeout != 15*time.Second {
		t.Fatalf("timeout = %v", got.Cloud.Timeout)
	}
}
