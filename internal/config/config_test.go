package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig_Validates(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if strings.HasPrefix(c.Store.Path, "~") {
		t.Errorf("Store.Path = %s, want expanded home", c.Store.Path)
	}
	if c.Engine.Workers <= 0 {
		t.Errorf("Engine.Workers = %d", c.Engine.Workers)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty store path", func(c *Config) { c.Store.Path = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"missing destination", func(c *Config) { c.Destination.Default = filepath.Join(dir, "missing") }, true},
		{"existing destination", func(c *Config) { c.Destination.Default = dir }, false},
		{"zero workers normalised", func(c *Config) { c.Engine.Workers = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.Engine.Workers <= 0 {
				t.Errorf("Engine.Workers = %d after Validate", c.Engine.Workers)
			}
		})
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
store:
  path: ` + filepath.Join(dir, "store.json") + `
engine:
  workers: 3
  cwebp_path: /opt/bin/cwebp
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMAGE_OPTIMIZER_SERVER_PORT", "9090")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if c.Engine.Workers != 3 || c.Engine.CWebPPath != "/opt/bin/cwebp" {
		t.Errorf("Engine = %+v", c.Engine)
	}
	if c.Engine.PNGQuantPath != "pngquant" {
		t.Errorf("PNGQuantPath = %s, want default", c.Engine.PNGQuantPath)
	}
	if c.Logging.Level != "debug" || c.Logging.MaxSize != 10 {
		t.Errorf("Logging = %+v", c.Logging)
	}
	if c.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090 from env", c.Server.Port)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("LoadConfig() expected validation error")
	}
}

func TestGetDefaultDestination(t *testing.T) {
	c := DefaultConfig()
	if got := c.GetDefaultDestination("/fallback"); got != "/fallback" {
		t.Errorf("GetDefaultDestination() = %s, want /fallback", got)
	}
	c.Destination.Default = "/chosen"
	if got := c.GetDefaultDestination("/fallback"); got != "/chosen" {
		t.Errorf("GetDefaultDestination() = %s, want /chosen", got)
	}
}
