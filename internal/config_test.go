package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/notionvault/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := (&AuthConfig{Mode: "magic", Token: "x"}).Validate(); err == nil {
		t.Error("invalid mode should fail validation")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Import.Folder != "Notion Import" || cfg.Import.AttachmentsDir != "attachments" {
		t.Errorf("import defaults = %+v", cfg.Import)
	}
	if !cfg.Import.IncludeMetadata || !cfg.Import.DownloadAssets || !cfg.Import.ResolveLinks {
		t.Errorf("import toggles should default on: %+v", cfg.Import)
	}
}

func TestNotionConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"page size too big", func(c *Config) { c.Notion.PageSize = 500 }, "page_size"},
		{"bad base url", func(c *Config) { c.Notion.BaseURL = "not a url" }, "base_url"},
		{"negative retries", func(c *Config) { c.Notion.MaxRetries = -1 }, "max_retries"},
		{"no attachments dir", func(c *Config) { c.Import.AttachmentsDir = "" }, "attachments_dir"},
		{"token auth without token", func(c *Config) { c.Auth.Mode = AuthModeToken }, "token is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("NOTION_TOKEN", "secret_xyz")
	p := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
notion:
  token: ${NOTION_TOKEN}
  timeout: 45s
  concurrency: 2
import:
  folder: Inbox/Notion
  download_assets: false
`
	if err := os.WriteFile(p, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notion.Token != "secret_xyz" {
		t.Errorf("token = %q", cfg.Notion.Token)
	}
	if cfg.Notion.Timeout != 45*time.Second || cfg.Notion.Concurrency != 2 {
		t.Errorf("notion = %+v", cfg.Notion)
	}
	if cfg.Import.Folder != "Inbox/Notion" || cfg.Import.DownloadAssets {
		t.Errorf("import = %+v", cfg.Import)
	}
	if !cfg.Import.ResolveLinks || cfg.App.HTTP.Port != 8080 {
		t.Error("unset keys should keep their defaults")
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("log level = %s", cfg.App.LogLevel)
	}

	ic := cfg.Import.ImporterConfig()
	if ic.Folder != "Inbox/Notion" || ic.DownloadAssets {
		t.Errorf("importer config = %+v", ic)
	}
}
