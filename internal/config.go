package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/notionvault/internal/importer"
	"github.com/starford/notionvault/internal/materialize"
	"github.com/starford/notionvault/internal/notion"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Notion NotionConfig      `yaml:"notion"`
	Import ImportConfig      `yaml:"import"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Notion.Validate(); err != nil {
		return fmt.Errorf("notion: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Obsidian vault imports are written to.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the import ledger database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NotionConfig holds the Notion API client settings.
type NotionConfig struct {
	// Token is the internal integration secret. Usually "${NOTION_TOKEN}".
	Token             string        `yaml:"token"`
	BaseURL           string        `yaml:"base_url"`
	Version           string        `yaml:"version"`
	PageSize          int           `yaml:"page_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxDepth          int           `yaml:"max_depth"`
	Concurrency       int           `yaml:"concurrency"`
}

// Validate validates the Notion configuration. The token is checked by the
// commands that talk to Notion, so the server can start without one.
func (c *NotionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(100)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxDepth, validation.Min(0), validation.Max(1000)),
		validation.Field(&c.Concurrency, validation.Min(0), validation.Max(64)),
	)
}

// ClientOptions converts the section to notion client options.
func (c *NotionConfig) ClientOptions(logger *slog.Logger) notion.Options {
	return notion.Options{
		Token:             c.Token,
		BaseURL:           c.BaseURL,
		Version:           c.Version,
		PageSize:          c.PageSize,
		RequestsPerSecond: c.RequestsPerSecond,
		MaxRetries:        c.MaxRetries,
		Timeout:           c.Timeout,
		Logger:            logger,
	}
}

// MaterializeOptions converts the traversal limits.
func (c *NotionConfig) MaterializeOptions(logger *slog.Logger) materialize.Options {
	return materialize.Options{MaxDepth: c.MaxDepth, Concurrency: c.Concurrency, Logger: logger}
}

// ImportConfig holds the import settings.
type ImportConfig struct {
	Folder          string `yaml:"folder"`
	AttachmentsDir  string `yaml:"attachments_dir"`
	IncludeMetadata bool   `yaml:"include_metadata"`
	DownloadAssets  bool   `yaml:"download_assets"`
	ResolveLinks    bool   `yaml:"resolve_links"`
	MaxAssetBytes   int64  `yaml:"max_asset_bytes"`
	// RefreshOnStart re-imports changed pages when the server starts.
	RefreshOnStart bool `yaml:"refresh_on_start"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Folder, validation.Length(0, 255)),
		validation.Field(&c.AttachmentsDir, validation.Required, validation.Length(1, 255)),
		validation.Field(&c.MaxAssetBytes, validation.Min(int64(0))),
	)
}

// ImporterConfig converts the section to importer settings.
func (c *ImportConfig) ImporterConfig() importer.Config {
	return importer.Config{
		Folder:          c.Folder,
		AttachmentsDir:  c.AttachmentsDir,
		IncludeMetadata: c.IncludeMetadata,
		DownloadAssets:  c.DownloadAssets,
		ResolveLinks:    c.ResolveLinks,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	imp := importer.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./notionvault.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Notion: NotionConfig{
			BaseURL:           notion.DefaultBaseURL,
			Version:           notion.DefaultVersion,
			PageSize:          notion.DefaultPageSize,
			RequestsPerSecond: 3,
			MaxRetries:        3,
			Timeout:           30 * time.Second,
			MaxDepth:          materialize.DefaultMaxDepth,
			Concurrency:       materialize.DefaultConcurrency,
		},
		Import: ImportConfig{
			Folder:          imp.Folder,
			AttachmentsDir:  imp.AttachmentsDir,
			IncludeMetadata: imp.IncludeMetadata,
			DownloadAssets:  imp.DownloadAssets,
			ResolveLinks:    imp.ResolveLinks,
			MaxAssetBytes:   importer.DefaultMaxAssetBytes,
		},
	}
}
