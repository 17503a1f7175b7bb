// Package config loads harness configuration from a TOML file plus
// scheduler-provided environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/downstream/internal/gate"
	"github.com/roach88/downstream/internal/services"
)

// OverlayConfig identifies the target library under test.
type OverlayConfig struct {
	// Package is the library's distribution name.
	Package string `toml:"package"`
	// Worktree is the path of the working-copy snapshot.
	Worktree string `toml:"worktree"`
	// Plugin is the library's type-checker plugin, materialized as a
	// strict-mode fragment in unit environments when set.
	Plugin string `toml:"plugin"`
}

// IssuesConfig controls the tracking-issue path. Off by default: the
// filing logic is fully wired but held behind this flag.
type IssuesConfig struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	Repository string `toml:"repository"`
	Token      string `toml:"token"`
}

// ServicesConfig holds auxiliary service endpoints.
type ServicesConfig struct {
	PostgresDSN         string `toml:"postgres_dsn"`
	ObjectStoreEndpoint string `toml:"objectstore_endpoint"`
	ObjectStoreAccess   string `toml:"objectstore_access"`
	ObjectStoreSecret   string `toml:"objectstore_secret"`
	DocStoreAddr        string `toml:"docstore_addr"`
}

// Config holds all harness configuration.
type Config struct {
	// Canonical is the authoritative "owner/name" repository; scheduled
	// gated jobs run only there.
	Canonical string `toml:"canonical"`

	// Label is the pull-request opt-in label for gated jobs.
	Label string `toml:"label"`

	// EnvRoot is the directory for per-unit environments.
	EnvRoot string `toml:"env_root"`

	// Database is the run-history SQLite path.
	Database string `toml:"database"`

	// Parallelism caps concurrently executing units. Zero means the
	// engine default.
	Parallelism int `toml:"parallelism"`

	Overlay  OverlayConfig  `toml:"overlay"`
	Issues   IssuesConfig   `toml:"issues"`
	Services ServicesConfig `toml:"services"`
}

const (
	defaultLabel   = "downstream-tests"
	defaultBaseURL = "https://api.github.com"
)

// LoadFrom reads configuration from the given TOML file path.
// Environment variables always take precedence over file values:
//   - DOWNSTREAM_ISSUE_TOKEN overrides issues.token
//   - DOWNSTREAM_DB          overrides database
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOWNSTREAM_ISSUE_TOKEN"); v != "" {
		cfg.Issues.Token = v
	}
	if v := os.Getenv("DOWNSTREAM_DB"); v != "" {
		cfg.Database = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Label == "" {
		cfg.Label = defaultLabel
	}
	if cfg.Issues.BaseURL == "" {
		cfg.Issues.BaseURL = defaultBaseURL
	}
	if cfg.Issues.Repository == "" {
		cfg.Issues.Repository = cfg.Canonical
	}
}

// Validate checks the fields a run cannot proceed without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Overlay.Package) == "" {
		return fmt.Errorf("overlay.package is required")
	}
	if strings.TrimSpace(c.Overlay.Worktree) == "" {
		return fmt.Errorf("overlay.worktree is required")
	}
	if strings.TrimSpace(c.Canonical) == "" {
		return fmt.Errorf("canonical repository is required")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative")
	}
	return nil
}

// ServiceConfig converts the TOML section to the services package form,
// filling conventional defaults for unset endpoints.
func (c Config) ServiceConfig() services.Config {
	sc := services.DefaultConfig()
	if c.Services.PostgresDSN != "" {
		sc.PostgresDSN = c.Services.PostgresDSN
	}
	if c.Services.ObjectStoreEndpoint != "" {
		sc.ObjectStoreEndpoint = c.Services.ObjectStoreEndpoint
	}
	if c.Services.ObjectStoreAccess != "" {
		sc.ObjectStoreAccess = c.Services.ObjectStoreAccess
	}
	if c.Services.ObjectStoreSecret != "" {
		sc.ObjectStoreSecret = c.Services.ObjectStoreSecret
	}
	if c.Services.DocStoreAddr != "" {
		sc.DocStoreAddr = c.Services.DocStoreAddr
	}
	return sc
}

// ContextFromEnv assembles the RunContext from standard scheduler
// environment: event name, repository, run id and URL, PR labels.
//
//   - DOWNSTREAM_EVENT: "schedule" | "pull-request" | "dispatch"
//   - DOWNSTREAM_REPOSITORY: "owner/name" of the executing repository
//   - DOWNSTREAM_RUN_ID / DOWNSTREAM_RUN_URL
//   - DOWNSTREAM_PR_LABELS: comma-separated pull-request labels
func (c Config) ContextFromEnv() gate.RunContext {
	rc := gate.RunContext{
		Event:      gate.EventKind(os.Getenv("DOWNSTREAM_EVENT")),
		Repository: os.Getenv("DOWNSTREAM_REPOSITORY"),
		Canonical:  c.Canonical,
		RunID:      os.Getenv("DOWNSTREAM_RUN_ID"),
		RunURL:     os.Getenv("DOWNSTREAM_RUN_URL"),
	}
	if labels := os.Getenv("DOWNSTREAM_PR_LABELS"); labels != "" {
		for _, l := range strings.Split(labels, ",") {
			if l = strings.TrimSpace(l); l != "" {
				rc.Labels = append(rc.Labels, l)
			}
		}
	}
	return rc
}

// ConcurrencyKey groups runs for supersession: one key per trigger
// context, so a newer run of the same trigger cancels the older one while
// runs of different triggers coexist.
func ConcurrencyKey(rc gate.RunContext) string {
	return string(rc.Event) + "/" + rc.Repository
}
