// Package config loads the orchestrator's resilience and coordination
// settings from an optional YAML file, with environment overrides for
// the paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftworks/weft/internal/domain/classify"
	"github.com/weftworks/weft/internal/domain/model/thread"
)

// Config holds every tunable of the orchestration core. Zero values
// are replaced by defaults in Load.
type Config struct {
	// Home is the base directory for durable state (registry database,
	// thread records, signing keys). Overridden by WEFT_HOME.
	Home string `yaml:"home"`

	// LogLevel controls stderr logging: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// DefaultLimits apply to any thread whose directive declares none.
	DefaultLimits thread.Limits `yaml:"default_limits"`

	// Hooks is the ordered resilience hook list evaluated on limit and
	// error events; the first match wins.
	Hooks classify.HookSet `yaml:"hooks"`

	Retry struct {
		MaxAttempts          int     `yaml:"max_attempts"`
		BackoffBaseSeconds   float64 `yaml:"backoff_base_seconds"`
		BackoffCapSeconds    float64 `yaml:"backoff_cap_seconds"`
		DefaultRetryAfterSec float64 `yaml:"default_retry_after_seconds"`
		QuotaCooldownSeconds float64 `yaml:"quota_cooldown_seconds"`
	} `yaml:"retry"`

	Coordination struct {
		// WaitTimeoutSeconds bounds a wait call; 0 means no timeout.
		WaitTimeoutSeconds float64 `yaml:"wait_timeout_seconds"`
		// DispatchGroupCap bounds concurrently-running resource groups
		// in a single turn's tool fan-out.
		DispatchGroupCap int `yaml:"dispatch_group_cap"`
		// OrphanStalenessSeconds is how long a running thread's journal
		// may go untouched before the thread counts as orphaned.
		OrphanStalenessSeconds float64 `yaml:"orphan_staleness_seconds"`
		// CancelGraceSeconds is the window between graceful and forced
		// subprocess termination on cancellation.
		CancelGraceSeconds float64 `yaml:"cancel_grace_seconds"`
	} `yaml:"coordination"`

	Capability struct {
		// TokenTTLSeconds bounds capability token validity.
		TokenTTLSeconds float64 `yaml:"token_ttl_seconds"`
	} `yaml:"capability"`

	// Provider configures the external model binary.
	Provider struct {
		Bin  string   `yaml:"bin"`
		Args []string `yaml:"args"`
	} `yaml:"provider"`

	// Tools declares the subprocess-backed actions threads may call.
	Tools []ToolConfig `yaml:"tools"`

	// Directives declares the named workflows threads may run or spawn
	// as sub-workflows.
	Directives []DirectiveConfig `yaml:"directives"`

	Archive struct {
		// Backend selects the terminal-thread archive target:
		// none, local, or s3.
		Backend string `yaml:"backend"`
		// Bucket is the S3 bucket for the s3 backend.
		Bucket string `yaml:"bucket"`
		// LocalDir is the destination directory for the local backend.
		LocalDir string `yaml:"local_dir"`
	} `yaml:"archive"`
}

// ToolConfig describes one executable tool.
type ToolConfig struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Command     []string `yaml:"command"`
	// Resource is the serialization group: calls sharing a resource run
	// one at a time.
	Resource string `yaml:"resource"`
	// Capabilities the caller must hold; defaults to
	// weft.execute.tool.<name> when empty.
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// DirectiveConfig describes one named workflow.
type DirectiveConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Limits      thread.Limits `yaml:"limits,omitempty"`
	// Capabilities the directive requests for its threads.
	Capabilities []string `yaml:"capabilities,omitempty"`
}

// Directive looks up a declared directive by name.
func (c *Config) Directive(name string) (DirectiveConfig, bool) {
	for _, d := range c.Directives {
		if d.Name == name {
			return d, true
		}
	}
	return DirectiveConfig{}, false
}

// Load reads the config file if it exists and fills in defaults.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if env := os.Getenv("WEFT_HOME"); env != "" {
		c.Home = env
	}
	if c.Home == "" {
		c.Home = ".weft"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.BackoffBaseSeconds == 0 {
		c.Retry.BackoffBaseSeconds = 2
	}
	if c.Retry.BackoffCapSeconds == 0 {
		c.Retry.BackoffCapSeconds = 120
	}
	if c.Retry.DefaultRetryAfterSec == 0 {
		c.Retry.DefaultRetryAfterSec = 30
	}
	if c.Retry.QuotaCooldownSeconds == 0 {
		c.Retry.QuotaCooldownSeconds = 300
	}
	if c.Coordination.DispatchGroupCap == 0 {
		c.Coordination.DispatchGroupCap = 25
	}
	if c.Coordination.OrphanStalenessSeconds == 0 {
		c.Coordination.OrphanStalenessSeconds = 300
	}
	if c.Coordination.CancelGraceSeconds == 0 {
		c.Coordination.CancelGraceSeconds = 5
	}
	if c.Capability.TokenTTLSeconds == 0 {
		c.Capability.TokenTTLSeconds = 3600
	}
	if c.Archive.Backend == "" {
		c.Archive.Backend = "none"
	}
}

// DatabasePath is the registry/ledger SQLite file under Home.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, "registry.db")
}

// ThreadsDir holds per-thread durable records (metadata, journal,
// poison markers).
func (c *Config) ThreadsDir() string {
	return filepath.Join(c.Home, "threads")
}

// KeysDir holds the Ed25519 signing keypair.
func (c *Config) KeysDir() string {
	return filepath.Join(c.Home, "keys")
}

func (c *Config) WaitTimeout() time.Duration {
	return secs(c.Coordination.WaitTimeoutSeconds)
}

func (c *Config) OrphanStaleness() time.Duration {
	return secs(c.Coordination.OrphanStalenessSeconds)
}

func (c *Config) CancelGrace() time.Duration {
	return secs(c.Coordination.CancelGraceSeconds)
}

func (c *Config) TokenTTL() time.Duration {
	return secs(c.Capability.TokenTTLSeconds)
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
