package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration document. Secrets usually arrive via
// an included file kept out of version control.
type Config struct {
	App          AppConfig                 `mapstructure:"app"`
	Server       ServerConfig              `mapstructure:"server"`
	Browser      BrowserConfig             `mapstructure:"browser"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator"`
	Store        StoreConfig               `mapstructure:"store"`
	ProfilesDir  string                    `mapstructure:"profiles_dir"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type BrowserConfig struct {
	PoolSize       int           `mapstructure:"pool_size"`
	Headless       bool          `mapstructure:"headless"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

type OrchestratorConfig struct {
	MaxConcurrentSessions int           `mapstructure:"max_concurrent_sessions"`
	SessionTimeout        time.Duration `mapstructure:"session_timeout"`
	ResultTTL             time.Duration `mapstructure:"result_ttl"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
}

type StoreConfig struct {
	// DatabasePath holds the offer audit database; empty disables
	// persistence.
	DatabasePath string `mapstructure:"database_path"`
}

// ProviderConfig carries the operator account for one portal. The
// portal's UI description lives in its profile, not here.
type ProviderConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	TOTPSecret string `mapstructure:"totp_secret"`
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8750"
	}
	if c.Browser.PoolSize <= 0 {
		c.Browser.PoolSize = 3
	}
	if c.Browser.AcquireTimeout <= 0 {
		c.Browser.AcquireTimeout = 30 * time.Second
	}
	if c.Orchestrator.MaxConcurrentSessions <= 0 {
		c.Orchestrator.MaxConcurrentSessions = c.Browser.PoolSize
	}
	if c.Orchestrator.SessionTimeout <= 0 {
		c.Orchestrator.SessionTimeout = 3 * time.Minute
	}
	if c.Orchestrator.ResultTTL <= 0 {
		c.Orchestrator.ResultTTL = time.Hour
	}
	if c.Orchestrator.SweepInterval <= 0 {
		c.Orchestrator.SweepInterval = time.Minute
	}
	if c.ProfilesDir == "" {
		c.ProfilesDir = "configs/drivers"
	}
}

func validate(c *Config) error {
	if strings.TrimSpace(c.ProfilesDir) == "" {
		return fmt.Errorf("profiles_dir cannot be empty")
	}
	if c.Orchestrator.MaxConcurrentSessions > c.Browser.PoolSize {
		return fmt.Errorf("orchestrator.max_concurrent_sessions (%d) exceeds browser.pool_size (%d)",
			c.Orchestrator.MaxConcurrentSessions, c.Browser.PoolSize)
	}
	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		if strings.TrimSpace(p.Username) == "" || strings.TrimSpace(p.Password) == "" {
			return fmt.Errorf("provider %s is enabled but has no credentials", name)
		}
	}
	return nil
}

// EnabledProviders lists provider ids with usable accounts, in map order.
func (c *Config) EnabledProviders() []string {
	out := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			out = append(out, name)
		}
	}
	return out
}
