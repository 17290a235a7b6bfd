package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config models agency.yml (or agency.toml).
type Config struct {
	Portal struct {
		Name string `yaml:"name" toml:"name"`
	} `yaml:"portal" toml:"portal"`
	Server     Server     `yaml:"server" toml:"server"`
	Database   Database   `yaml:"database" toml:"database"`
	Generation Generation `yaml:"generation" toml:"generation"`
	Activity   struct {
		RecentLimit int `yaml:"recent_limit" toml:"recent_limit"`
	} `yaml:"activity" toml:"activity"`
	Logging Logging `yaml:"logging" toml:"logging"`
	RBAC    struct {
		Roles map[string]RBACRole `yaml:"roles" toml:"roles"`
	} `yaml:"rbac" toml:"rbac"`
}

type Server struct {
	Addr          string `yaml:"addr" toml:"addr"`
	BasePath      string `yaml:"base_path" toml:"base_path"`
	SessionTTL    string `yaml:"session_ttl" toml:"session_ttl"`
	SecureCookies bool   `yaml:"secure_cookies" toml:"secure_cookies"`
}

// Database points at the SQLite file. An empty File means <workspace>/.agency/agency.db.
type Database struct {
	File        string `yaml:"file" toml:"file"`
	BusyTimeout string `yaml:"busy_timeout" toml:"busy_timeout"`
}

// Generation holds the weekly cadence used when expanding an assignment into tasks.
type Generation struct {
	DueOffsetDays               int `yaml:"due_offset_days" toml:"due_offset_days"`
	CadenceDays                 int `yaml:"cadence_days" toml:"cadence_days"`
	DefaultIdealDurationMinutes int `yaml:"default_ideal_duration_minutes" toml:"default_ideal_duration_minutes"`
}

type Logging struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

type RBACRole struct {
	Description string   `yaml:"description" toml:"description"`
	Permissions []string `yaml:"permissions" toml:"permissions"`
}

// Load reads and validates config from workspace. agency.yml wins over agency.toml.
func Load(workspace string) (*Config, error) {
	for _, path := range []string{Path(workspace), TOMLPath(workspace)} {
		if _, err := os.Stat(path); err == nil {
			return FromFile(path)
		}
	}
	return nil, fmt.Errorf("config %s not found; write one with agencyctl config init", Path(workspace))
}

// LoadOptional returns the default config if no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	for _, path := range []string{Path(workspace), TOMLPath(workspace)} {
		if _, err := os.Stat(path); err == nil {
			return FromFile(path)
		}
	}
	return Default(), nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Portal.Name == "" {
		return fmt.Errorf("config.portal.name is required")
	}
	if c.Server.BasePath == "" || !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if _, err := c.SessionTTL(); err != nil {
		return fmt.Errorf("config.server.session_ttl: %w", err)
	}
	if _, err := c.BusyTimeout(); err != nil {
		return fmt.Errorf("config.database.busy_timeout: %w", err)
	}
	if c.Generation.DueOffsetDays < 0 {
		return fmt.Errorf("config.generation.due_offset_days must not be negative")
	}
	if c.Generation.CadenceDays <= 0 {
		return fmt.Errorf("config.generation.cadence_days must be positive")
	}
	if c.Generation.DefaultIdealDurationMinutes <= 0 {
		return fmt.Errorf("config.generation.default_ideal_duration_minutes must be positive")
	}
	if c.Activity.RecentLimit <= 0 {
		return fmt.Errorf("config.activity.recent_limit must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config.logging.format must be console or json")
	}
	if _, ok := c.RBAC.Roles["admin"]; !ok {
		return fmt.Errorf("config.rbac.roles must include admin")
	}
	for name, role := range c.RBAC.Roles {
		if name == "" {
			return fmt.Errorf("config.rbac.roles contains empty role name")
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission name", name)
			}
		}
	}
	return nil
}

// SessionTTL parses server.session_ttl.
func (c *Config) SessionTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Server.SessionTTL)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return ttl, nil
}

// BusyTimeout parses database.busy_timeout. Empty means the driver default.
func (c *Config) BusyTimeout() (time.Duration, error) {
	if c.Database.BusyTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Database.BusyTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// Permissions returns every permission name referenced by a role, in first-use order.
func (c *Config) Permissions() []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range c.RoleNames() {
		for _, p := range c.RBAC.Roles[name].Permissions {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// RoleNames returns role names with admin first, then the rest in a stable order.
func (c *Config) RoleNames() []string {
	names := make([]string, 0, len(c.RBAC.Roles))
	if _, ok := c.RBAC.Roles["admin"]; ok {
		names = append(names, "admin")
	}
	var rest []string
	for name := range c.RBAC.Roles {
		if name != "admin" {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Path returns the YAML config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "agency.yml")
}

// TOMLPath returns the TOML config path for a workspace.
func TOMLPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "agency.toml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML parses and validates config from raw TOML bytes. Missing keys keep their defaults.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads config from the given path, choosing the decoder by extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

const defaultTemplate = `portal:
  name: agency-portal

server:
  addr: 127.0.0.1:8080
  base_path: /api
  session_ttl: 168h
  secure_cookies: false

database:
  file: ""
  busy_timeout: 5s

generation:
  due_offset_days: 7
  cadence_days: 7
  default_ideal_duration_minutes: 30

activity:
  recent_limit: 20

logging:
  level: info
  format: console
  file: ""
  max_size_mb: 50
  max_backups: 5

rbac:
  roles:
    admin:
      description: "Full access"
      permissions:
        - package.create
        - package.update
        - package.delete
        - template.create
        - template.update
        - template.delete
        - client.create
        - client.update
        - client.delete
        - assignment.create
        - task.update
        - task.distribute
        - rbac.manage
        - user.manage
    manager:
      description: "Runs catalogs, clients and distribution"
      permissions:
        - package.create
        - package.update
        - template.create
        - template.update
        - client.create
        - client.update
        - assignment.create
        - task.update
        - task.distribute
    agent:
      description: "Works assigned tasks"
      permissions:
        - task.update
`
