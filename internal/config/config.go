// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const appConfigDirName = "reflex-iq"

// Config is the full service configuration.
type Config struct {
	Addr            string        `yaml:"addr"`
	DBPath          string        `yaml:"db_path"`
	ImageLabel      string        `yaml:"image_label"`
	ProverID        string        `yaml:"prover_id"`
	Keyring         Keyring       `yaml:"keyring"`
	Perfects        Perfects      `yaml:"perfects"`
	AuditWorkers    int           `yaml:"audit_workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Keyring says where the prover's seal key lives.
type Keyring struct {
	Service      string `yaml:"service"`
	FallbackPath string `yaml:"fallback_path"`
}

// Perfects configures server-side perfect-tap classification.
type Perfects struct {
	Enabled    bool   `yaml:"enabled"`
	RuleScript string `yaml:"rule_script"` // path to a JS file; empty uses the built-in rule
}

// Default returns the configuration used when no file is given.
func Default() Config {
	dir := AppDataDir()
	return Config{
		Addr:       ":3000",
		DBPath:     filepath.Join(dir, "sessions.db"),
		ImageLabel: "reflex-iq-kernel-v1",
		ProverID:   "default",
		Keyring: Keyring{
			Service:      "reflex-iq",
			FallbackPath: filepath.Join(dir, "keys.json"),
		},
		Perfects:        Perfects{Enabled: true},
		AuditWorkers:    0,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config.Load: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config.Load: parse %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv honours REFLEXIQ_ADDR, PORT and REFLEXIQ_DB. PORT is the
// platform convention and loses to an explicit REFLEXIQ_ADDR.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Addr = ":" + strconv.Itoa(port)
	}
	if v, ok := lookup("REFLEXIQ_ADDR"); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup("REFLEXIQ_DB"); ok && v != "" {
		c.DBPath = v
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr is required"))
	}
	if c.DBPath == "" {
		err = multierr.Append(err, errors.New("db_path is required"))
	}
	if c.ImageLabel == "" {
		err = multierr.Append(err, errors.New("image_label is required"))
	}
	if c.ProverID == "" {
		err = multierr.Append(err, errors.New("prover_id is required"))
	}
	if c.AuditWorkers < 0 {
		err = multierr.Append(err, errors.New("audit_workers must be >= 0"))
	}
	if c.ShutdownTimeout <= 0 {
		err = multierr.Append(err, errors.New("shutdown_timeout must be positive"))
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LoadRule returns the configured rule source, or "" for the built-in rule.
func (p Perfects) LoadRule() (string, error) {
	if p.RuleScript == "" {
		return "", nil
	}
	b, err := os.ReadFile(p.RuleScript)
	if err != nil {
		return "", fmt.Errorf("config: perfects rule: %w", err)
	}
	return string(b), nil
}

// AppDataDir returns an OS-appropriate writable directory.
func AppDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}
