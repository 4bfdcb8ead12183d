// Package config loads service settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir holds the user and group tables and the process lock.
	DataDir string `yaml:"data_dir"`
	// BackupDir receives timestamped table copies.
	BackupDir string `yaml:"backup_dir"`

	// HomeRoot and TeamRoot are where user and team directories are
	// provisioned.
	HomeRoot string `yaml:"home_root"`
	TeamRoot string `yaml:"team_root"`

	// Deployment selects the site-specific prefix used to repair group
	// names that do not start with a letter.
	Deployment string `yaml:"deployment"`

	// LockTimeout bounds how long a request waits for the process lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// MaxBackups caps timestamped copies kept per table file.
	MaxBackups int `yaml:"max_backups"`

	// JWTSecret enables bearer-token auth on the API when non-empty.
	JWTSecret string `yaml:"jwt_secret"`

	// ProvisionDirs toggles home and team directory creation.
	ProvisionDirs bool `yaml:"provision_dirs"`
}

func Default() Config {
	return Config{
		ListenAddr:    ":8080",
		DataDir:       "/uidgid_data",
		BackupDir:     "/uidgid_data/backups",
		HomeRoot:      "/host/home",
		TeamRoot:      "/host/teams",
		Deployment:    "",
		LockTimeout:   30 * time.Second,
		MaxBackups:    20,
		ProvisionDirs: true,
	}
}

// Load builds the config from defaults, then the YAML file at path when
// it exists, then UIDGID_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "UIDGID_LISTEN_ADDR")
	setString(&c.DataDir, "UIDGID_DATA_DIR")
	setString(&c.BackupDir, "UIDGID_BACKUP_DIR")
	setString(&c.HomeRoot, "UIDGID_HOME_ROOT")
	setString(&c.TeamRoot, "UIDGID_TEAM_ROOT")
	setString(&c.Deployment, "UIDGID_DEPLOYMENT")
	setString(&c.JWTSecret, "UIDGID_JWT_SECRET")
	if v := os.Getenv("UIDGID_LOCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.LockTimeout = d
		}
	}
	if v := os.Getenv("UIDGID_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxBackups = n
		}
	}
	if v := os.Getenv("UIDGID_PROVISION_DIRS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ProvisionDirs = b
		}
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	if c.MaxBackups < 1 {
		return fmt.Errorf("max_backups must be at least 1")
	}
	return nil
}

// UserTablePath is the on-disk user table location.
func (c Config) UserTablePath() string { return filepath.Join(c.DataDir, "users.yaml") }

// GroupTablePath is the on-disk group table location.
func (c Config) GroupTablePath() string { return filepath.Join(c.DataDir, "groups.yaml") }

// LockPath is the cross-process lock file location.
func (c Config) LockPath() string { return filepath.Join(c.DataDir, "uidgid.lock") }

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
