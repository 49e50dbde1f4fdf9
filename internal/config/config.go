// Copyright (c) 2026 ToeiRei
// DBBridge - unified relational data access layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads dbbridge settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/toeirei/dbbridge/internal/db"
)

// RuntimeOS selects the platform layout used by GetConfigPath.
var RuntimeOS = runtime.GOOS

// EnvPrefix prefixes every environment override, e.g. DBBRIDGE_DATABASE_TYPE.
const EnvPrefix = "dbbridge"

// Database selects and addresses the backend. DSN, when set, is parsed first
// and the discrete fields override what it yields, except that a sqlite DSN
// wins over Path.
type Database struct {
	Type     string            `mapstructure:"type" yaml:"type" json:"type"`
	DSN      string            `mapstructure:"dsn" yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Host     string            `mapstructure:"host" yaml:"host,omitempty" json:"host,omitempty"`
	Port     int               `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty"`
	User     string            `mapstructure:"user" yaml:"user,omitempty" json:"user,omitempty"`
	Password string            `mapstructure:"password" yaml:"password,omitempty" json:"password,omitempty"`
	Path     string            `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
	Name     string            `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`
	Options  map[string]string `mapstructure:"options" yaml:"options,omitempty" json:"options,omitempty"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level" json:"level"`
}

// Config is the full dbbridge configuration.
type Config struct {
	Database Database `mapstructure:"database" yaml:"database" json:"database"`
	Log      Log      `mapstructure:"log" yaml:"log" json:"log"`
	// Debug logs every statement the backends run.
	Debug bool `mapstructure:"debug" yaml:"debug" json:"debug"`
}

// Defaults returns the built-in values used when nothing else sets a key.
func Defaults() map[string]any {
	return map[string]any{
		"database.type": "sqlite",
		"database.path": "./dbbridge.db",
		"log.level":     "info",
		"debug":         false,
	}
}

// FlagKeys maps command-line flag names onto configuration keys. Flags not
// listed bind under their own name.
var FlagKeys = map[string]string{
	"db-type":     "database.type",
	"db-dsn":      "database.dsn",
	"db-host":     "database.host",
	"db-port":     "database.port",
	"db-user":     "database.user",
	"db-password": "database.password",
	"db-path":     "database.path",
	"db-name":     "database.name",
	"log-level":   "log.level",
}

// GetConfigPath returns the full path for the configuration file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch RuntimeOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "DBBridge")
		default:
			configDir = "/etc/dbbridge"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "dbbridge")
	}

	return filepath.Join(configDir, "dbbridge.yaml"), nil
}

// LoadConfig resolves T from defaults, the first dbbridge.yaml found (or
// configFile when non-empty), DBBRIDGE_* variables and the flags of cmd.
// A missing search-path file is not an error; a missing explicit file is.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("dbbridge")
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		if userConfigPath, err := GetConfigPath(false); err == nil {
			v.AddConfigPath(filepath.Dir(userConfigPath))
		}
		if systemConfigPath, err := GetConfigPath(true); err == nil {
			v.AddConfigPath(filepath.Dir(systemConfigPath))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only reaches keys viper already knows about.
	for _, key := range []string{"database.dsn", "database.host", "database.port", "database.user", "database.password", "database.name"} {
		if err := v.BindEnv(key); err != nil {
			return c, err
		}
	}

	if cmd != nil {
		var bindErr error
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" || f.Name == "help" {
				return
			}
			key := f.Name
			if k, ok := FlagKeys[f.Name]; ok {
				key = k
			}
			bindErr = errors.Join(bindErr, v.BindPFlag(key, f))
		})
		if bindErr != nil {
			return c, bindErr
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// WriteConfigFile writes c as YAML to the user or system config path and
// returns that path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	return path, WriteConfigTo(c, path)
}

// WriteConfigTo writes c as YAML to path, creating parent directories.
func WriteConfigTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// 0600: the file may hold a password.
	return os.WriteFile(path, data, 0o600)
}

// Params converts the database section into backend parameters.
func (d Database) Params() (db.Params, error) {
	var p db.Params
	if d.DSN != "" {
		parsed, err := db.ParamsFromDSN(d.Type, d.DSN)
		if err != nil {
			return db.Params{}, err
		}
		p = parsed
	}
	if d.Host != "" {
		p.Host = d.Host
	}
	if d.Port != 0 {
		p.Port = d.Port
	}
	if d.User != "" {
		p.User = d.User
	}
	if d.Password != "" {
		p.Password = d.Password
	}
	if d.Path != "" && p.Path == "" {
		p.Path = d.Path
	}
	if d.Name != "" {
		p.Database = d.Name
	}
	if len(d.Options) > 0 {
		if p.Options == nil {
			p.Options = make(map[string]string, len(d.Options))
		}
		for k, val := range d.Options {
			p.Options[k] = val
		}
	}
	return p, nil
}

// Backend builds the configured backend against the drivers in caps.
func (d Database) Backend(caps db.Capabilities) (db.Backend, error) {
	p, err := d.Params()
	if err != nil {
		return nil, err
	}
	return db.New(d.Type, p, caps)
}
