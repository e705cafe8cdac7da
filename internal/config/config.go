// Package config loads the service configuration.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment string `mapstructure:"environment"`
	Server      struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Storage struct {
		// Root is the directory holding deployed workflow bundles and
		// user workspaces.
		Root          string `mapstructure:"root"`
		WatchChanges  bool   `mapstructure:"watch_changes"`
		WorkspaceRoot string `mapstructure:"workspace_root"`
	} `mapstructure:"storage"`
	Search struct {
		CacheTTL  time.Duration `mapstructure:"cache_ttl"`
		CacheSize int           `mapstructure:"cache_size"`
	} `mapstructure:"search"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// IsDev reports whether the service runs in development mode. Error detail is
// only exposed to clients in dev.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "dev")
}

// WorkflowsDir is the directory containing deployed bundles.
func (c *Config) WorkflowsDir() string {
	return filepath.Join(c.Storage.Root, "workflows")
}

// LoadConfig loads the configuration from config.yaml and the environment.
// Environment variables use the AURAFORCE_ prefix with underscores, e.g.
// AURAFORCE_DB_HOST.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvPrefix("auraforce")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// config file is optional; env/defaults may carry everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "dev")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.user", "auraforce")
	viper.SetDefault("db.name", "auraforce")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("storage.root", "./data")
	viper.SetDefault("storage.workspace_root", "./data/workspaces")
	viper.SetDefault("storage.watch_changes", false)
	viper.SetDefault("search.cache_ttl", 30*time.Second)
	viper.SetDefault("search.cache_size", 256)
}
