package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. IMAGE_OPTIMIZER_ENGINE_WORKERS.
const EnvPrefix = "IMAGE_OPTIMIZER"

// Config represents the main configuration structure
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Destination DestinationConfig `mapstructure:"destination"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// StoreConfig locates the persisted key/value store
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DestinationConfig contains destination picker settings
type DestinationConfig struct {
	// Default is offered when the user is asked for a destination.
	// Empty means the user's Downloads directory.
	Default string `mapstructure:"default"`
}

// EngineConfig contains local engine settings
type EngineConfig struct {
	Workers          int    `mapstructure:"workers"`
	CWebPPath        string `mapstructure:"cwebp_path"`
	PNGQuantPath     string `mapstructure:"pngquant_path"`
	PreserveMetadata bool   `mapstructure:"preserve_metadata"`
	SkipMarked       bool   `mapstructure:"skip_marked"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: filepath.Join("~", ".image-optimizer", "store.json"),
		},
		Engine: EngineConfig{
			Workers:          runtime.NumCPU(),
			CWebPPath:        "cwebp",
			PNGQuantPath:     "pngquant",
			PreserveMetadata: false,
			SkipMarked:       false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "image-optimizer.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from a .env file, the config file and
// environment variables, in increasing order of precedence.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	config := DefaultConfig()
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-optimizer")
		v.AddConfigPath("/etc/image-optimizer")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the config file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("store.path", c.Store.Path)
	v.SetDefault("destination.default", c.Destination.Default)
	v.SetDefault("engine.workers", c.Engine.Workers)
	v.SetDefault("engine.cwebp_path", c.Engine.CWebPPath)
	v.SetDefault("engine.pngquant_path", c.Engine.PNGQuantPath)
	v.SetDefault("engine.preserve_metadata", c.Engine.PreserveMetadata)
	v.SetDefault("engine.skip_marked", c.Engine.SkipMarked)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates and normalizes the configuration
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	path, err := expandPath(c.Store.Path)
	if err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	c.Store.Path = path

	if c.Destination.Default != "" {
		dest, err := expandPath(c.Destination.Default)
		if err != nil {
			return fmt.Errorf("destination.default: %w", err)
		}
		if !isValidDir(dest) {
			return fmt.Errorf("destination.default does not exist or is not a directory: %s", dest)
		}
		c.Destination.Default = dest
	}

	if c.Engine.Workers <= 0 {
		c.Engine.Workers = runtime.NumCPU()
	}
	if c.Engine.CWebPPath == "" {
		c.Engine.CWebPPath = "cwebp"
	}
	if c.Engine.PNGQuantPath == "" {
		c.Engine.PNGQuantPath = "pngquant"
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// GetDefaultDestination returns the configured destination, or fallback
// when none is set.
func (c *Config) GetDefaultDestination(fallback string) string {
	if c.Destination.Default != "" {
		return c.Destination.Default
	}
	return fallback
}

// Helper functions

func expandPath(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	return expanded, nil
}

func isValidDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}
