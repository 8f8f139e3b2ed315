package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Kernel  KernelConfig  `mapstructure:"kernel"`
	Logging LoggingConfig `mapstructure:"logging"`
	Trace   TraceConfig   `mapstructure:"trace"`
	Tune    TuneConfig    `mapstructure:"tune"`
	Store   StoreConfig   `mapstructure:"store"`
}

type DeviceConfig struct {
	Backend string `mapstructure:"backend"`
	// Host emulator limits; zero keeps the emulator default.
	HostMemoryMB     int64 `mapstructure:"host_memory_mb"`
	MaxWorkGroupSize int64 `mapstructure:"max_work_group_size"`
	Workers          int   `mapstructure:"workers"`
}

type KernelConfig struct {
	IncludePath string `mapstructure:"include_path"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type TraceConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig locates persisted tuning profiles.
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type TuneConfig struct {
	Iterations int   `mapstructure:"iterations"`
	Population int   `mapstructure:"population"`
	Repeats    int   `mapstructure:"repeats"`
	Seed       int64 `mapstructure:"seed"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Backend: "host",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Tune: TuneConfig{
			Iterations: 20,
			Population: 20,
			Repeats:    3,
		},
		Store: StoreConfig{
			Dir: "./data",
		},
	}
}

// Load reads configuration from file, environment (KERNELBIND_*) and defaults.
// A missing config file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".kernelbind"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("kernelbind")
	}

	v.SetEnvPrefix("KERNELBIND")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validBackends := []string{"host", "cpu", "emulator", "opencl", "gpu", "cl"}
	if !contains(validBackends, strings.ToLower(c.Device.Backend)) {
		return fmt.Errorf("device.backend must be one of: %v", validBackends)
	}
	if c.Device.HostMemoryMB < 0 || c.Device.MaxWorkGroupSize < 0 || c.Device.Workers < 0 {
		return errors.New("device limits must not be negative")
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if c.Tune.Iterations < 1 {
		return errors.New("tune.iterations must be at least 1")
	}
	// The mayfly optimizer rejects smaller swarms.
	if c.Tune.Population < 20 {
		return errors.New("tune.population must be at least 20")
	}
	if c.Tune.Repeats < 1 {
		return errors.New("tune.repeats must be at least 1")
	}
	if c.Store.Dir == "" {
		return errors.New("store.dir cannot be empty")
	}
	return nil
}

// ExpandPaths expands ~ and environment variables in paths.
func (c *Config) ExpandPaths() {
	c.Kernel.IncludePath = expandPath(c.Kernel.IncludePath)
	c.Logging.File = expandPath(c.Logging.File)
	c.Trace.Path = expandPath(c.Trace.Path)
	c.Store.Dir = expandPath(c.Store.Dir)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device.backend", cfg.Device.Backend)
	v.SetDefault("device.host_memory_mb", cfg.Device.HostMemoryMB)
	v.SetDefault("device.max_work_group_size", cfg.Device.MaxWorkGroupSize)
	v.SetDefault("device.workers", cfg.Device.Workers)

	v.SetDefault("kernel.include_path", cfg.Kernel.IncludePath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)

	v.SetDefault("trace.path", cfg.Trace.Path)

	v.SetDefault("tune.iterations", cfg.Tune.Iterations)
	v.SetDefault("tune.population", cfg.Tune.Population)
	v.SetDefault("tune.repeats", cfg.Tune.Repeats)
	v.SetDefault("tune.seed", cfg.Tune.Seed)

	v.SetDefault("store.dir", cfg.Store.Dir)
}
