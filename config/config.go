package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/zeu5/studybreak-rl/study"
)

// ErrInvalidConfig is wrapped by all the validation errors
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix of the environment variables overriding the configuration,
// e.g. STUDYBREAK_SERVER_ADDR for server.addr
const EnvPrefix = "STUDYBREAK"

// Config holds the application's configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Training    TrainingConfig    `mapstructure:"training"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`

	v  *viper.Viper
	mu sync.Mutex
}

// ServerConfig contains server-related settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// gin mode: debug, release or test
	Mode string `mapstructure:"mode"`
}

// AgentConfig contains the Q-learning hyperparameters
type AgentConfig struct {
	LearningRate float64 `mapstructure:"learning_rate"`
	Discount     float64 `mapstructure:"discount"`
	Epsilon      float64 `mapstructure:"epsilon"`
	// 0 seeds from the clock
	Seed uint64 `mapstructure:"seed"`
}

// PreferencesConfig contains the initial user preferences
type PreferencesConfig struct {
	FatigueSensitivity string `mapstructure:"fatigue_sensitivity"`
	BreakBias          string `mapstructure:"break_bias"`
}

// TrainingConfig bounds the training requests
type TrainingConfig struct {
	DefaultEpisodes int `mapstructure:"default_episodes"`
	MaxEpisodes     int `mapstructure:"max_episodes"`
	Horizon         int `mapstructure:"horizon"`
}

// HistoryConfig selects where the session history is stored
type HistoryConfig struct {
	// file, redis or memory
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics collection settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.mode", "release")

	v.SetDefault("agent.learning_rate", 0.1)
	v.SetDefault("agent.discount", 0.9)
	v.SetDefault("agent.epsilon", 0.2)
	v.SetDefault("agent.seed", 0)

	v.SetDefault("preferences.fatigue_sensitivity", "medium")
	v.SetDefault("preferences.break_bias", "study")

	v.SetDefault("training.default_episodes", 100)
	v.SetDefault("training.max_episodes", 10000)
	v.SetDefault("training.horizon", 1000)

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.path", "")
	v.SetDefault("history.redis_addr", "127.0.0.1:6379")
	v.SetDefault("history.redis_key", "studybreak:history")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the configuration from the file (if any), the environment and the defaults.
// With an empty path studybreak.yaml is looked up in the working directory and ./config
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("studybreak")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration without any file or environment override
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{v: v}
	// defaults always decode
	_ = v.Unmarshal(cfg)
	return cfg
}

// File used to load the configuration, empty if none
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the ranges and the names in the configuration
func (c *Config) Validate() error {
	for name, val := range map[string]float64{
		"agent.learning_rate": c.Agent.LearningRate,
		"agent.discount":      c.Agent.Discount,
		"agent.epsilon":       c.Agent.Epsilon,
	} {
		if val < 0 || val > 1 {
			return invalid("%s must be in [0, 1], got %v", name, val)
		}
	}
	if _, ok := study.ParseFatigueSensitivity(c.Preferences.FatigueSensitivity); !ok {
		return invalid("unknown fatigue sensitivity %q", c.Preferences.FatigueSensitivity)
	}
	if _, ok := study.ParseBreakBias(c.Preferences.BreakBias); !ok {
		return invalid("unknown break bias %q", c.Preferences.BreakBias)
	}
	if c.Training.MaxEpisodes <= 0 {
		return invalid("training.max_episodes must be positive")
	}
	if c.Training.DefaultEpisodes <= 0 || c.Training.DefaultEpisodes > c.Training.MaxEpisodes {
		return invalid("training.default_episodes must be in [1, %d]", c.Training.MaxEpisodes)
	}
	if c.Training.Horizon <= 0 {
		return invalid("training.horizon must be positive")
	}
	switch c.History.Backend {
	case "file", "redis", "memory":
	default:
		return invalid("unknown history backend %q", c.History.Backend)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("unknown server mode %q", c.Server.Mode)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout must be positive")
	}
	return nil
}

// Watch reloads the configuration when the file changes.
// The callback receives the new configuration, invalid changes are reported through onError
func (c *Config) Watch(callback func(*Config), onError func(error)) {
	if c.v == nil || c.File() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		next := &Config{v: c.v}
		if err := c.v.Unmarshal(next); err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to reload %s: %w", e.Name, err))
			}
			return
		}
		if err := next.Validate(); err != nil {
			if onError != nil {
				onError(fmt.Errorf("config validation failed after reload: %w", err))
			}
			return
		}
		if callback != nil {
			callback(next)
		}
	})
	c.v.WatchConfig()
}
