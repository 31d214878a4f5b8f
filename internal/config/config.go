// Package config handles loading and validating the parrot configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultVoice is used when a request names no voice.
const DefaultVoice = "af_heart"

// Config is the root configuration for the parrot daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Language   string           `mapstructure:"language"` // pipeline language reported by health
	Routing    RoutingConfig    `mapstructure:"routing"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Encoder    EncoderConfig    `mapstructure:"encoder"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the probe server and request admission settings.
type ServerConfig struct {
	HealthPort     int     `mapstructure:"health_port"`
	MaxConcurrent  int     `mapstructure:"max_concurrent"` // in-flight syntheses
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"` // 0 disables
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuthConfig holds the optional shared bearer token.
type AuthConfig struct {
	Token string `mapstructure:"token"` // empty disables auth; "${VAR}" is resolved
}

// RoutingConfig names the providers the selector routes between.
type RoutingConfig struct {
	Default         string   `mapstructure:"default"`
	System          string   `mapstructure:"system"`
	Clone           string   `mapstructure:"clone"`
	SystemLanguages []string `mapstructure:"system_languages"` // base tokens routed to the system voice
}

// ProvidersConfig configures each synthesis backend.
type ProvidersConfig struct {
	Neural NeuralConfig `mapstructure:"neural"`
	System SystemConfig `mapstructure:"system"`
	Clone  CloneConfig  `mapstructure:"clone"`
}

// NeuralConfig holds the Wyoming neural pipeline settings.
type NeuralConfig struct {
	Endpoint     string        `mapstructure:"endpoint"` // Wyoming TCP endpoint (host:port)
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Language     string        `mapstructure:"language"`
	Voices       []string      `mapstructure:"voices"` // advertised when the server lists none
	MaxChars     int           `mapstructure:"max_chars"`
}

// SystemConfig holds the OS speech command settings.
type SystemConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Binary       string `mapstructure:"binary"`
	DefaultVoice string `mapstructure:"default_voice"`
	MaxChars     int    `mapstructure:"max_chars"`
}

// CloneConfig holds the voice-cloning model server settings.
type CloneConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"` // base URL, e.g. http://localhost:8020
	SpeakersDir string        `mapstructure:"speakers_dir"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Warmup      bool          `mapstructure:"warmup"`
	MaxChars    int           `mapstructure:"max_chars"`
}

// EncoderConfig configures output encoding.
type EncoderConfig struct {
	FFmpeg     string `mapstructure:"ffmpeg"`      // binary name or path
	MP3Bitrate string `mapstructure:"mp3_bitrate"` // passed to -b:a
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./parrot.yaml, ./configs/parrot.yaml, /etc/parrot/parrot.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("parrot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/parrot")
	}

	// Environment variables: PARROT_SERVER_HEALTH_PORT, PARROT_PROVIDERS_NEURAL_ENDPOINT, etc.
	v.SetEnvPrefix("PARROT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variables from earlier deployments.
	_ = v.BindEnv("auth.token", "PARROT_AUTH_TOKEN", "APP_TOKEN", "KOKORO_BEARER")
	_ = v.BindEnv("language", "PARROT_LANGUAGE", "KOKORO_LANG")

	// Config file is optional: env vars and defaults are sufficient.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Auth.Token = resolveEnvRef(cfg.Auth.Token)
	if cfg.Providers.Neural.Language == "" {
		cfg.Providers.Neural.Language = cfg.Language
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8881)
	v.SetDefault("server.max_concurrent", 4)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 8)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8880)
	v.SetDefault("transports.grpc.enabled", false)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("language", "en-us")
	v.SetDefault("routing.default", "kokoro")
	v.SetDefault("routing.system", "apple_say")
	v.SetDefault("routing.clone", "xtts")
	v.SetDefault("routing.system_languages", []string{"ja", "sv"})
	v.SetDefault("providers.neural.endpoint", "localhost:10200")
	v.SetDefault("providers.neural.dial_timeout", "3s")
	v.SetDefault("providers.neural.timeout", "60s")
	v.SetDefault("providers.neural.probe_timeout", "5s")
	v.SetDefault("providers.neural.voices", []string{DefaultVoice})
	v.SetDefault("providers.neural.max_chars", 5000)
	v.SetDefault("providers.system.enabled", true)
	v.SetDefault("providers.system.binary", "say")
	v.SetDefault("providers.system.default_voice", "Alex")
	v.SetDefault("providers.system.max_chars", 10000)
	v.SetDefault("providers.clone.enabled", false)
	v.SetDefault("providers.clone.endpoint", "http://localhost:8020")
	v.SetDefault("providers.clone.speakers_dir", "assets/speakers")
	v.SetDefault("providers.clone.timeout", "120s")
	v.SetDefault("providers.clone.warmup", true)
	v.SetDefault("providers.clone.max_chars", 1200)
	v.SetDefault("encoder.ffmpeg", "ffmpeg")
	v.SetDefault("encoder.mp3_bitrate", "192k")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("server.max_concurrent must be at least 1, got %d", c.Server.MaxConcurrent)
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must not be negative")
	}
	if c.Routing.Default == "" {
		return fmt.Errorf("routing.default must name a provider")
	}
	if c.Providers.Neural.Endpoint == "" {
		return fmt.Errorf("providers.neural.endpoint is required")
	}
	if c.Providers.Clone.Enabled && c.Providers.Clone.Endpoint == "" {
		return fmt.Errorf("providers.clone.endpoint is required when the clone provider is enabled")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	slog.SetDefault(NewLogger(cfg, os.Stdout))
}

// NewLogger builds a logger writing to w.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
