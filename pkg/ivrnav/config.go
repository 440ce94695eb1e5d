// Package ivrnav wires the call-navigation components into a runnable
// engine: session store, menu navigator, reasoning provider, call history,
// and the telephony transport.
package ivrnav

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Session   SessionConfig   `mapstructure:"session"`
	Navigator NavigatorConfig `mapstructure:"navigator"`

	Reasoner   ProviderConfig `mapstructure:"reasoner"`
	Transports ProviderConfig `mapstructure:"transports"`
	History    ProviderConfig `mapstructure:"history"`

	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

// ProviderConfig selects a registered provider and carries its free-form
// settings, decoded by the provider factory.
type ProviderConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type SessionConfig struct {
	TTLMinutes       int `mapstructure:"ttl_minutes"`
	SweepIntervalSec int `mapstructure:"sweep_interval_sec"`
}

func (c SessionConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c SessionConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSec <= 0 {
		return 0
	}
	return time.Duration(c.SweepIntervalSec) * time.Second
}

type NavigatorConfig struct {
	AIDeadlineMS         int    `mapstructure:"ai_deadline_ms"`
	GatherTimeoutSec     int    `mapstructure:"gather_timeout_sec"`
	DigitPauseSec        int    `mapstructure:"digit_pause_sec"`
	DeadEndSilenceMS     int    `mapstructure:"dead_end_silence_ms"`
	MaxLoopHistory       int    `mapstructure:"max_loop_history"`
	ConfirmationQuestion string `mapstructure:"confirmation_question"`
	HandoffText          string `mapstructure:"handoff_text"`
	GoodbyeText          string `mapstructure:"goodbye_text"`
	ApologyText          string `mapstructure:"apology_text"`
	Voice                string `mapstructure:"voice"`
	Language             string `mapstructure:"language"`
}

type ObservabilityConfig struct {
	RouteBudgetMS  int     `mapstructure:"route_budget_ms"`
	LogSampleRate  float64 `mapstructure:"log_sample_rate"`
	MetricsFile    string  `mapstructure:"metrics_file"`
	TimelineDir    string  `mapstructure:"timeline_dir"`
	UsageDir       string  `mapstructure:"usage_dir"`
	RetentionHours int     `mapstructure:"retention_hours"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("session.ttl_minutes", 60)
	v.SetDefault("session.sweep_interval_sec", 300)
	v.SetDefault("navigator.ai_deadline_ms", 12000)
	v.SetDefault("navigator.gather_timeout_sec", 6)
	v.SetDefault("navigator.digit_pause_sec", 1)
	v.SetDefault("navigator.dead_end_silence_ms", 7000)
	v.SetDefault("navigator.max_loop_history", 64)
	v.SetDefault("history.provider", "memory")
	v.SetDefault("observability.route_budget_ms", 12000)
	v.SetDefault("observability.log_sample_rate", 1.0)
	v.SetDefault("observability.retention_hours", 72)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if strings.TrimSpace(c.Reasoner.Provider) == "" {
		return fmt.Errorf("reasoner.provider is required")
	}
	if strings.TrimSpace(c.History.Provider) == "" {
		return fmt.Errorf("history.provider is required")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Reasoner.Settings = expandSettings(cfg.Reasoner.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
	cfg.History.Settings = expandSettings(cfg.History.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
