package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL        string
	ProgramID     string
	SignerKeyPath string

	DatabaseDSN string

	PollInterval      time.Duration
	FallbackInterval  time.Duration
	IngestInterval    time.Duration
	ReconcileInterval time.Duration
	EscalateAfter     time.Duration

	RetentionDays int
	BatchLimit    int
	MaxRetries    int
	RetryBackoff  time.Duration

	APIListen string
	Roster    []string
	LogLevel  string
}

// Validate reports the first missing required value.
func (c Config) Validate() error {
	switch {
	case c.RPCURL == "":
		return fmt.Errorf("rpc endpoint is required")
	case c.ProgramID == "":
		return fmt.Errorf("program id is required")
	case c.DatabaseDSN == "":
		return fmt.Errorf("database dsn is required")
	}
	return nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRANKD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("fallback-interval", 15*time.Second)
	v.SetDefault("ingest-interval", 5*time.Second)
	v.SetDefault("reconcile-interval", time.Minute)
	v.SetDefault("escalate-after", time.Hour)
	v.SetDefault("retention-days", 30)
	v.SetDefault("batch-limit", 200)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("api-listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		ProgramID:         v.GetString("program"),
		SignerKeyPath:     v.GetString("signer-keypair"),
		DatabaseDSN:       v.GetString("database-dsn"),
		PollInterval:      v.GetDuration("poll-interval"),
		FallbackInterval:  v.GetDuration("fallback-interval"),
		IngestInterval:    v.GetDuration("ingest-interval"),
		ReconcileInterval: v.GetDuration("reconcile-interval"),
		EscalateAfter:     v.GetDuration("escalate-after"),
		RetentionDays:     v.GetInt("retention-days"),
		BatchLimit:        v.GetInt("batch-limit"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		APIListen:         v.GetString("api-listen"),
		Roster:            getStringSlice(v, "roster"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
