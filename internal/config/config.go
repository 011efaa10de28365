// Package config loads easd's layered configuration: defaults, an optional
// config file, environment variables (EASD_ prefix), then command-line
// flags, in increasing priority — the standard viper/pflag composition.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the daemon's resolved settings.
type Config struct {
	DataDir       string
	LogLevel      string
	LogFormat     string
	DeviceIDFile  string
	CheckInterval time.Duration

	HTTPMaxConnsTotal    int
	HTTPMaxConnsPerHost  int
	HTTPAllowInsecureTLS bool

	PingEnabled bool

	StatusAddr string
}

// Load resolves configuration from (in increasing priority) built-in
// defaults, an optional file at configPath, EASD_-prefixed environment
// variables, and the provided flag set (already parsed by the caller).
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("data-dir", defaultDataDir())
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("device-id-file", "deviceName")
	v.SetDefault("scheduler.check-interval", time.Minute)
	v.SetDefault("http.max-conns-total", 25)
	v.SetDefault("http.max-conns-per-host", 8)
	v.SetDefault("http.allow-insecure-tls", false)
	v.SetDefault("ping.enabled", true)
	v.SetDefault("status-addr", "127.0.0.1:8721")

	v.SetEnvPrefix("EASD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	cfg := &Config{
		DataDir:              v.GetString("data-dir"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
		DeviceIDFile:         v.GetString("device-id-file"),
		CheckInterval:        v.GetDuration("scheduler.check-interval"),
		HTTPMaxConnsTotal:    v.GetInt("http.max-conns-total"),
		HTTPMaxConnsPerHost:  v.GetInt("http.max-conns-per-host"),
		HTTPAllowInsecureTLS: v.GetBool("http.allow-insecure-tls"),
		PingEnabled:          v.GetBool("ping.enabled"),
		StatusAddr:           v.GetString("status-addr"),
	}

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data-dir must not be empty")
	}

	return cfg, nil
}

func defaultDataDir() string {
	if dir, err := osUserConfigDir(); err == nil {
		return dir + "/easd"
	}
	return ".easd"
}
