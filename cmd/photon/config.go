package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/settings"
)

const (
	defaultBindHost       = "127.0.0.1"
	defaultAPIPort        = model.DefaultAPIPort
	defaultQueryTimeout   = model.DefaultQueryTimeout
	defaultReloadDebounce = model.DefaultReloadDebounce
	defaultLogLevel       = model.DefaultLogLevel
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	FieldIndex       string        `mapstructure:"field-index"`
	MetricIndex      string        `mapstructure:"metric-index"`
	TableIndex       string        `mapstructure:"table-index"`
	Settings         string        `mapstructure:"settings"`
	SettingsOverride string        `mapstructure:"settings-override"`
	DBPath           string        `mapstructure:"db-path"`
	APIPort          int           `mapstructure:"api-port"`
	APIAddr          string        `mapstructure:"api-addr"`
	QueryTimeout     time.Duration `mapstructure:"query-timeout"`
	Reload           bool          `mapstructure:"reload"`
	ReloadDebounce   time.Duration `mapstructure:"reload-debounce"`
	LogLevel         string        `mapstructure:"log-level"`
	ConfigPath       string        `mapstructure:"-"` // not from config file
}

// boundFlags override config file and env when set on the command line.
var boundFlags = []string{"field-index", "metric-index", "table-index", "settings", "log-level", "api-port", "db-path", "reload"}

func loadConfig(configPath string, flags *pflag.FlagSet) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PHOTON")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("field-index", "")
	v.SetDefault("metric-index", "")
	v.SetDefault("table-index", "")
	v.SetDefault("settings", "")
	v.SetDefault("settings-override", settings.DefaultOverridePath())
	v.SetDefault("db-path", "")
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("reload", true)
	v.SetDefault("reload-debounce", defaultReloadDebounce)
	v.SetDefault("log-level", defaultLogLevel)

	if flags != nil {
		for _, name := range boundFlags {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(name, f); err != nil {
					return cfg, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "photon", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if (cfg.FieldIndex == "") != (cfg.MetricIndex == "") {
		return cfg, errors.New("field-index and metric-index must be set together")
	}
	if cfg.TableIndex != "" && cfg.FieldIndex == "" {
		return cfg, errors.New("table-index needs field-index and metric-index")
	}

	for _, p := range []*string{&cfg.FieldIndex, &cfg.MetricIndex, &cfg.TableIndex, &cfg.Settings, &cfg.SettingsOverride, &cfg.DBPath} {
		*p = expandHome(*p, home)
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
