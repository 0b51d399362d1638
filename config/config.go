package config

import (
	"os"

	"go.uber.org/config"

	"github.com/tnicklin/sysclock/logger"
	"github.com/tnicklin/sysclock/notify"
	"github.com/tnicklin/sysclock/sntp"
	"github.com/tnicklin/sysclock/store"
	"github.com/tnicklin/sysclock/sysclock"
	"github.com/tnicklin/sysclock/telemetry"
)

// AppConfig holds all application configuration.
type AppConfig struct {
	Logger  logger.Config    `yaml:"logger"`
	SNTP    sntp.Config      `yaml:"sntp"`
	Clock   sysclock.Config  `yaml:"clock"`
	Store   store.Config     `yaml:"store"`
	Notify  notify.Config    `yaml:"notify"`
	Metrics telemetry.Config `yaml:"metrics"`
}

// Load reads configuration from the specified YAML files.
// Files are merged in order, with later files overriding earlier ones.
// Missing files are silently ignored. ${VAR} and ${VAR:default}
// references are expanded from the environment.
func Load(files ...string) (*AppConfig, error) {
	opts := make([]config.YAMLOption, 0, len(files)+1)
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			opts = append(opts, config.File(f))
		}
	}

	if len(opts) == 0 {
		return nil, os.ErrNotExist
	}
	opts = append(opts, config.Expand(os.LookupEnv))

	provider, err := config.NewYAML(opts...)
	if err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := provider.Get(config.Root).Populate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads configuration and fills unset values with
// defaults.
func LoadWithDefaults(files ...string) (*AppConfig, error) {
	cfg, err := Load(files...)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Defaults returns a configuration built only from defaults.
func Defaults() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *AppConfig) applyDefaults() {
	logDefaults := logger.Config{}.Defaults()
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = logDefaults.Level
	}
	if len(cfg.Logger.OutputPaths) == 0 {
		cfg.Logger.OutputPaths = logDefaults.OutputPaths
	}
	if cfg.Logger.File.MaxSizeMB == 0 {
		cfg.Logger.File.MaxSizeMB = logDefaults.File.MaxSizeMB
	}
	if cfg.Logger.File.MaxBackups == 0 {
		cfg.Logger.File.MaxBackups = logDefaults.File.MaxBackups
	}
	if cfg.Logger.File.MaxAgeDays == 0 {
		cfg.Logger.File.MaxAgeDays = logDefaults.File.MaxAgeDays
	}

	// SNTP defaults
	sntpDefaults := sntp.Config{}.Defaults()
	if len(cfg.SNTP.Servers) == 0 {
		cfg.SNTP.Servers = sntpDefaults.Servers
	}
	if cfg.SNTP.FallbackIP == "" {
		cfg.SNTP.FallbackIP = sntpDefaults.FallbackIP
	}
	if cfg.SNTP.Port == 0 {
		cfg.SNTP.Port = sntpDefaults.Port
	}
	if cfg.SNTP.TimeoutMS == 0 {
		cfg.SNTP.TimeoutMS = sntpDefaults.TimeoutMS
	}
	if cfg.SNTP.RefID == "" {
		cfg.SNTP.RefID = sntpDefaults.RefID
	}

	clockDefaults := sysclock.Config{}.Defaults()
	if cfg.Clock.ResyncMinutes == 0 {
		cfg.Clock.ResyncMinutes = clockDefaults.ResyncMinutes
	}
	if cfg.Clock.InitTime == "" {
		cfg.Clock.InitTime = clockDefaults.InitTime
	}

	storeDefaults := store.Config{}.Defaults()
	if cfg.Store.Path == "" {
		cfg.Store.Path = storeDefaults.Path
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = storeDefaults.RetentionDays
	}

	if cfg.Notify.StaleAfterMinutes == 0 {
		cfg.Notify.StaleAfterMinutes = notify.Config{}.Defaults().StaleAfterMinutes
	}
	if cfg.Metrics.ServiceName == "" {
		cfg.Metrics.ServiceName = telemetry.Config{}.Defaults().ServiceName
	}
}
