package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SearchPaths lists the config files tried (in order) when REDEPLOY_CONFIG_PATH
// is not set.
var SearchPaths = []string{
	"/etc/redeploy/redeploy.yaml",
	"redeploy.yaml",
}

// envAliases binds short environment variable names to config keys, in
// addition to the REDEPLOY_<SECTION>_<KEY> names bound automatically.
var envAliases = map[string]string{
	"deploy.install_dir": "REDEPLOY_INSTALL_DIR",
	"deploy.venv_dir":    "REDEPLOY_VENV_DIR",
	"deploy.service":     "REDEPLOY_SERVICE",
	"deploy.branch":      "REDEPLOY_BRANCH",
	"log.level":          "REDEPLOY_LOG_LEVEL",
}

// Loader handles configuration loading with Viper.
//
// Create instances with [NewLoader]. Defaults from [DefaultConfig] are registered
// on construction so that every key is known to Viper and can be overridden
// from the environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new [Loader] with defaults and environment bindings applied.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("REDEPLOY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		_ = v.BindEnv(key, "REDEPLOY_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	return &Loader{v: v}
}

// Load resolves and loads the configuration.
//
// A .env file in the working directory is loaded into the process environment
// first; variables already set take precedence over it. Then the config file is
// chosen from REDEPLOY_CONFIG_PATH or [SearchPaths]. If none exists, defaults
// plus environment overrides are returned.
func (l *Loader) Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	if path := os.Getenv("REDEPLOY_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	for _, path := range SearchPaths {
		if _, err := os.Stat(path); err == nil {
			return l.LoadFromFile(path)
		}
	}

	return l.unmarshal()
}

// LoadFromFile loads configuration from the given YAML file, layered over
// the defaults and under environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("deploy.install_dir", cfg.Deploy.InstallDir)
	v.SetDefault("deploy.venv_dir", cfg.Deploy.VenvDir)
	v.SetDefault("deploy.service", cfg.Deploy.Service)
	v.SetDefault("deploy.remote", cfg.Deploy.Remote)
	v.SetDefault("deploy.branch", cfg.Deploy.Branch)
	v.SetDefault("deploy.manifest", cfg.Deploy.Manifest)
	v.SetDefault("deploy.health_delay", cfg.Deploy.HealthDelay)
	v.SetDefault("deploy.log_lines", cfg.Deploy.LogLines)

	v.SetDefault("binaries.git", cfg.Binaries.Git)
	v.SetDefault("binaries.systemctl", cfg.Binaries.Systemctl)
	v.SetDefault("binaries.journalctl", cfg.Binaries.Journalctl)

	v.SetDefault("history.path", cfg.History.Path)
	v.SetDefault("history.keep", cfg.History.Keep)

	v.SetDefault("log.level", cfg.Log.Level)
}
