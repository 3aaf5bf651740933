// Package config provides configuration loading and management for redeploy.
//
// Configuration is loaded using Viper, supporting a YAML config file and
// environment variable overrides. The defaults reproduce the fixed constants
// of a single-host deployment (install directory, isolated environment and
// service name), so redeploy works without any configuration file.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [DeployConfig] describes the checkout, environment and service to deploy
//   - [BinariesConfig] names the external tools redeploy invokes
//
// Configuration priority (highest to lowest):
//  1. Environment variables (REDEPLOY_ prefix, also read from ./.env)
//  2. Config file specified by REDEPLOY_CONFIG_PATH
//  3. /etc/redeploy/redeploy.yaml
//  4. ./redeploy.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Config represents the root configuration structure.
//
// This is the main configuration container loaded by [Loader] and used throughout
// the application. Use [DefaultConfig] to get sensible defaults.
type Config struct {
	// Deploy describes what is deployed and where.
	Deploy DeployConfig `mapstructure:"deploy"`

	// Binaries names the external commands redeploy invokes.
	Binaries BinariesConfig `mapstructure:"binaries"`

	// History configures the optional deployment record file.
	History HistoryConfig `mapstructure:"history"`

	// Log configures diagnostic logging.
	Log LogConfig `mapstructure:"log"`
}

// DeployConfig describes the working copy, isolated environment and managed
// service that a deployment operates on.
type DeployConfig struct {
	// InstallDir is the git working copy that is synchronized and from which
	// dependencies are installed. It must already be a checkout.
	InstallDir string `mapstructure:"install_dir"`

	// VenvDir is the isolated environment dependencies are installed into.
	// The package installer is resolved as VenvDir/bin/pip.
	VenvDir string `mapstructure:"venv_dir"`

	// Service is the service manager unit that is restarted and checked.
	Service string `mapstructure:"service"`

	// Remote and Branch select the revision the working copy is reset to.
	Remote string `mapstructure:"remote"`
	Branch string `mapstructure:"branch"`

	// Manifest is the dependency manifest, relative to InstallDir unless absolute.
	Manifest string `mapstructure:"manifest"`

	// HealthDelay is how long to wait after the restart before asking the
	// service manager whether the unit is active.
	HealthDelay time.Duration `mapstructure:"health_delay"`

	// LogLines is the number of journal lines printed when the health check fails.
	LogLines int `mapstructure:"log_lines"`
}

// PipPath returns the package installer inside the isolated environment.
func (d DeployConfig) PipPath() string {
	return filepath.Join(d.VenvDir, "bin", "pip")
}

// ManifestPath returns the dependency manifest path as passed to the installer.
func (d DeployConfig) ManifestPath() string {
	if filepath.IsAbs(d.Manifest) {
		return d.Manifest
	}
	return filepath.Join(d.InstallDir, d.Manifest)
}

// BinariesConfig contains the names or paths of the external tools.
//
// Each value is looked up in PATH unless it is an absolute path.
type BinariesConfig struct {
	Git        string `mapstructure:"git"`
	Systemctl  string `mapstructure:"systemctl"`
	Journalctl string `mapstructure:"journalctl"`
}

// HistoryConfig controls the deployment record file.
type HistoryConfig struct {
	// Path is the YAML file deployments are appended to.
	// Empty disables recording.
	Path string `mapstructure:"path"`

	// Keep is the maximum number of records retained. Oldest are dropped first.
	Keep int `mapstructure:"keep"`
}

// LogConfig contains diagnostic logging settings.
type LogConfig struct {
	// Level is a logrus level name: "debug", "info", "warn", "error".
	// At debug every external command is logged before it runs.
	Level string `mapstructure:"level"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
//
// The deploy defaults are the values the host was originally provisioned
// with: the checkout under /opt/workcafe, its virtualenv and the workcafe unit.
func DefaultConfig() *Config {
	return &Config{
		Deploy: DeployConfig{
			InstallDir:  "/opt/workcafe",
			VenvDir:     "/opt/workcafe/venv",
			Service:     "workcafe",
			Remote:      "origin",
			Branch:      "main",
			Manifest:    "requirements.txt",
			HealthDelay: 3 * time.Second,
			LogLines:    30,
		},
		Binaries: BinariesConfig{
			Git:        "git",
			Systemctl:  "systemctl",
			Journalctl: "journalctl",
		},
		History: HistoryConfig{
			Path: "",
			Keep: 50,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports configuration values that would make a deployment
// meaningless or unsafe to run.
func (c *Config) Validate() error {
	var errs []error
	if c.Deploy.InstallDir == "" {
		errs = append(errs, errors.New("deploy.install_dir must be set"))
	}
	if c.Deploy.VenvDir == "" {
		errs = append(errs, errors.New("deploy.venv_dir must be set"))
	}
	if c.Deploy.Service == "" {
		errs = append(errs, errors.New("deploy.service must be set"))
	}
	if c.Deploy.Remote == "" || c.Deploy.Branch == "" {
		errs = append(errs, errors.New("deploy.remote and deploy.branch must be set"))
	}
	if c.Deploy.Manifest == "" {
		errs = append(errs, errors.New("deploy.manifest must be set"))
	}
	if c.Deploy.HealthDelay < 0 {
		errs = append(errs, fmt.Errorf("deploy.health_delay must not be negative, got %s", c.Deploy.HealthDelay))
	}
	if c.Deploy.LogLines <= 0 {
		errs = append(errs, fmt.Errorf("deploy.log_lines must be positive, got %d", c.Deploy.LogLines))
	}
	if c.History.Keep < 0 {
		errs = append(errs, fmt.Errorf("history.keep must not be negative, got %d", c.History.Keep))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
