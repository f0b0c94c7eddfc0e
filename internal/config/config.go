// Package config loads and persists the application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given
const DefaultFile = "config.yaml"

// DefaultPresetsURL is the release that carries the official preset list
const DefaultPresetsURL = "https://api.github.com/repos/Nicolhetti/DSQProcess/releases/tags/presets"

// Config is the complete application configuration
type Config struct {
	// User settings
	Language            string `mapstructure:"language"`
	SelectedPreset      int    `mapstructure:"selected_preset"`
	ProcessName         string `mapstructure:"process_name"`
	CustomPath          string `mapstructure:"custom_path"`
	RichPresenceEnabled bool   `mapstructure:"rich_presence_enabled"`
	DurationMinutes     int    `mapstructure:"duration_minutes"`

	// Process monitor
	NamespaceRoot    string        `mapstructure:"namespace_root"`
	TemplatePath     string        `mapstructure:"template_path"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	CleanupGrace     time.Duration `mapstructure:"cleanup_grace"`
	SweepMode        string        `mapstructure:"sweep_mode"`
	VerifyExecutable bool          `mapstructure:"verify_executable"`

	// Status API, empty disables it
	StatusAddr string `mapstructure:"status_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`
	LogDir   string `mapstructure:"log_dir"`

	// Presets and translations
	PresetsURL string        `mapstructure:"presets_url"`
	PresetsTTL time.Duration `mapstructure:"presets_ttl"`
	PresetsDir string        `mapstructure:"presets_dir"`
	LangDir    string        `mapstructure:"lang_dir"`

	// Path the config was read from, "" when only defaults applied
	Path string `mapstructure:"-"`
}

// fileView is the on-disk shape; durations are written as strings such as "2s"
type fileView struct {
	Language            string `yaml:"language"`
	SelectedPreset      int    `yaml:"selected_preset"`
	ProcessName         string `yaml:"process_name"`
	CustomPath          string `yaml:"custom_path"`
	RichPresenceEnabled bool   `yaml:"rich_presence_enabled"`
	DurationMinutes     int    `yaml:"duration_minutes"`
	NamespaceRoot       string `yaml:"namespace_root"`
	TemplatePath        string `yaml:"template_path,omitempty"`
	PollInterval        string `yaml:"poll_interval"`
	CleanupGrace        string `yaml:"cleanup_grace"`
	SweepMode           string `yaml:"sweep_mode"`
	VerifyExecutable    bool   `yaml:"verify_executable"`
	StatusAddr          string `yaml:"status_addr,omitempty"`
	LogLevel            string `yaml:"log_level"`
	LogJSON             bool   `yaml:"log_json"`
	LogDir              string `yaml:"log_dir,omitempty"`
	PresetsURL          string `yaml:"presets_url"`
	PresetsTTL          string `yaml:"presets_ttl"`
	PresetsDir          string `yaml:"presets_dir"`
	LangDir             string `yaml:"lang_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("language", "Español")
	v.SetDefault("selected_preset", 0)
	v.SetDefault("process_name", "")
	v.SetDefault("custom_path", "")
	v.SetDefault("rich_presence_enabled", true)
	v.SetDefault("duration_minutes", 15)
	v.SetDefault("namespace_root", "Games")
	v.SetDefault("template_path", "")
	v.SetDefault("poll_interval", "2s")
	v.SetDefault("cleanup_grace", "100ms")
	v.SetDefault("sweep_mode", "snapshot")
	v.SetDefault("verify_executable", false)
	v.SetDefault("status_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("log_dir", "")
	v.SetDefault("presets_url", DefaultPresetsURL)
	v.SetDefault("presets_ttl", "6h")
	v.SetDefault("presets_dir", ".")
	v.SetDefault("lang_dir", "lang")
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DSQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or config.yaml in the working directory when path is empty. A missing
// default file is not an error; a missing explicit file is. DSQ_* environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.SetConfigType("yaml")
	}

	read := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		read = false
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if read {
		cfg.Path = v.ConfigFileUsed()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would break the monitor
func (c *Config) Validate() error {
	if c.DurationMinutes < 0 {
		return fmt.Errorf("invalid duration_minutes %d: must not be negative", c.DurationMinutes)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll_interval %s: must be positive", c.PollInterval)
	}
	if c.CleanupGrace < 0 {
		return fmt.Errorf("invalid cleanup_grace %s: must not be negative", c.CleanupGrace)
	}
	switch c.SweepMode {
	case "snapshot", "lookup":
	default:
		return fmt.Errorf("invalid sweep_mode %q: want snapshot or lookup", c.SweepMode)
	}
	root := strings.Trim(strings.ReplaceAll(strings.TrimSpace(c.NamespaceRoot), "\\", "/"), "/")
	if root == "" {
		return errors.New("namespace_root must not be empty")
	}
	c.NamespaceRoot = root
	return nil
}

// Save writes the configuration as YAML to path, or to the file it was loaded from
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.Path
	}
	if path == "" {
		path = DefaultFile
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	c.Path = path
	return nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	view := fileView{
		Language:            c.Language,
		SelectedPreset:      c.SelectedPreset,
		ProcessName:         c.ProcessName,
		CustomPath:          c.CustomPath,
		RichPresenceEnabled: c.RichPresenceEnabled,
		DurationMinutes:     c.DurationMinutes,
		NamespaceRoot:       c.NamespaceRoot,
		TemplatePath:        c.TemplatePath,
		PollInterval:        c.PollInterval.String(),
		CleanupGrace:        c.CleanupGrace.String(),
		SweepMode:           c.SweepMode,
		VerifyExecutable:    c.VerifyExecutable,
		StatusAddr:          c.StatusAddr,
		LogLevel:            c.LogLevel,
		LogJSON:             c.LogJSON,
		LogDir:              c.LogDir,
		PresetsURL:          c.PresetsURL,
		PresetsTTL:          c.PresetsTTL.String(),
		PresetsDir:          c.PresetsDir,
		LangDir:             c.LangDir,
	}
	data, err := yaml.Marshal(&view)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// ExampleConfig is a commented configuration file
const ExampleConfig = `# dsqprocess configuration

# UI language: "Español" or "English"
language: "Español"

# Index into the preset list selected last time
selected_preset: 0

# Values for a custom start
process_name: ""
custom_path: ""

# Broadcast the simulated game as rich presence
rich_presence_enabled: true

# Minutes before the simulated process closes itself, 0 keeps it open
duration_minutes: 15

# Every artifact is placed below this directory
namespace_root: "Games"

# Child template, defaults to DSQChild next to the executable
# template_path: "/opt/dsqprocess/DSQChild"

# How often tracked processes are checked
poll_interval: "2s"

# Delay before deleting the artifact of an ended process
cleanup_grace: "100ms"

# snapshot lists every pid once per check, lookup queries each tracked pid
sweep_mode: "snapshot"

# Also compare the executable path of a live pid with the tracked artifact
verify_executable: false

# Status API listen address, empty disables it
# status_addr: "127.0.0.1:9471"

log_level: "info"
log_json: false
# log_dir: "logs"

presets_url: "https://api.github.com/repos/Nicolhetti/DSQProcess/releases/tags/presets"
presets_ttl: "6h"
presets_dir: "."
lang_dir: "lang"
`
