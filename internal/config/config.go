package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/delivery"
	"github.com/zhubert/plural-bridge/internal/errors"
	"github.com/zhubert/plural-bridge/internal/logger"
	"github.com/zhubert/plural-bridge/internal/session"
)

// Environment variables that override file settings.
const (
	EnvClaudeBinary       = "PLURAL_BRIDGE_CLAUDE_BINARY"
	EnvClaudeBinaryLegacy = "CLAUDE_BINARY"
	EnvWorkingDir         = "PLURAL_BRIDGE_WORKDIR"
)

// configFileNames are tried in order inside the config directory.
var configFileNames = []string{"config.yaml", "config.yml", "config.json"}

// Config holds the bridge configuration
type Config struct {
	WorkingDir         string   `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`     // Directory the agent runs in (default: current directory)
	ClaudeBinary       string   `yaml:"claude_binary,omitempty" json:"claude_binary,omitempty"` // Agent CLI name or path
	ExtraArgs          []string `yaml:"extra_args,omitempty" json:"extra_args,omitempty"`       // Appended to every invocation
	ExchangeTimeout    string   `yaml:"exchange_timeout" json:"exchange_timeout"`               // e.g. "30m"
	StopGracePeriod    string   `yaml:"stop_grace_period" json:"stop_grace_period"`             // e.g. "2s"
	GreetingPrompt     string   `yaml:"greeting_prompt,omitempty" json:"greeting_prompt,omitempty"`
	MaxMessageLength   int      `yaml:"max_message_length" json:"max_message_length"`       // Outbound chunk size in runes
	NotifyOnSessionEnd bool     `yaml:"notify_on_session_end" json:"notify_on_session_end"` // Desktop notification when a stream ends
	LogFile            string   `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	LogLevel           string   `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// Default returns a Config with every setting at its default.
func Default() *Config {
	return &Config{
		ClaudeBinary:     claude.DefaultBinary,
		ExchangeTimeout:  claude.DefaultExchangeTimeout.String(),
		StopGracePeriod:  claude.DefaultGracePeriod.String(),
		GreetingPrompt:   session.DefaultGreetingPrompt,
		MaxMessageLength: delivery.DefaultMaxLength,
		LogFile:          logger.DefaultLogPath,
		LogLevel:         "info",
	}
}

// Dir returns the path to the config directory
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".plural-bridge"), nil
}

// defaultPath returns the first existing config file in Dir, or the YAML
// path if none exists yet.
func defaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	for _, name := range configFileNames {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, configFileNames[0]), nil
}

// Load reads the config at path, or from the default location when path is
// empty. A missing file yields the defaults. Environment overrides are
// applied before validation.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := defaultPath()
		if err != nil {
			return nil, errors.ConfigLoadFailed("home directory", err)
		}
		path = p
	}

	cfg := Default()
	cfg.filePath = path

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
	case err != nil:
		return nil, errors.ConfigLoadFailed(path, err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, errors.ConfigLoadFailed(path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses YAML, or JSON with comments and trailing commas when the
// file has a .json extension.
func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnv overrides file settings from the environment.
//
// Thread-safety: only called from Load before the Config is shared.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvClaudeBinary); ok && v != "" {
		c.ClaudeBinary = v
	} else if v, ok := os.LookupEnv(EnvClaudeBinaryLegacy); ok && v != "" {
		c.ClaudeBinary = v
	}
	if v, ok := os.LookupEnv(EnvWorkingDir); ok && v != "" {
		c.WorkingDir = v
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if d, err := time.ParseDuration(c.ExchangeTimeout); err != nil || d <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("exchange_timeout %q must be a positive duration", c.ExchangeTimeout))
	}
	if d, err := time.ParseDuration(c.StopGracePeriod); err != nil || d <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("stop_grace_period %q must be a positive duration", c.StopGracePeriod))
	}
	if c.MaxMessageLength <= 0 {
		return errors.ConfigInvalid(fmt.Sprintf("max_message_length %d must be positive", c.MaxMessageLength))
	}
	if strings.TrimSpace(c.ClaudeBinary) == "" {
		return errors.ConfigInvalid("claude_binary must not be empty")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if c.WorkingDir != "" {
		info, err := os.Stat(c.WorkingDir)
		if err != nil {
			return errors.ConfigInvalid(fmt.Sprintf("working_dir %s: %v", c.WorkingDir, err))
		}
		if !info.IsDir() {
			return errors.ConfigInvalid(fmt.Sprintf("working_dir %s is not a directory", c.WorkingDir))
		}
	}
	return nil
}

// Save writes the config as YAML to the path it was loaded from.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filePath == "" {
		return errors.ConfigSaveFailed("<unset>", fmt.Errorf("config has no file path"))
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return errors.ConfigSaveFailed(c.filePath, err)
	}

	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(c.filePath), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.ConfigSaveFailed(c.filePath, err)
	}

	if err := os.WriteFile(c.filePath, data, 0644); err != nil {
		return errors.ConfigSaveFailed(c.filePath, err)
	}
	return nil
}

// Path returns the file the config was loaded from or will be saved to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// SetWorkingDir overrides the working directory (from --workdir).
func (c *Config) SetWorkingDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WorkingDir = dir
}

// SetLogFile overrides the log file (from --log-file).
func (c *Config) SetLogFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LogFile = path
}

// GetWorkingDir returns the configured working directory, falling back to
// the process's current directory.
func (c *Config) GetWorkingDir() string {
	c.mu.RLock()
	dir := c.WorkingDir
	c.mu.RUnlock()

	if dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// GetExchangeTimeout returns exchange_timeout, or the default if unparseable.
func (c *Config) GetExchangeTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, err := time.ParseDuration(c.ExchangeTimeout)
	if err != nil || d <= 0 {
		return claude.DefaultExchangeTimeout
	}
	return d
}

// GetStopGracePeriod returns stop_grace_period, or the default if unparseable.
func (c *Config) GetStopGracePeriod() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, err := time.ParseDuration(c.StopGracePeriod)
	if err != nil || d <= 0 {
		return claude.DefaultGracePeriod
	}
	return d
}

// GetLogLevel returns the parsed log level.
func (c *Config) GetLogLevel() logger.LogLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// GetLogFile returns the log file path.
func (c *Config) GetLogFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.LogFile == "" {
		return logger.DefaultLogPath
	}
	return c.LogFile
}

// ExchangeConfig builds the synchronous exchange settings.
func (c *Config) ExchangeConfig() claude.ExchangeConfig {
	c.mu.RLock()
	binary, extra := c.ClaudeBinary, append([]string(nil), c.ExtraArgs...)
	c.mu.RUnlock()

	return claude.ExchangeConfig{
		Binary:      binary,
		WorkingDir:  c.GetWorkingDir(),
		ExtraArgs:   extra,
		Timeout:     c.GetExchangeTimeout(),
		GracePeriod: c.GetStopGracePeriod(),
	}
}

// StreamConfig builds the base settings for resumed streaming sessions.
// ChannelID and SessionID are filled in per stream.
func (c *Config) StreamConfig() claude.StreamConfig {
	c.mu.RLock()
	binary, extra := c.ClaudeBinary, append([]string(nil), c.ExtraArgs...)
	c.mu.RUnlock()

	return claude.StreamConfig{
		Binary:      binary,
		WorkingDir:  c.GetWorkingDir(),
		ExtraArgs:   extra,
		GracePeriod: c.GetStopGracePeriod(),
	}
}
