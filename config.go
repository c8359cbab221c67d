package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

const (
	anonymousUser      = "anonymous"
	defaultTargetPath  = "videos"
	defaultRetry       = 5 * time.Second
	defaultTimeout     = 300 * time.Second
	defaultKeepAlive   = 5
	defaultTelegramAPI = "https://api.telegram.org"
	iniSection         = "main"
	defaultLogLevel    = "info"
	defaultLogFormat   = "json"
	defaultProtocol    = "ftp"
	defaultFTPPort     = 21
	defaultSFTPPort    = 22
	maxPort            = 65535
	defaultConfigFile  = "config.ini"
)

// Config is immutable for the lifetime of one run.
type Config struct {
	Protocol   string `yaml:"protocol" ini:"protocol"`
	Host       string `yaml:"host" ini:"host"`
	Port       int    `yaml:"port" ini:"port"`
	User       string `yaml:"user" ini:"user"`
	Password   string `yaml:"password" ini:"password"`
	KeyFile    string `yaml:"key_file" ini:"key_file"`
	HostKey    string `yaml:"host_key" ini:"host_key"`
	KnownHosts string `yaml:"known_hosts" ini:"known_hosts"`

	SourcePath   string `yaml:"source_path" ini:"source_path"`
	TargetPath   string `yaml:"target_path" ini:"target_path"`
	PreserveTree bool   `yaml:"preserve_tree" ini:"preserve_tree"`
	KeepRoot     bool   `yaml:"keep_root" ini:"keep_root"`

	RetryInterval  time.Duration `yaml:"retry_interval" ini:"retry_interval"`
	Timeout        time.Duration `yaml:"timeout" ini:"timeout"`
	KeepAliveEvery int           `yaml:"keepalive_every" ini:"keepalive_every"`

	Journal     string `yaml:"journal" ini:"journal"`
	LockFile    string `yaml:"lock_file" ini:"lock_file"`
	MetricsAddr string `yaml:"metrics_addr" ini:"metrics_addr"`

	LogLevel      string `yaml:"log_level" ini:"log_level"`
	LogFormat     string `yaml:"log_format" ini:"log_format"`
	DebugProtocol bool   `yaml:"debug_protocol" ini:"debug_protocol"`

	TelegramToken  string `yaml:"telegram_token" ini:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id" ini:"telegram_chat_id"`
	TelegramAPI    string `yaml:"telegram_api" ini:"telegram_api"`

	// protocolLog receives the FTP control channel when DebugProtocol is set
	protocolLog io.Writer
}

// loadConfig reads a YAML file (.yaml, .yml) or an INI file with a [main]
// section, applies defaults and validates the result.
func loadConfig(filename string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", filename)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", filename)
		}
	default:
		f, err := ini.Load(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", filename)
		}
		if !f.HasSection(iniSection) {
			return nil, errors.Errorf("config %s: missing [%s] section", filename, iniSection)
		}
		if err := f.Section(iniSection).MapTo(&cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", filename)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Protocol = strings.ToLower(strings.TrimSpace(c.Protocol))
	if c.Protocol == "" {
		c.Protocol = defaultProtocol
	}
	if c.Port == 0 {
		c.Port = defaultFTPPort
		if c.Protocol == "sftp" {
			c.Port = defaultSFTPPort
		}
	}
	if c.User == "" && c.Protocol == "ftp" {
		c.User = anonymousUser
	}
	if c.TargetPath == "" {
		c.TargetPath = defaultTargetPath
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = defaultRetry
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.KeepAliveEvery == 0 {
		c.KeepAliveEvery = defaultKeepAlive
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.TelegramAPI == "" {
		c.TelegramAPI = defaultTelegramAPI
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if getSessionFactory(c.Protocol) == nil {
		fail("unsupported protocol %q", c.Protocol)
	}
	if c.Host == "" {
		fail("'host' is required")
	}
	if c.Port < 1 || c.Port > maxPort {
		fail("'port' %d out of range", c.Port)
	}
	if c.User == "" {
		fail("'user' is required for %s", c.Protocol)
	}
	if c.SourcePath == "" {
		fail("'source_path' is required")
	}
	if c.RetryInterval < 0 {
		fail("'retry_interval' must be positive")
	}
	if c.Timeout < 0 {
		fail("'timeout' must be positive")
	}
	if c.KeepAliveEvery < 0 {
		fail("'keepalive_every' must be positive")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		fail("'telegram_token' and 'telegram_chat_id' must be set together")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		fail("'log_format' must be json or console")
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
