package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Режимы выбора каталога.
const (
	PickerTerminal = "terminal"
	PickerFixed    = "fixed"
	PickerDisabled = "disabled"
)

// WebToken описывает bearer-токен HTTP-транспорта.
type WebToken struct {
	ID          string `yaml:"id"`
	TokenSHA256 string `yaml:"token_sha256"`
	Subject     string `yaml:"subject"`
	Enabled     bool   `yaml:"enabled"`
}

// Config описывает параметры агента deskfs.
type Config struct {
	Agent struct {
		LogLevel string `yaml:"log_level"`
	} `yaml:"agent"`
	Picker struct {
		Mode       string `yaml:"mode"`
		DefaultDir string `yaml:"default_dir"`
	} `yaml:"picker"`
	Security struct {
		AuthAllowlist map[string][]string `yaml:"auth_allowlist"`
		RatePerSecond float64             `yaml:"rate_per_second"`
		RateBurst     int                 `yaml:"rate_burst"`
	} `yaml:"security"`
	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"scheduler"`
	IPC struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"ipc"`
	Web struct {
		Enabled          bool       `yaml:"enabled"`
		ListenAddr       string     `yaml:"listen_addr"`
		ReadTimeoutMS    int        `yaml:"read_timeout_ms"`
		WriteTimeoutMS   int        `yaml:"write_timeout_ms"`
		RequestTimeoutMS int        `yaml:"request_timeout_ms"`
		ShutdownTimeoutS int        `yaml:"shutdown_timeout_s"`
		MaxBodyBytes     int64      `yaml:"max_body_bytes"`
		AllowedOrigins   []string   `yaml:"allowed_origins"`
		Tokens           []WebToken `yaml:"tokens"`
	} `yaml:"web"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	var cfg Config
	cfg.Agent.LogLevel = "info"
	cfg.Picker.Mode = PickerTerminal
	cfg.Security.AuthAllowlist = map[string][]string{"web": {}}
	cfg.Security.RatePerSecond = 50
	cfg.Security.RateBurst = 100
	cfg.Audit.Enabled = true
	cfg.Audit.Path = defaultAuditPath()
	cfg.Audit.RetentionDays = 30
	cfg.Scheduler.IntervalSeconds = 3600
	cfg.IPC.Enabled = true
	cfg.Web.Enabled = false
	cfg.Web.ListenAddr = "127.0.0.1:7420"
	cfg.Web.ReadTimeoutMS = 5000
	cfg.Web.WriteTimeoutMS = 30000
	cfg.Web.RequestTimeoutMS = 0
	cfg.Web.ShutdownTimeoutS = 5
	cfg.Web.MaxBodyBytes = 64 << 20
	cfg.Web.AllowedOrigins = []string{"tauri://localhost", "http://localhost:1420"}
	return cfg
}

func defaultAuditPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "deskfs", "audit.db")
	}
	return filepath.Join(dir, "deskfs", "audit.db")
}

// Load читает конфиг из файла YAML поверх значений по умолчанию.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- путь к конфигу задает пользователь.
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("config file is empty")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c Config) Validate() error {
	switch c.Picker.Mode {
	case PickerTerminal, PickerDisabled:
	case PickerFixed:
		if c.Picker.DefaultDir == "" {
			return fmt.Errorf("picker.default_dir is required for mode %q", PickerFixed)
		}
	default:
		return fmt.Errorf("unknown picker.mode %q", c.Picker.Mode)
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return errors.New("audit.path is required when audit is enabled")
	}
	if c.Web.Enabled && c.Web.ListenAddr == "" {
		return errors.New("web.listen_addr is required when web is enabled")
	}
	return nil
}
