// Package config loads taskplan settings from ~/.config/taskplan/config.yaml,
// TASKPLAN_* environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	xdgAppName = "taskplan"
	configFile = "config.yaml"
	envPrefix  = "TASKPLAN"
)

type Config struct {
	Calendar    string `yaml:"calendar" mapstructure:"calendar"`
	Database    string `yaml:"database" mapstructure:"database"`
	Credentials string `yaml:"credentials" mapstructure:"credentials"`
	Token       string `yaml:"token" mapstructure:"token"`
	// Recipient receives notifications. Sender is the From address and the
	// user a service account acts for.
	Recipient string `yaml:"recipient" mapstructure:"recipient"`
	Sender    string `yaml:"sender" mapstructure:"sender"`

	Sheet     SheetConfig     `yaml:"sheet" mapstructure:"sheet"`
	Ollama    OllamaConfig    `yaml:"ollama" mapstructure:"ollama"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
}

type SheetConfig struct {
	ID    string `yaml:"id" mapstructure:"id"`
	Range string `yaml:"range" mapstructure:"range"`
}

type OllamaConfig struct {
	Host  string `yaml:"host" mapstructure:"host"`
	Model string `yaml:"model" mapstructure:"model"`
}

type SchedulerConfig struct {
	// Strict rejects proposals that overlap existing entries.
	Strict              bool          `yaml:"strict" mapstructure:"strict"`
	PlanLimit           int           `yaml:"plan_limit" mapstructure:"plan_limit"`
	CommitmentLimit     int           `yaml:"commitment_limit" mapstructure:"commitment_limit"`
	Horizon             time.Duration `yaml:"horizon" mapstructure:"horizon"`
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout" mapstructure:"collaborator_timeout"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	DailyAt      string        `yaml:"daily_at" mapstructure:"daily_at"`
	EveningAt    string        `yaml:"evening_at" mapstructure:"evening_at"`
	OverdueEvery time.Duration `yaml:"overdue_every" mapstructure:"overdue_every"`
	CheckTimeout time.Duration `yaml:"check_timeout" mapstructure:"check_timeout"`
}

// Dir returns the taskplan configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Default returns the built-in settings. File paths live in dir.
func Default(dir string) *Config {
	return &Config{
		Calendar:    "Tasks",
		Database:    filepath.Join(dir, "taskplan.db"),
		Credentials: filepath.Join(dir, "credentials.json"),
		Token:       filepath.Join(dir, "token.json"),
		Sheet:       SheetConfig{Range: "Tasks!A1:F"},
		Ollama:      OllamaConfig{Host: "http://localhost:11434", Model: "llama3.2"},
		Scheduler: SchedulerConfig{
			PlanLimit:           5,
			CommitmentLimit:     10,
			Horizon:             7 * 24 * time.Hour,
			CollaboratorTimeout: 2 * time.Minute,
		},
		Monitor: MonitorConfig{
			PollInterval: time.Minute,
			DailyAt:      "09:00",
			EveningAt:    "18:00",
			OverdueEvery: 30 * time.Minute,
			CheckTimeout: 30 * time.Second,
		},
	}
}

// LoadDotEnv loads environment variables from the given .env files, or from
// ./.env when none are given. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields the defaults. Environment variables such as
// TASKPLAN_SCHEDULER_STRICT override file values.
func Load(path string) (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = filepath.Join(dir, configFile)
	}
	cfg := Default(dir)

	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Database = expandHome(cfg.Database)
	cfg.Credentials = expandHome(cfg.Credentials)
	cfg.Token = expandHome(cfg.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path, or to the default location when path is empty.
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if _, _, err := ParseClock(c.Monitor.DailyAt); err != nil {
		return fmt.Errorf("monitor.daily_at: %w", err)
	}
	if _, _, err := ParseClock(c.Monitor.EveningAt); err != nil {
		return fmt.Errorf("monitor.evening_at: %w", err)
	}
	durations := map[string]time.Duration{
		"monitor.poll_interval":          c.Monitor.PollInterval,
		"monitor.overdue_every":          c.Monitor.OverdueEvery,
		"monitor.check_timeout":          c.Monitor.CheckTimeout,
		"scheduler.horizon":              c.Scheduler.Horizon,
		"scheduler.collaborator_timeout": c.Scheduler.CollaboratorTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Scheduler.PlanLimit <= 0 {
		return fmt.Errorf("scheduler.plan_limit must be positive")
	}
	return nil
}

// ParseClock parses a wall-clock time written as HH:MM.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("calendar", cfg.Calendar)
	v.SetDefault("database", cfg.Database)
	v.SetDefault("credentials", cfg.Credentials)
	v.SetDefault("token", cfg.Token)
	v.SetDefault("recipient", cfg.Recipient)
	v.SetDefault("sender", cfg.Sender)
	v.SetDefault("sheet.id", cfg.Sheet.ID)
	v.SetDefault("sheet.range", cfg.Sheet.Range)
	v.SetDefault("ollama.host", cfg.Ollama.Host)
	v.SetDefault("ollama.model", cfg.Ollama.Model)
	v.SetDefault("scheduler.strict", cfg.Scheduler.Strict)
	v.SetDefault("scheduler.plan_limit", cfg.Scheduler.PlanLimit)
	v.SetDefault("scheduler.commitment_limit", cfg.Scheduler.CommitmentLimit)
	v.SetDefault("scheduler.horizon", cfg.Scheduler.Horizon)
	v.SetDefault("scheduler.collaborator_timeout", cfg.Scheduler.CollaboratorTimeout)
	v.SetDefault("monitor.poll_interval", cfg.Monitor.PollInterval)
	v.SetDefault("monitor.daily_at", cfg.Monitor.DailyAt)
	v.SetDefault("monitor.evening_at", cfg.Monitor.EveningAt)
	v.SetDefault("monitor.overdue_every", cfg.Monitor.OverdueEvery)
	v.SetDefault("monitor.check_timeout", cfg.Monitor.CheckTimeout)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
