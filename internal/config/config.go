package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/stellarlinkco/dailylog/internal/clock"
)

const (
	DefaultPrompt = "give me a log of everything we talked about yesterday. " +
		"create a simple, technical one line log of everything we spoke about " +
		"with timestamps for each topic we discussed."
	DefaultHeadingPrefix      = "####"
	DefaultOpenAIModel        = "gpt-4o-mini"
	DefaultAnthropicModel     = "claude-3-5-sonnet-latest"
	DefaultGeminiModel        = "gemini-1.5-flash"
	DefaultRunAtLocalTime     = "09:00"
	DefaultStartHeading       = "To Be Completed"
	DefaultEndHeading         = "Linked Mentions"
	DefaultFileNameFormat     = "YYYY-MM-DD"
	DefaultGroupWindowMinutes = 24 * 60
)

type Config struct {
	// Prompt sent to every configured provider on each run.
	Prompt    string          `json:"prompt"`
	Log       LogConfig       `json:"log"`
	Providers ProvidersConfig `json:"providers"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Vault     VaultConfig     `json:"vault"`
	Insertion InsertionConfig `json:"insertion"`
	Archive   ArchiveConfig   `json:"archive"`
	Notify    NotifyConfig    `json:"notify"`
}

type LogConfig struct {
	// Title overrides the prompt-derived heading when non-empty.
	Title              string `json:"title,omitempty"`
	HeadingPrefix      string `json:"headingPrefix"`
	GroupWindowMinutes int    `json:"groupWindowMinutes"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
	Gemini    ProviderConfig `json:"gemini"`
}

type ProviderConfig struct {
	APIKey string `json:"apiKey"`
	Model  string `json:"model"`
}

type ScheduleConfig struct {
	// RunAtLocalTime is "HH:mm" in TimeZone.
	RunAtLocalTime string `json:"runAtLocalTime"`
	// TimeZone is an IANA name; empty means the system zone.
	TimeZone string `json:"timeZone,omitempty"`
}

type VaultConfig struct {
	Dir            string `json:"dir"`
	DailyFolder    string `json:"dailyFolder,omitempty"`
	FileNameFormat string `json:"fileNameFormat"`
}

type InsertionConfig struct {
	StartHeading string `json:"startHeading"`
	EndHeading   string `json:"endHeading"`
}

type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chatId,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Prompt: DefaultPrompt,
		Log: LogConfig{
			HeadingPrefix:      DefaultHeadingPrefix,
			GroupWindowMinutes: DefaultGroupWindowMinutes,
		},
		Providers: ProvidersConfig{
			OpenAI:    ProviderConfig{Model: DefaultOpenAIModel},
			Anthropic: ProviderConfig{Model: DefaultAnthropicModel},
			Gemini:    ProviderConfig{Model: DefaultGeminiModel},
		},
		Schedule: ScheduleConfig{
			RunAtLocalTime: DefaultRunAtLocalTime,
		},
		Vault: VaultConfig{
			Dir:            filepath.Join(home, ".dailylog", "vault"),
			FileNameFormat: DefaultFileNameFormat,
		},
		Insertion: InsertionConfig{
			StartHeading: DefaultStartHeading,
			EndHeading:   DefaultEndHeading,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			DBPath:  filepath.Join(home, ".dailylog", "archive.db"),
		},
	}
}

// ConfigDir returns ~/.dailylog.
func ConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dailylog")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// StatePath is where the run-state map lives.
func StatePath() string {
	return filepath.Join(ConfigDir(), "state.json")
}

// LoadConfig reads the config file, merges it over defaults, and
// applies environment overrides for API keys. A missing file yields
// the defaults.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("DAILYLOG_OPENAI_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := firstEnv("DAILYLOG_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := firstEnv("DAILYLOG_GEMINI_API_KEY", "GEMINI_API_KEY"); v != "" {
		cfg.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("DAILYLOG_VAULT_DIR"); v != "" {
		cfg.Vault.Dir = v
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// SaveConfig writes the config as indented JSON, creating the config
// dir if needed.
func SaveConfig(cfg *Config) error {
	return SaveConfigTo(ConfigPath(), cfg)
}

func SaveConfigTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// ValidationError reports configuration problems found before a run.
// It always aborts the run cleanly: nothing has been queried or
// written when it is raised.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

var runAtRe = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// HasProviderKey reports whether at least one provider is configured.
func (c *Config) HasProviderKey() bool {
	return strings.TrimSpace(c.Providers.OpenAI.APIKey) != "" ||
		strings.TrimSpace(c.Providers.Anthropic.APIKey) != "" ||
		strings.TrimSpace(c.Providers.Gemini.APIKey) != ""
}

// Validate checks everything a run depends on, so per-call paths can
// assume a sane config afterwards.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Prompt) == "" {
		problems = append(problems, "prompt is empty")
	}
	if !c.HasProviderKey() {
		problems = append(problems, "no provider API key configured (OpenAI, Anthropic, or Gemini)")
	}
	if _, err := clock.LoadLocation(c.Schedule.TimeZone); err != nil {
		problems = append(problems, err.Error())
	}
	if !runAtRe.MatchString(strings.TrimSpace(c.Schedule.RunAtLocalTime)) {
		problems = append(problems, fmt.Sprintf("runAtLocalTime %q is not HH:mm", c.Schedule.RunAtLocalTime))
	}
	if strings.TrimSpace(c.Vault.Dir) == "" {
		problems = append(problems, "vault dir is empty")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
