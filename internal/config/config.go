package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AccessConfig lists the addresses treated as local callers.
// Each entry is a literal address, a CIDR block or a regular expression.
type AccessConfig struct {
	LocalNetworks []string `yaml:"local_networks"`
}

// CategoryConfig holds the accepted category sets. The JSON API and the
// bulk text form historically accepted different sets, so they are kept apart.
type CategoryConfig struct {
	API    []string          `yaml:"api"`
	Form   []string          `yaml:"form"`
	Labels map[string]string `yaml:"labels"`
}

// SessionConfig holds configuration for the UI flash-message cookie.
type SessionConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// LLMParams are the sampling defaults applied when a request omits them.
// Temperature and TopP are pointers so an explicit 0 survives defaulting.
type LLMParams struct {
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TopP        *float64 `yaml:"top_p"`
}

// LLMConfig holds configuration for the chat-completion pass-through.
type LLMConfig struct {
	Enabled       *bool             `yaml:"enabled"`
	DefaultModel  string            `yaml:"default_model"`
	APIKeys       map[string]string `yaml:"api_keys"`
	BaseURLs      map[string]string `yaml:"base_urls"`
	DefaultParams LLMParams         `yaml:"default_params"`
	Timeout       string            `yaml:"timeout"`
}

// CrawlerConfig holds configuration for the riddle site crawler.
type CrawlerConfig struct {
	BaseURL     string  `yaml:"base_url"`
	IndexPath   string  `yaml:"index_path"`
	OutputFile  string  `yaml:"output_file"`
	VisitedFile string  `yaml:"visited_file"`
	MinDelay    float64 `yaml:"min_delay_seconds"`
	MaxDelay    float64 `yaml:"max_delay_seconds"`
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	ImportSchedule string `yaml:"import_schedule"`
}

// Config holds the configuration for the puzzlebox server.
type Config struct {
	Database   DatabaseConfig  `yaml:"database"`
	Access     AccessConfig    `yaml:"access"`
	Categories CategoryConfig  `yaml:"categories"`
	Session    SessionConfig   `yaml:"session"`
	Log        LogConfig       `yaml:"log"`
	LLM        LLMConfig       `yaml:"llm"`
	Crawler    CrawlerConfig   `yaml:"crawler"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Port       int             `yaml:"port"`
	Debug      bool            `yaml:"debug"`
}

const defaultSessionSecret = "dev-key-for-testing"

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warnings []string

	// A missing .env is normal; only the real environment is used then.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err == nil {
		if err = yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&config)
	warnings = config.SetDefaults()

	if config.Database.Type == "" || config.Database.DSN == "" {
		return nil, "", fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}

	return &config, strings.Join(warnings, "; "), nil
}

func applyEnv(config *Config) {
	if dsn := os.Getenv("PUZZLEBOX_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("PUZZLEBOX_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("PUZZLEBOX_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if debug := os.Getenv("PUZZLEBOX_DEBUG"); debug != "" {
		config.Debug = (debug == "true")
	}
	if secret := os.Getenv("PUZZLEBOX_SESSION_SECRET"); secret != "" {
		config.Session.Secret = secret
	}
	if networks := os.Getenv("PUZZLEBOX_LOCAL_NETWORKS"); networks != "" {
		config.Access.LocalNetworks = splitList(networks)
	}

	providerEnv := map[string]string{
		"deepseek":   "DEEPSEEK_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
		"qianwen":    "QIANWEN_API_KEY",
		"gemini":     "GEMINI_API_KEY",
	}
	for provider, env := range providerEnv {
		if config.LLM.APIKeys[provider] != "" {
			continue
		}
		if key := os.Getenv(env); key != "" {
			if config.LLM.APIKeys == nil {
				config.LLM.APIKeys = make(map[string]string)
			}
			config.LLM.APIKeys[provider] = key
		}
	}
}

// SetDefaults fills every unset field with its default value and returns
// warnings for defaults that are unsafe outside development.
func (config *Config) SetDefaults() []string {
	var warnings []string

	if config.Port == 0 {
		config.Port = 5000
	}
	if len(config.Access.LocalNetworks) == 0 {
		config.Access.LocalNetworks = []string{"127.0.0.1", "::1"}
	}
	if len(config.Categories.API) == 0 {
		config.Categories.API = []string{"riddle", "joke", "idiom", "brain_teaser"}
	}
	if len(config.Categories.Form) == 0 {
		config.Categories.Form = []string{"riddle", "joke", "idiom"}
	}
	if config.Categories.Labels == nil {
		config.Categories.Labels = map[string]string{}
	}
	for category, label := range map[string]string{
		"riddle":       "答案：",
		"joke":         "答案：",
		"brain_teaser": "答案：",
		"idiom":        "含义：",
	} {
		if _, ok := config.Categories.Labels[category]; !ok {
			config.Categories.Labels[category] = label
		}
	}
	if config.Session.Secret == "" {
		config.Session.Secret = defaultSessionSecret
		warnings = append(warnings, "session.secret not set, using an insecure development value")
	}
	if config.Log.MaxSizeMB == 0 {
		config.Log.MaxSizeMB = 10
	}
	if config.Log.MaxBackups == 0 {
		config.Log.MaxBackups = 5
	}

	if config.LLM.Enabled == nil {
		enabled := true
		config.LLM.Enabled = &enabled
	}
	if config.LLM.DefaultModel == "" {
		config.LLM.DefaultModel = "deepseek-chat"
	}
	if config.LLM.DefaultParams.Temperature == nil {
		temperature := 0.7
		config.LLM.DefaultParams.Temperature = &temperature
	}
	if config.LLM.DefaultParams.MaxTokens == 0 {
		config.LLM.DefaultParams.MaxTokens = 1000
	}
	if config.LLM.DefaultParams.TopP == nil {
		topP := 0.9
		config.LLM.DefaultParams.TopP = &topP
	}
	if config.LLM.Timeout == "" {
		config.LLM.Timeout = "60s"
	}

	if config.Crawler.BaseURL == "" {
		config.Crawler.BaseURL = "http://www.cmiyu.com"
	}
	if config.Crawler.IndexPath == "" {
		config.Crawler.IndexPath = "/etmy/"
	}
	if config.Crawler.OutputFile == "" {
		config.Crawler.OutputFile = "origin_data/riddle.txt"
	}
	if config.Crawler.VisitedFile == "" {
		config.Crawler.VisitedFile = "origin_data/visited.txt"
	}
	if config.Crawler.MinDelay == 0 && config.Crawler.MaxDelay == 0 {
		config.Crawler.MinDelay = 1
		config.Crawler.MaxDelay = 3
	}

	return warnings
}

// LLMEnabled reports whether the chat-completion routes are served.
func (c *Config) LLMEnabled() bool {
	return c.LLM.Enabled == nil || *c.LLM.Enabled
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
