package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ImagePath string
	BaseURL   string
	Token     string
	Transport string // stage | embedded | stream | openai
	Model     string
	APIKey    string

	OutPath   string
	Pretty    bool
	Overwrite bool

	DailyLimit int
	QuotaDB    string
	Premium    bool

	Concurrent     bool
	TimeoutSeconds int

	ConfigFile string
}

var transports = map[string]bool{
	"stage":    true,
	"embedded": true,
	"stream":   true,
	"openai":   true,
}

func (c Config) Validate() error {
	if c.ImagePath == "" {
		return errors.New("missing -image")
	}
	if !transports[c.Transport] {
		return fmt.Errorf("unknown -transport %q (want stage, embedded, stream, or openai)", c.Transport)
	}
	if c.Transport == "openai" {
		if c.Model == "" {
			return errors.New("missing -model")
		}
	} else if c.BaseURL == "" {
		return errors.New("missing -base-url")
	}
	if c.DailyLimit <= 0 {
		return errors.New("daily-limit must be > 0")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Transport:      "embedded",
		Model:          "gpt-5-mini",
		DailyLimit:     3,
		QuotaDB:        "catmood_usage.db",
		TimeoutSeconds: 60,
	}
}

// fileConfig is the optional YAML config file; flags override its values.
type fileConfig struct {
	BaseURL    string `yaml:"base_url"`
	Token      string `yaml:"token"`
	Transport  string `yaml:"transport"`
	Model      string `yaml:"model"`
	DailyLimit int    `yaml:"daily_limit"`
	QuotaDB    string `yaml:"quota_db"`
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	// The config file is resolved before flag registration so file values
	// become the flag defaults and explicit flags still win.
	if path := configFileArg(args); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
	}

	fs.StringVar(&cfg.ImagePath, "image", cfg.ImagePath, "Path to the cat photo (jpeg or png)")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Analysis backend base URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Bearer token for the backend (overrides CATMOOD_TOKEN env var)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "Backend contract: stage, embedded, stream, or openai")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Vision model for -transport openai")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "OpenAI API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Optional path to write the final report JSON")
	fs.BoolVar(&cfg.Pretty, "pretty", cfg.Pretty, "Pretty-print the report JSON")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "Overwrite an existing report file")
	fs.IntVar(&cfg.DailyLimit, "daily-limit", cfg.DailyLimit, "Free analyses per calendar day")
	fs.StringVar(&cfg.QuotaDB, "quota-db", cfg.QuotaDB, "SQLite file for quota counters (empty = in-memory, no persistence)")
	fs.BoolVar(&cfg.Premium, "premium", cfg.Premium, "Skip quota accounting entirely")
	fs.BoolVar(&cfg.Concurrent, "concurrent", cfg.Concurrent, "Run detail stages concurrently (summary-only context)")
	fs.IntVar(&cfg.TimeoutSeconds, "timeout", cfg.TimeoutSeconds, "Per-request timeout in seconds")
	fs.String("config", cfg.ConfigFile, "Optional YAML config file (base_url, token, transport, model, daily_limit, quota_db)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.ImagePath = filepath.Clean(cfg.ImagePath)
	if cfg.OutPath != "" {
		cfg.OutPath = filepath.Clean(cfg.OutPath)
	}
	return cfg, nil
}

func configFileArg(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-config="):
			return strings.TrimPrefix(arg, "-config=")
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func applyConfigFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read -config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse -config: %w", err)
	}
	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.Transport != "" {
		cfg.Transport = fc.Transport
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.DailyLimit > 0 {
		cfg.DailyLimit = fc.DailyLimit
	}
	if fc.QuotaDB != "" {
		cfg.QuotaDB = fc.QuotaDB
	}
	return nil
}
