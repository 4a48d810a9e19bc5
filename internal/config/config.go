// Package config loads ytscribe settings from an optional TOML file and the
// environment. Values are resolved once at startup and passed down
// explicitly; nothing here is read again after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "YTSCRIBE_CONFIG"

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "ytscribe.toml"

type Config struct {
	LLM      LLM      `toml:"llm"`
	Pipeline Pipeline `toml:"pipeline"`
	YouTube  YouTube  `toml:"youtube"`
	Logging  Logging  `toml:"logging"`
}

type LLM struct {
	Model          string   `toml:"model"`
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Temperature    float64  `toml:"temperature"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxRetries     int      `toml:"max_retries"`
	AllowedHosts   []string `toml:"allowed_hosts"`
}

type Pipeline struct {
	OutputDir               string   `toml:"output_dir"`
	ChunkSize               int      `toml:"chunk_size"`
	Naming                  string   `toml:"naming"`
	Punctuation             string   `toml:"punctuation"`
	PunctuationWindowWords  int      `toml:"punctuation_window_words"`
	Segmenter               string   `toml:"segmenter"`
	FetchTimeoutSeconds     int      `toml:"fetch_timeout_seconds"`
	PunctuateTimeoutSeconds int      `toml:"punctuate_timeout_seconds"`
	Languages               []string `toml:"languages"`
}

type YouTube struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

const (
	PunctuationLLM  = "llm"
	PunctuationNone = "none"
)

const (
	SegmenterRules = "rules"
	SegmenterPunkt = "punkt"
)

func Default() Config {
	return Config{
		LLM: LLM{
			Model:          "gpt-3.5-turbo-1106",
			BaseURL:        "https://api.openai.com/v1",
			Temperature:    0,
			TimeoutSeconds: 90,
			MaxRetries:     5,
		},
		Pipeline: Pipeline{
			OutputDir:               "transcripts",
			ChunkSize:               10,
			Naming:                  "id",
			Punctuation:             PunctuationLLM,
			PunctuationWindowWords:  300,
			Segmenter:               SegmenterRules,
			FetchTimeoutSeconds:     60,
			PunctuateTimeoutSeconds: 600,
			Languages:               []string{"en"},
		},
		YouTube: YouTube{
			BaseURL:           "https://www.youtube.com",
			RequestsPerSecond: 1,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load resolves the config file (explicit path, then $YTSCRIBE_CONFIG, then
// ./ytscribe.toml), decodes it over the defaults and applies environment
// overrides. A missing file is not an error. It returns the resolved path
// and whether the file existed.
func Load(path string) (Config, string, bool, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, string, bool, error) {
	cfg := Default()

	resolved, explicit := resolvePath(path, lookup)
	exists := false
	if resolved != "" {
		b, err := os.ReadFile(resolved)
		switch {
		case err == nil:
			exists = true
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return Config{}, resolved, true, fmt.Errorf("parse config %s: %w", resolved, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case errors.Is(err, fs.ErrNotExist):
			return Config{}, resolved, false, fmt.Errorf("config file %s not found", resolved)
		default:
			return Config{}, resolved, false, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.applyEnv(lookup)
	cfg.normalize()
	return cfg, resolved, exists, nil
}

func resolvePath(path string, lookup func(string) (string, bool)) (string, bool) {
	if p := strings.TrimSpace(path); p != "" {
		return p, true
	}
	if p, ok := lookup(EnvConfigPath); ok && strings.TrimSpace(p) != "" {
		return strings.TrimSpace(p), true
	}
	abs, err := filepath.Abs(DefaultFileName)
	if err != nil {
		return DefaultFileName, false
	}
	return abs, false
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("LLM_MODEL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.Model = strings.TrimSpace(v)
	}
	if v, ok := lookup("API_KEY"); ok && strings.TrimSpace(v) != "" {
		c.LLM.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("BASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.LLM.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("LLM_ALLOWED_HOSTS"); ok && strings.TrimSpace(v) != "" {
		c.LLM.AllowedHosts = splitList(v)
	}
	if v, ok := lookup("YTSCRIBE_LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		c.Logging.Level = strings.TrimSpace(v)
	}
}

func (c *Config) normalize() {
	c.Pipeline.Naming = strings.ToLower(strings.TrimSpace(c.Pipeline.Naming))
	c.Pipeline.Punctuation = strings.ToLower(strings.TrimSpace(c.Pipeline.Punctuation))
	c.Pipeline.Segmenter = strings.ToLower(strings.TrimSpace(c.Pipeline.Segmenter))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	if len(c.Pipeline.Languages) == 0 {
		c.Pipeline.Languages = []string{"en"}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p Pipeline) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSeconds) * time.Second
}

func (p Pipeline) PunctuateTimeout() time.Duration {
	return time.Duration(p.PunctuateTimeoutSeconds) * time.Second
}

func (l LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}
