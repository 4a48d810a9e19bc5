package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate returns the first setting that cannot be used.
func (c Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateYouTube(); err != nil {
		return err
	}
	return c.validateLogging()
}

// RequireAPIKey fails when no model credentials are configured.
func (c Config) RequireAPIKey() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("API_KEY is required (set it in .env, the environment or [llm].api_key)")
	}
	return nil
}

func (c Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm.timeout_seconds must be >= 0")
	}
	if c.LLM.MaxRetries < 1 {
		return errors.New("llm.max_retries must be >= 1")
	}
	return nil
}

func (c Config) validatePipeline() error {
	p := c.Pipeline
	if strings.TrimSpace(p.OutputDir) == "" {
		return errors.New("pipeline.output_dir must be set")
	}
	if p.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be > 0, got %d", p.ChunkSize)
	}
	switch p.Naming {
	case "id", "title":
	default:
		return fmt.Errorf("pipeline.naming must be id or title, got %q", p.Naming)
	}
	switch p.Punctuation {
	case PunctuationLLM, PunctuationNone:
	default:
		return fmt.Errorf("pipeline.punctuation must be llm or none, got %q", p.Punctuation)
	}
	switch p.Segmenter {
	case SegmenterRules, SegmenterPunkt:
	default:
		return fmt.Errorf("pipeline.segmenter must be rules or punkt, got %q", p.Segmenter)
	}
	if p.PunctuationWindowWords <= 0 {
		return errors.New("pipeline.punctuation_window_words must be > 0")
	}
	if p.FetchTimeoutSeconds < 0 || p.PunctuateTimeoutSeconds < 0 {
		return errors.New("pipeline timeouts must be >= 0")
	}
	return nil
}

func (c Config) validateYouTube() error {
	if c.YouTube.RequestsPerSecond < 0 {
		return errors.New("youtube.requests_per_second must be >= 0")
	}
	if !strings.HasPrefix(c.YouTube.BaseURL, "http://") && !strings.HasPrefix(c.YouTube.BaseURL, "https://") {
		return fmt.Errorf("youtube.base_url must be an http(s) URL, got %q", c.YouTube.BaseURL)
	}
	return nil
}

func (c Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
