// Package reformat turns a chunk of punctuated transcript into a cleaned,
// readable paragraph through a chat completion model.
//
// Every chunk gets up to MaxRetries attempts. Between failed attempts the
// client sleeps 2^attempt seconds (1s, 2s, 4s, ...). Every failure kind is
// retried the same way, including authentication and quota errors. When all
// attempts fail, Reformat returns an error wrapping ErrExhausted and the
// caller decides what that means for the video.
package reformat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/forPelevin/ytscribe/internal/ports"
)

const (
	DefaultMaxRetries = 5
	defaultBaseDelay  = time.Second
	maxBackoff        = time.Hour
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("reformat: retries exhausted")

// SystemPrompt is sent with every chunk.
const SystemPrompt = "You are a professional transcript editor. You transform unformatted transcripts " +
	"with bad or no punctuation into perfectly formatted, readable text. " +
	"Remove filler words such as umm and ahh, stutters, and repeated or rephrased words. " +
	"Remove incorrectly placed punctuation such as commas, semicolons or periods that break a sentence apart. " +
	"Merge unnecessarily short sentences. " +
	"Keep the text and words as close to the original as possible while staying grammatically correct. " +
	"Do not use synonyms or replace words with similar words, and do not summarize. " +
	"Return only the reformatted text: no labels, no titles, no headings, no notes, no preamble."

type Config struct {
	Model       string
	Temperature float64
	MaxRetries  int
}

type Client struct {
	cfg       Config
	completer ports.Completer
	log       *slog.Logger
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithSleeper overrides how backoff waits are performed.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBaseDelay scales the backoff schedule. The delay before retry n
// (zero-indexed) is base * 2^n.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

func New(cfg Config, completer ports.Completer, opts ...Option) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	c := &Client{
		cfg:       cfg,
		completer: completer,
		log:       slog.New(slog.DiscardHandler),
		baseDelay: defaultBaseDelay,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reformat sends chunkText to the model and returns its output verbatim.
func (c *Client) Reformat(ctx context.Context, chunkText string) (string, error) {
	req := ports.CompletionRequest{
		System:      SystemPrompt,
		User:        chunkText,
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
	}

	bo := c.newBackOff()
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := c.completer.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err

		if attempt == c.cfg.MaxRetries-1 {
			break
		}
		delay := bo.NextBackOff()
		c.log.Warn("reformat attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", c.cfg.MaxRetries),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	c.log.Error("reformat failed after max retries",
		slog.Int("attempts", c.cfg.MaxRetries),
		slog.String("error", errString(lastErr)),
	)
	return "", fmt.Errorf("%w after %d attempts: %w", ErrExhausted, c.cfg.MaxRetries, lastErr)
}

// newBackOff yields base, 2*base, 4*base, ... with no jitter.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     c.baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxBackoff,
	}
	bo.Reset()
	return bo
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
