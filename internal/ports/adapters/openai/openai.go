package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/ytscribe/internal/ports"
)

const (
	DefaultModel          = "gpt-3.5-turbo-1106"
	defaultRequestTimeout = 90 * time.Second
)

// StatusError is a non-2xx answer from the completions endpoint. Body is
// already redacted and truncated.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai status %d: %s", e.StatusCode, e.Body)
}

type Adapter struct {
	key     string
	baseURL string
	timeout time.Duration
	client  *http.Client
}

type Option func(*Adapter)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		if c != nil {
			a.client = c
		}
	}
}

// WithTimeout bounds every completion request. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func New(apiKey, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		key:     apiKey,
		baseURL: normalizeBaseURL(baseURL),
		timeout: defaultRequestTimeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ ports.Completer = (*Adapter)(nil)

func (a *Adapter) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	messages := make([]map[string]string, 0, 2)
	if req.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.User})

	body, err := json.Marshal(map[string]any{
		"model":       model,
		"stream":      false,
		"temperature": req.Temperature,
		"messages":    messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.key)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", ports.Timeout(fmt.Sprintf("openai completion (model=%s)", model), a.timeout, err)
		}
		return "", fmt.Errorf("openai request: %s", redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return "", &StatusError{StatusCode: resp.StatusCode, Body: "read body failed: " + readErr.Error()}
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(redactSecrets(string(rb), a.key), 400)}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", ports.Timeout("openai response", a.timeout, err)
		}
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openai: response has no choices")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openai: empty content")
		}
		return s, nil
	case nil:
		return "", errors.New("openai: empty content")
	default:
		return "", fmt.Errorf("openai: unexpected content type %T", v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
	skKeyRE       = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = skKeyRE.ReplaceAllString(out, "[REDACTED]")
	return out
}
