package punctuate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/forPelevin/ytscribe/internal/ports"
)

const DefaultWindowWords = 300

const systemPrompt = "You restore punctuation and capitalization in raw speech transcripts. " +
	"Return the same words in the same order, adding only punctuation marks and fixing letter case. " +
	"Do not add, remove, translate or reorder words. Output only the text."

// LLM restores punctuation by sending fixed-size word windows to a
// completion model and concatenating the answers.
type LLM struct {
	completer   ports.Completer
	model       string
	windowWords int
	log         *slog.Logger
}

type Options struct {
	Model       string
	WindowWords int
	Logger      *slog.Logger
}

func NewLLM(completer ports.Completer, opts Options) *LLM {
	if opts.WindowWords <= 0 {
		opts.WindowWords = DefaultWindowWords
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &LLM{completer: completer, model: opts.Model, windowWords: opts.WindowWords, log: opts.Logger}
}

var _ ports.Punctuator = (*LLM)(nil)

func (p *LLM) Restore(ctx context.Context, raw string) (string, error) {
	windows := Windows(raw, p.windowWords)
	if len(windows) == 0 {
		return "", nil
	}

	out := make([]string, 0, len(windows))
	for i, w := range windows {
		res, err := p.completer.Complete(ctx, ports.CompletionRequest{
			System:      systemPrompt,
			User:        w,
			Model:       p.model,
			Temperature: 0,
		})
		if err != nil {
			return "", fmt.Errorf("punctuate window %d/%d: %w", i+1, len(windows), err)
		}
		res = strings.TrimSpace(res)
		if res == "" {
			return "", fmt.Errorf("punctuate window %d/%d: %w", i+1, len(windows), errEmptyAnswer)
		}
		out = append(out, res)
		p.log.Debug("punctuation window restored", "window", i+1, "of", len(windows))
	}
	return strings.Join(out, " "), nil
}

var errEmptyAnswer = errors.New("model returned empty text")

// Windows splits text into consecutive groups of at most n words.
func Windows(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if n <= 0 {
		n = DefaultWindowWords
	}
	out := make([]string, 0, (len(words)+n-1)/n)
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}

// Passthrough returns caption text unchanged apart from whitespace
// normalization. Use it when captions already carry punctuation.
type Passthrough struct{}

var _ ports.Punctuator = Passthrough{}

func (Passthrough) Restore(_ context.Context, raw string) (string, error) {
	return strings.Join(strings.Fields(raw), " "), nil
}
