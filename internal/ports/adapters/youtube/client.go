// Package youtube scrapes public YouTube pages and the Innertube web API for
// channel listings, caption tracks and video titles. No API key is needed.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://www.youtube.com"

	webClientVersion = "2.20250222.10.00"
	userAgent        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	maxPageBytes = 6 << 20
	maxAPIBytes  = 3 << 20
)

type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	// Languages is the caption language preference, most preferred first.
	Languages []string
	Logger    *slog.Logger
}

// Client implements ports.VideoLister, ports.TranscriptSource and
// ports.TitleResolver. All requests share one rate limiter.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	langs   []string
	log     *slog.Logger
}

func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	langs := opts.Languages
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: base,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
		langs:   langs,
		log:     log,
	}
}

// resolve turns a site-relative path into an absolute URL on the configured
// host. Absolute URLs pass through.
func (c *Client) resolve(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	if !strings.HasPrefix(pathOrURL, "/") {
		pathOrURL = "/" + pathOrURL
	}
	return c.baseURL + pathOrURL
}

func (c *Client) do(req *http.Request, limit int64) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func (c *Client) getPage(ctx context.Context, pathOrURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(pathOrURL), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	// Skips the EU consent interstitial.
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "YES+cb"})
	return c.do(req, maxPageBytes)
}

// postInnertube POSTs a WEB client payload to /youtubei/v1/<endpoint>.
func (c *Client) postInnertube(ctx context.Context, endpoint string, cfg pageConfig, payload map[string]any) ([]byte, error) {
	payload["context"] = webContext(cfg)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	u := c.resolve("/youtubei/v1/" + endpoint + "?prettyPrint=false")
	if cfg.APIKey != "" {
		u += "&key=" + cfg.APIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Youtube-Client-Name", "1")
	req.Header.Set("X-Youtube-Client-Version", cfg.ClientVersion)
	req.Header.Set("X-Goog-Visitor-Id", cfg.VisitorData)
	req.Header.Set("Origin", "https://www.youtube.com")
	req.Header.Set("Referer", "https://www.youtube.com/")

	out, err := c.do(req, maxAPIBytes)
	if err != nil {
		return nil, fmt.Errorf("innertube %s: %w", endpoint, err)
	}
	return out, nil
}

// pageConfig carries the Innertube settings a page was rendered with.
type pageConfig struct {
	APIKey        string
	ClientVersion string
	VisitorData   string
}

var (
	apiKeyRE        = regexp.MustCompile(`"INNERTUBE_API_KEY"\s*:\s*"([^"]+)"`)
	clientVersionRE = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION"\s*:\s*"([^"]+)"`)
	visitorDataRE   = regexp.MustCompile(`"VISITOR_DATA"\s*:\s*"([^"]+)"`)
)

func readPageConfig(page []byte) pageConfig {
	cfg := pageConfig{ClientVersion: webClientVersion}
	if m := apiKeyRE.FindSubmatch(page); m != nil {
		cfg.APIKey = string(m[1])
	}
	if m := clientVersionRE.FindSubmatch(page); m != nil {
		cfg.ClientVersion = string(m[1])
	}
	if m := visitorDataRE.FindSubmatch(page); m != nil {
		cfg.VisitorData = string(m[1])
	} else {
		cfg.VisitorData = generateVisitorData()
	}
	return cfg
}

func webContext(cfg pageConfig) map[string]any {
	return map[string]any{
		"client": map[string]any{
			"clientName":    "WEB",
			"clientVersion": cfg.ClientVersion,
			"visitorData":   cfg.VisitorData,
			"hl":            "en",
			"gl":            "US",
		},
		"user":    map[string]any{"enableSafetyMode": false},
		"request": map[string]any{"useSsl": true},
	}
}

// generateVisitorData creates a random 11-char visitor id.
func generateVisitorData() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec // non-cryptographic use
	}
	return string(b)
}

// initialJSON returns the object literal assigned to the named page
// variable (ytInitialData, ytInitialPlayerResponse), or nil.
func initialJSON(page []byte, name string) []byte {
	rest := page
	for {
		idx := bytes.Index(rest, []byte(name))
		if idx < 0 {
			return nil
		}
		rest = rest[idx+len(name):]
		// Expect `= {`, `"] = {` or similar within a few bytes.
		head := rest
		if len(head) > 16 {
			head = head[:16]
		}
		brace := bytes.IndexByte(head, '{')
		if brace < 0 || !bytes.Contains(head[:brace], []byte("=")) {
			continue
		}
		if obj := extractJSON(rest[brace:]); obj != nil {
			return obj
		}
	}
}

// extractJSON returns the balanced {...} object at the start of b.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
