package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/forPelevin/ytscribe/internal/config"
	"github.com/forPelevin/ytscribe/internal/domain/docname"
	"github.com/forPelevin/ytscribe/internal/domain/sentences"
	"github.com/forPelevin/ytscribe/internal/output"
	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/ports/adapters/ledger"
	"github.com/forPelevin/ytscribe/internal/ports/adapters/openai"
	"github.com/forPelevin/ytscribe/internal/ports/adapters/punctuate"
	"github.com/forPelevin/ytscribe/internal/ports/adapters/youtube"
	"github.com/forPelevin/ytscribe/internal/reformat"
	"github.com/forPelevin/ytscribe/internal/types"
	"github.com/forPelevin/ytscribe/internal/usecase"
)

// VideosKey is the output directory used for videos given by id.
const VideosKey = "videos"

type Config struct {
	Settings config.Config
	Log      *slog.Logger

	// HTTPClient is shared by the YouTube and model adapters. Nil uses a
	// default client.
	HTTPClient *http.Client
}

func (c Config) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if err := c.Settings.RequireAPIKey(); err != nil {
		return err
	}
	return openai.ValidateBaseURL(c.Settings.LLM.BaseURL, c.Settings.LLM.AllowedHosts)
}

type ChannelInput struct {
	Channel  string
	Content  types.ContentType
	Sort     types.SortOrder
	FailFast bool
}

// RunChannel transcribes every video of a channel into
// <output_dir>/<channel key>/.
func RunChannel(ctx context.Context, cfg Config, in ChannelInput) (types.RunReport, error) {
	if strings.TrimSpace(in.Channel) == "" {
		return types.RunReport{}, errors.New("channel is empty")
	}
	if !in.Content.Valid() {
		return types.RunReport{}, fmt.Errorf("unknown content type %q", in.Content)
	}
	if !in.Sort.Valid() {
		return types.RunReport{}, fmt.Errorf("unknown sort order %q", in.Sort)
	}

	w, err := wire(ctx, cfg)
	if err != nil {
		return types.RunReport{}, err
	}
	defer w.close()

	w.log.Info("processing channel",
		slog.String("channel", in.Channel),
		slog.String("content", string(in.Content)),
		slog.String("sort", string(in.Sort)),
		slog.String("dir", w.store.Dir(docname.ChannelKey(in.Channel))),
	)
	return w.uc.ProcessChannel(ctx, usecase.ChannelInput{
		Channel:  in.Channel,
		Content:  in.Content,
		Sort:     in.Sort,
		FailFast: in.FailFast,
	})
}

// RunVideos transcribes explicit video ids into <output_dir>/videos/.
// Titles come from each watch page; the id stands in when none is found.
func RunVideos(ctx context.Context, cfg Config, ids []string, failFast bool) (types.RunReport, error) {
	if len(ids) == 0 {
		return types.RunReport{}, errors.New("no video ids given")
	}

	w, err := wire(ctx, cfg)
	if err != nil {
		return types.RunReport{}, err
	}
	defer w.close()

	videos := make([]types.Video, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		title, err := w.yt.ResolveTitle(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return types.RunReport{Channel: VideosKey}, ctx.Err()
			}
			w.log.Warn("title lookup failed, using id", slog.String("video", id), slog.String("error", err.Error()))
			title = id
		}
		videos = append(videos, types.Video{ID: id, Title: title})
	}
	return w.uc.ProcessVideos(ctx, VideosKey, videos, failFast)
}

type wiring struct {
	uc     usecase.Usecase
	yt     *youtube.Client
	store  output.Store
	ledger *ledger.Ledger
	log    *slog.Logger
}

func (w *wiring) close() {
	if w.ledger != nil {
		if err := w.ledger.Close(); err != nil {
			w.log.Warn("close ledger", slog.String("error", err.Error()))
		}
	}
}

func wire(ctx context.Context, cfg Config) (*wiring, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	s := cfg.Settings
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	// adapters
	yt := youtube.New(youtube.Options{
		BaseURL:           s.YouTube.BaseURL,
		HTTPClient:        cfg.HTTPClient,
		RequestsPerSecond: s.YouTube.RequestsPerSecond,
		Languages:         s.Pipeline.Languages,
		Logger:            log,
	})
	llm := openai.New(s.LLM.APIKey, s.LLM.BaseURL,
		openai.WithTimeout(s.LLM.Timeout()),
		openai.WithHTTPClient(cfg.HTTPClient),
	)

	var punct ports.Punctuator = punctuate.Passthrough{}
	if s.Pipeline.Punctuation == config.PunctuationLLM {
		punct = punctuate.NewLLM(llm, punctuate.Options{
			Model:       s.LLM.Model,
			WindowWords: s.Pipeline.PunctuationWindowWords,
			Logger:      log,
		})
	}

	var seg ports.Segmenter = sentences.New()
	if s.Pipeline.Segmenter == config.SegmenterPunkt {
		pk, err := sentences.NewPunkt()
		if err != nil {
			return nil, err
		}
		seg = pk
	}

	rf := reformat.New(reformat.Config{
		Model:       s.LLM.Model,
		Temperature: s.LLM.Temperature,
		MaxRetries:  s.LLM.MaxRetries,
	}, llm, reformat.WithLogger(log))

	store := output.NewStore(s.Pipeline.OutputDir, docname.Naming(s.Pipeline.Naming))

	w := &wiring{yt: yt, store: store, log: log}
	deps := usecase.Deps{
		Lister:           yt,
		Transcripts:      yt,
		Punctuator:       punct,
		Segmenter:        seg,
		Reformatter:      rf,
		Store:            store,
		Log:              log,
		ChunkSize:        s.Pipeline.ChunkSize,
		FetchTimeout:     s.Pipeline.FetchTimeout(),
		PunctuateTimeout: s.Pipeline.PunctuateTimeout(),
	}

	led, err := ledger.Open(ctx, filepath.Join(store.Root(), ledger.FileName))
	if err != nil {
		log.Warn("run ledger unavailable, continuing without it", slog.String("error", err.Error()))
	} else {
		w.ledger = led
		deps.Ledger = led
	}

	w.uc = usecase.New(deps)
	return w, nil
}

// ensure adapters implement ports
var (
	_ ports.VideoLister      = (*youtube.Client)(nil)
	_ ports.TranscriptSource = (*youtube.Client)(nil)
	_ ports.TitleResolver    = (*youtube.Client)(nil)
	_ ports.Completer        = (*openai.Adapter)(nil)
	_ ports.Punctuator       = (*punctuate.LLM)(nil)
	_ ports.Segmenter        = sentences.Segmenter{}
	_ ports.Segmenter        = (*sentences.Punkt)(nil)
	_ ports.Reformatter      = (*reformat.Client)(nil)
	_ ports.Ledger           = (*ledger.Ledger)(nil)
)
