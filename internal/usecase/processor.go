package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forPelevin/ytscribe/internal/domain/chunks"
	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/types"
)

// ProcessVideo runs one video through fetch, punctuation, segmentation,
// chunking and per-chunk reformatting. A returned error means the video
// ended in StateFailed and was not marked done.
func (u Usecase) ProcessVideo(ctx context.Context, channelKey string, v types.Video) (types.Outcome, error) {
	return u.processVideo(ctx, channelKey, "", position{i: 1, n: 1}, v)
}

// position is the 1-based place of a video in the current run.
type position struct{ i, n int }

func (u Usecase) processVideo(ctx context.Context, channelKey, runID string, pos position, v types.Video) (types.Outcome, error) {
	start := time.Now()
	out := types.Outcome{Video: v, State: types.StatePending}
	log := u.d.Log.With(slog.String("video", v.ID))

	fail := func(err error) (types.Outcome, error) {
		out.State = types.StateFailed
		out.Err = err
		out.Elapsed = time.Since(start)
		u.record(ctx, channelKey, runID, out)
		log.Error("video failed", slog.String("title", v.Title), slog.String("error", err.Error()))
		return out, err
	}

	name, err := u.d.Store.FileName(v)
	if err != nil {
		return fail(fmt.Errorf("file name: %w", err))
	}
	out.FileName = name

	exists, err := u.d.Store.Exists(channelKey, v)
	if err != nil {
		return fail(fmt.Errorf("check existing: %w", err))
	}
	if exists {
		out.State = types.StateSkipped
		out.Elapsed = time.Since(start)
		log.Info(fmt.Sprintf("Skipping %s as it already exists.", v.Title))
		return out, nil
	}
	log.Info(fmt.Sprintf("Processing video (%d/%d): %s", pos.i, pos.n, v.Title))

	out.State = types.StateFetching
	tr, err := withTimeout(ctx, "fetch transcript", u.d.FetchTimeout, func(ctx context.Context) (types.Transcript, error) {
		return u.d.Transcripts.Fetch(ctx, v.ID)
	})
	if errors.Is(err, ports.ErrTranscriptUnavailable) {
		out.State = types.StateNoTranscript
		out.Elapsed = time.Since(start)
		u.record(ctx, channelKey, runID, out)
		log.Warn(fmt.Sprintf("Transcripts are disabled for video %s. Skipping...", v.ID), slog.String("reason", err.Error()))
		return out, nil
	}
	if err != nil {
		return fail(fmt.Errorf("fetch transcript: %w", err))
	}
	log.Debug("transcript retrieved", slog.Int("fragments", len(tr.Fragments)), slog.String("language", tr.Language))

	out.State = types.StatePunctuating
	text := tr.Text()
	if text != "" {
		text, err = withTimeout(ctx, "restore punctuation", u.d.PunctuateTimeout, func(ctx context.Context) (string, error) {
			return u.d.Punctuator.Restore(ctx, text)
		})
		if err != nil {
			return fail(fmt.Errorf("restore punctuation: %w", err))
		}
	}

	out.State = types.StateSegmenting
	sentences := u.d.Segmenter.Segment(text)

	out.State = types.StateChunking
	cs := chunks.Build(sentences, u.d.ChunkSize)
	out.Chunks = len(cs)
	log.Debug("chunks built", slog.Int("sentences", len(sentences)), slog.Int("chunks", len(cs)))

	doc, err := u.d.Store.Create(channelKey, v)
	if err != nil {
		return fail(fmt.Errorf("create document: %w", err))
	}
	defer doc.Close()

	out.State = types.StateReformatting
	u.record(ctx, channelKey, runID, out)
	for i, c := range cs {
		res, err := u.d.Reformatter.Reformat(ctx, c.Text)
		if err != nil {
			return fail(fmt.Errorf("reformat chunk %d/%d: %w", i+1, len(cs), err))
		}
		if err := doc.Append(res); err != nil {
			return fail(err)
		}
		out.ChunksDone = doc.Written()
		u.record(ctx, channelKey, runID, out)
		log.Info(fmt.Sprintf("Progress: %d/%d", i+1, len(cs)))
	}

	if err := doc.Commit(); err != nil {
		return fail(err)
	}
	out.State = types.StateWritten
	out.Elapsed = time.Since(start)
	u.record(ctx, channelKey, runID, out)
	log.Info(fmt.Sprintf("Wrote transcript to file: %s", doc.Path()))
	return out, nil
}
