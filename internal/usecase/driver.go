package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forPelevin/ytscribe/internal/domain/docname"
	"github.com/forPelevin/ytscribe/internal/types"
)

type ChannelInput struct {
	Channel  string
	Content  types.ContentType
	Sort     types.SortOrder
	FailFast bool
}

// ProcessChannel lists the channel and processes every video in listing
// order. ContentBoth lists regular videos first, then streams.
func (u Usecase) ProcessChannel(ctx context.Context, in ChannelInput) (types.RunReport, error) {
	key := docname.ChannelKey(in.Channel)
	if u.d.Lister == nil {
		return types.RunReport{Channel: key}, errors.New("video lister is not configured")
	}

	videos, err := u.collect(ctx, in)
	if err != nil {
		return types.RunReport{Channel: key}, fmt.Errorf("list videos: %w", err)
	}
	u.d.Log.Info(fmt.Sprintf("Total videos found: %d", len(videos)), slog.String("channel", in.Channel))

	return u.ProcessVideos(ctx, key, videos, in.FailFast)
}

func (u Usecase) collect(ctx context.Context, in ChannelInput) ([]types.Video, error) {
	kinds := []types.ContentType{in.Content}
	if in.Content == types.ContentBoth {
		kinds = []types.ContentType{types.ContentVideos, types.ContentStreams}
	}

	var videos []types.Video
	for _, kind := range kinds {
		for v, err := range u.d.Lister.ListVideos(ctx, in.Channel, kind, in.Sort) {
			if err != nil {
				return nil, err
			}
			videos = append(videos, v)
		}
	}
	return videos, nil
}

// ProcessVideos drives the given videos sequentially into the channelKey
// directory. Per-video failures are collected in the report unless failFast
// is set, in which case the first failure aborts the run.
func (u Usecase) ProcessVideos(ctx context.Context, channelKey string, videos []types.Video, failFast bool) (types.RunReport, error) {
	start := time.Now()
	report := types.RunReport{Channel: channelKey, Total: len(videos)}

	unlock, err := u.d.Store.Lock(channelKey)
	if err != nil {
		return report, err
	}
	defer func() { _ = unlock() }()

	if u.d.Ledger != nil {
		id, err := u.d.Ledger.BeginRun(ctx, channelKey)
		if err != nil {
			u.d.Log.Warn("ledger begin run failed", slog.String("error", err.Error()))
		}
		report.RunID = id
	}

	finish := func(runErr error) (types.RunReport, error) {
		report.Elapsed = time.Since(start)
		if u.d.Ledger != nil {
			if err := u.d.Ledger.FinishRun(context.WithoutCancel(ctx), report); err != nil {
				u.d.Log.Warn("ledger finish run failed", slog.String("error", err.Error()))
			}
		}
		u.d.Log.Info(fmt.Sprintf("Total time taken: %s", formatElapsed(report.Elapsed)),
			slog.Int("completed", report.Completed),
			slog.Int("skipped", report.Skipped),
			slog.Int("unavailable", report.Unavailable),
			slog.Int("failed", len(report.Failed)),
		)
		return report, runErr
	}

	for i, v := range videos {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		o, err := u.processVideo(ctx, channelKey, report.RunID, position{i: i + 1, n: len(videos)}, v)
		report.Add(o)
		if o.State == types.StateWritten {
			u.d.Log.Info(fmt.Sprintf("Time taken for video %s: %s", v.Title, formatElapsed(o.Elapsed)),
				slog.Int("completed", report.Completed))
		}
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return finish(ctxErr)
		}
		if failFast {
			return finish(fmt.Errorf("video %s: %w", v.ID, err))
		}
	}
	return finish(nil)
}
