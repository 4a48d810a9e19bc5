package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forPelevin/ytscribe/internal/output"
	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/types"
)

type Deps struct {
	Lister      ports.VideoLister
	Transcripts ports.TranscriptSource
	Punctuator  ports.Punctuator
	Segmenter   ports.Segmenter
	Reformatter ports.Reformatter
	Store       output.Store
	Ledger      ports.Ledger // optional
	Log         *slog.Logger

	ChunkSize        int
	FetchTimeout     time.Duration
	PunctuateTimeout time.Duration
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	return Usecase{d: d}
}

func (u Usecase) record(ctx context.Context, channelKey, runID string, o types.Outcome) {
	if u.d.Ledger == nil {
		return
	}
	rec := ports.VideoRecord{
		Channel:     channelKey,
		VideoID:     o.Video.ID,
		Title:       o.Video.Title,
		FileName:    o.FileName,
		State:       o.State,
		ChunksTotal: o.Chunks,
		ChunksDone:  o.ChunksDone,
		RunID:       runID,
		UpdatedAt:   time.Now().UTC(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if err := u.d.Ledger.RecordVideo(context.WithoutCancel(ctx), rec); err != nil {
		u.d.Log.Warn("ledger update failed", slog.String("video", o.Video.ID), slog.String("error", err.Error()))
	}
}

// withTimeout bounds one external call. A deadline hit by d (and not by the
// parent context) is reported as ports.ErrTimeout.
func withTimeout[T any](ctx context.Context, op string, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, ports.Timeout(op, d, err)
	}
	return v, err
}

func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%d minutes and %d seconds", secs/60, secs%60)
}
