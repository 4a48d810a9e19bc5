package ports

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/forPelevin/ytscribe/internal/types"
)

var (
	// ErrTranscriptUnavailable is returned by a TranscriptSource when captions
	// are disabled or missing for a video.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")

	// ErrTimeout marks an external call that exceeded its deadline.
	ErrTimeout = errors.New("external call timed out")
)

type VideoLister interface {
	ListVideos(ctx context.Context, channel string, content types.ContentType, sort types.SortOrder) iter.Seq2[types.Video, error]
}

type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) (types.Transcript, error)
}

type TitleResolver interface {
	ResolveTitle(ctx context.Context, videoID string) (string, error)
}

type Punctuator interface {
	Restore(ctx context.Context, raw string) (string, error)
}

type Segmenter interface {
	Segment(text string) []string
}

type CompletionRequest struct {
	System      string
	User        string
	Model       string
	Temperature float64
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Reformatter interface {
	Reformat(ctx context.Context, chunkText string) (string, error)
}

// VideoRecord is the ledger view of one video in one channel.
type VideoRecord struct {
	Channel     string
	VideoID     string
	Title       string
	FileName    string
	State       types.State
	ChunksTotal int
	ChunksDone  int
	Error       string
	RunID       string
	UpdatedAt   time.Time
}

type Ledger interface {
	BeginRun(ctx context.Context, channel string) (string, error)
	RecordVideo(ctx context.Context, rec VideoRecord) error
	FinishRun(ctx context.Context, report types.RunReport) error
}

// Timeout wraps a context deadline error so callers can match ErrTimeout.
func Timeout(op string, d time.Duration, err error) error {
	return &timeoutError{op: op, after: d, err: err}
}

type timeoutError struct {
	op    string
	after time.Duration
	err   error
}

func (e *timeoutError) Error() string {
	return e.op + ": timed out after " + e.after.String()
}

func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *timeoutError) Unwrap() error { return e.err }
