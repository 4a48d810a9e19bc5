package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forPelevin/ytscribe/internal/domain/docname"
	"github.com/forPelevin/ytscribe/internal/domain/sentences"
	"github.com/forPelevin/ytscribe/internal/output"
	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/reformat"
	"github.com/forPelevin/ytscribe/internal/types"
)

func TestProcessVideos_SingleChunk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := &fakeTranscripts{texts: map[string]string{"v1": "hello world this is a test"}}
	uc := New(Deps{
		Transcripts: src,
		Punctuator:  fakePunctuator{fn: func(string) string { return "Hello world. This is a test." }},
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingID),
		ChunkSize:   10,
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1", Title: "First"}}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Completed != 1 || rep.Total != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	got := readFile(t, filepath.Join(root, "chan", "v1.txt"))
	want := "Title: First\nYoutube URL: https://www.youtube.com/watch?v=v1\nHELLO WORLD. THIS IS A TEST.\n"
	if got != want {
		t.Fatalf("unexpected document:\n%q\nwant\n%q", got, want)
	}
	o := rep.Outcomes[0]
	if o.State != types.StateWritten || o.Chunks != 1 || o.ChunksDone != 1 {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}

func TestProcessVideos_TranscriptUnavailableAdvances(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := &fakeTranscripts{
		texts: map[string]string{"v2": "second video."},
		errs:  map[string]error{"v1": fmt.Errorf("captions disabled: %w", ports.ErrTranscriptUnavailable)},
	}
	led := &fakeLedger{}
	uc := New(Deps{
		Transcripts: src,
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingID),
		Ledger:      led,
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{
		{ID: "v1", Title: "No captions"},
		{ID: "v2", Title: "Has captions"},
	}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Completed != 1 || rep.Unavailable != 1 || len(rep.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if _, err := os.Stat(filepath.Join(root, "chan", "v1.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected no document for unavailable video, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "chan", "v2.txt")); err != nil {
		t.Fatalf("expected document for v2: %v", err)
	}
	if led.last("v1").State != types.StateNoTranscript {
		t.Fatalf("expected ledger to record NO_TRANSCRIPT, got %+v", led.last("v1"))
	}
	if led.finished == nil || led.finished.Completed != 1 {
		t.Fatalf("expected finished run with 1 completed, got %+v", led.finished)
	}
}

func TestProcessVideos_ReformatRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	comp := &flakyCompleter{failures: 2, out: "Formatted paragraph."}
	var waits []time.Duration
	rf := reformat.New(reformat.Config{Model: "m"}, comp, reformat.WithSleeper(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))
	uc := New(Deps{
		Transcripts: &fakeTranscripts{texts: map[string]string{"v1": "One sentence."}},
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: rf,
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1", Title: "T"}}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Completed != 1 {
		t.Fatalf("expected completed video, got %+v", rep)
	}

	var total time.Duration
	for _, w := range waits {
		total += w
	}
	if total != 3*time.Second {
		t.Fatalf("expected 3s of backoff, got %v (%v)", total, waits)
	}

	got := readFile(t, filepath.Join(root, "chan", "v1.txt"))
	if strings.Count(got, "Formatted paragraph.") != 1 {
		t.Fatalf("expected exactly one chunk line, got %q", got)
	}
}

func TestProcessVideos_TitleNamingCollisionSkipsSecond(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := &fakeTranscripts{texts: map[string]string{"a": "First.", "b": "Second."}}
	uc := New(Deps{
		Transcripts: src,
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingTitle),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{
		{ID: "a", Title: "Same Title"},
		{ID: "b", Title: "Same Title"},
	}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Completed != 1 || rep.Skipped != 1 {
		t.Fatalf("expected second video skipped on collision, got %+v", rep)
	}
	if src.count("b") != 0 {
		t.Fatalf("expected no fetch for skipped video")
	}
}

func TestProcessVideos_IDNamingAvoidsCollision(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	uc := New(Deps{
		Transcripts: &fakeTranscripts{texts: map[string]string{"a": "First.", "b": "Second."}},
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{
		{ID: "a", Title: "Same Title"},
		{ID: "b", Title: "Same Title"},
	}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Completed != 2 {
		t.Fatalf("expected both videos written, got %+v", rep)
	}
}

func TestProcessVideos_ResumeSkipsWithoutExternalCalls(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "chan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "v1.txt"), []byte("done"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	src := &fakeTranscripts{texts: map[string]string{"v1": "Text."}}
	punct := &countingPunctuator{}
	rf := &countingReformatter{}
	uc := New(Deps{
		Transcripts: src,
		Punctuator:  punct,
		Segmenter:   sentences.New(),
		Reformatter: rf,
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1", Title: "T"}}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Skipped != 1 || rep.Completed != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if src.count("v1") != 0 || punct.calls != 0 || rf.calls != 0 {
		t.Fatalf("expected zero external calls, got fetch=%d punct=%d reformat=%d", src.count("v1"), punct.calls, rf.calls)
	}
	if readFile(t, filepath.Join(dir, "v1.txt")) != "done" {
		t.Fatalf("existing document must not be touched")
	}
}

func TestProcessVideos_ProgressLogs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "chan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "done.txt"), []byte("done"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var buf bytes.Buffer
	src := &fakeTranscripts{texts: map[string]string{"fresh": "One. Two. Three."}}
	uc := New(Deps{
		Transcripts: src,
		Punctuator:  fakePunctuator{fn: func(s string) string { return s }},
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingID),
		Log:         slog.New(slog.NewTextHandler(&buf, nil)),
		ChunkSize:   2,
	})

	videos := []types.Video{{ID: "done", Title: "Old Talk"}, {ID: "fresh", Title: "New Talk"}}
	rep, err := uc.ProcessVideos(context.Background(), "chan", videos, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Skipped != 1 || rep.Completed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Outcomes[1].ChunksDone != 2 {
		t.Fatalf("expected 2 chunks done, got %d", rep.Outcomes[1].ChunksDone)
	}

	logs := buf.String()
	for _, want := range []string{
		"Skipping Old Talk as it already exists.",
		"Processing video (2/2): New Talk",
		"Progress: 2/2",
		"Time taken for video New Talk:",
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("logs missing %q:\n%s", want, logs)
		}
	}
	if strings.Contains(logs, "Processing video (1/2)") {
		t.Fatalf("skipped video must not log processing:\n%s", logs)
	}
}

func TestProcessVideos_FailureIsolation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	uc := New(Deps{
		Transcripts: &fakeTranscripts{texts: map[string]string{"v1": "Bad.", "v2": "Good."}},
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: failingReformatter{bad: "Bad."},
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{
		{ID: "v1", Title: "Broken"},
		{ID: "v2", Title: "Fine"},
	}, false)
	if err != nil {
		t.Fatalf("expected run to continue, got %v", err)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].Video.ID != "v1" || rep.Completed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if _, err := os.Stat(filepath.Join(root, "chan", "v1.txt")); !os.IsNotExist(err) {
		t.Fatalf("failed video must not have a final document, stat err=%v", err)
	}
}

func TestProcessVideos_FailFastAborts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := &fakeTranscripts{texts: map[string]string{"v1": "Bad.", "v2": "Good."}}
	uc := New(Deps{
		Transcripts: src,
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: failingReformatter{bad: "Bad."},
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{
		{ID: "v1", Title: "Broken"},
		{ID: "v2", Title: "Fine"},
	}, true)
	if err == nil {
		t.Fatalf("expected fail-fast error")
	}
	if !strings.Contains(err.Error(), "v1") {
		t.Fatalf("expected error to name the video, got %v", err)
	}
	if src.count("v2") != 0 || rep.Completed != 0 {
		t.Fatalf("expected run to stop before v2, report=%+v", rep)
	}
}

func TestProcessVideos_EmptyTranscriptCommitsHeader(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	punct := &countingPunctuator{}
	uc := New(Deps{
		Transcripts: &fakeTranscripts{texts: map[string]string{"v1": "   "}},
		Punctuator:  punct,
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1", Title: "Silent"}}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Completed != 1 || punct.calls != 0 {
		t.Fatalf("unexpected report %+v, punct calls %d", rep, punct.calls)
	}
	got := readFile(t, filepath.Join(root, "chan", "v1.txt"))
	if got != "Title: Silent\nYoutube URL: https://www.youtube.com/watch?v=v1\n" {
		t.Fatalf("unexpected document %q", got)
	}
}

func TestProcessVideos_FetchTimeout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	uc := New(Deps{
		Transcripts:  blockingTranscripts{},
		Punctuator:   fakePunctuator{},
		Segmenter:    sentences.New(),
		Reformatter:  upperReformatter{},
		Store:        output.NewStore(root, docname.NamingID),
		FetchTimeout: 10 * time.Millisecond,
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1", Title: "Slow"}}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(rep.Failed) != 1 {
		t.Fatalf("expected one failure, got %+v", rep)
	}
	if !errors.Is(rep.Failed[0].Err, ports.ErrTimeout) {
		t.Fatalf("expected timeout failure, got %v", rep.Failed[0].Err)
	}
}

func TestProcessVideos_PunctuationFailureIsFatalForVideo(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rf := &countingReformatter{}
	uc := New(Deps{
		Transcripts: &fakeTranscripts{texts: map[string]string{"v1": "some words"}},
		Punctuator:  fakePunctuator{err: errors.New("model down")},
		Segmenter:   sentences.New(),
		Reformatter: rf,
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1", Title: "T"}}, false)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(rep.Failed) != 1 || rf.calls != 0 {
		t.Fatalf("expected failure before reformatting, report=%+v calls=%d", rep, rf.calls)
	}
}

func TestProcessVideos_LockHeld(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := output.NewStore(root, docname.NamingID)
	unlock, err := store.Lock("chan")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer func() { _ = unlock() }()

	uc := New(Deps{Store: store, Segmenter: sentences.New()})
	if _, err := uc.ProcessVideos(context.Background(), "chan", []types.Video{{ID: "v1"}}, false); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestProcessChannel_BothListsVideosThenStreams(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	lister := &fakeLister{byContent: map[types.ContentType][]types.Video{
		types.ContentVideos:  {{ID: "v1", Title: "Video"}},
		types.ContentStreams: {{ID: "s1", Title: "Stream"}},
	}}
	src := &fakeTranscripts{texts: map[string]string{"v1": "A.", "s1": "B."}}
	uc := New(Deps{
		Lister:      lister,
		Transcripts: src,
		Punctuator:  fakePunctuator{},
		Segmenter:   sentences.New(),
		Reformatter: upperReformatter{},
		Store:       output.NewStore(root, docname.NamingID),
	})

	rep, err := uc.ProcessChannel(context.Background(), ChannelInput{
		Channel: "https://www.youtube.com/@SomeChannel",
		Content: types.ContentBoth,
		Sort:    types.SortNewest,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rep.Channel != "SomeChannel" || rep.Completed != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if got := src.order(); strings.Join(got, ",") != "v1,s1" {
		t.Fatalf("expected videos before streams, got %v", got)
	}
	if strings.Join(lister.asked, ",") != "videos,streams" {
		t.Fatalf("unexpected listing calls: %v", lister.asked)
	}
}

func TestProcessChannel_ListingError(t *testing.T) {
	t.Parallel()

	uc := New(Deps{
		Lister: &fakeLister{err: errors.New("boom")},
		Store:  output.NewStore(t.TempDir(), docname.NamingID),
	})
	if _, err := uc.ProcessChannel(context.Background(), ChannelInput{Channel: "x", Content: types.ContentVideos}); err == nil {
		t.Fatalf("expected listing error")
	}
}

func TestFormatElapsed(t *testing.T) {
	t.Parallel()

	if got := formatElapsed(125 * time.Second); got != "2 minutes and 5 seconds" {
		t.Fatalf("unexpected format: %q", got)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

type fakeLister struct {
	byContent map[types.ContentType][]types.Video
	err       error
	asked     []string
}

func (f *fakeLister) ListVideos(_ context.Context, _ string, content types.ContentType, _ types.SortOrder) iter.Seq2[types.Video, error] {
	f.asked = append(f.asked, string(content))
	return func(yield func(types.Video, error) bool) {
		if f.err != nil {
			yield(types.Video{}, f.err)
			return
		}
		for _, v := range f.byContent[content] {
			if !yield(v, nil) {
				return
			}
		}
	}
}

type fakeTranscripts struct {
	mu    sync.Mutex
	texts map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeTranscripts) Fetch(_ context.Context, id string) (types.Transcript, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{VideoID: id, Language: "en", Fragments: []types.Fragment{{Text: f.texts[id]}}}, nil
}

func (f *fakeTranscripts) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (f *fakeTranscripts) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type blockingTranscripts struct{}

func (blockingTranscripts) Fetch(ctx context.Context, _ string) (types.Transcript, error) {
	<-ctx.Done()
	return types.Transcript{}, ctx.Err()
}

type fakePunctuator struct {
	fn  func(string) string
	err error
}

func (f fakePunctuator) Restore(_ context.Context, raw string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.fn != nil {
		return f.fn(raw), nil
	}
	return raw, nil
}

type countingPunctuator struct{ calls int }

func (c *countingPunctuator) Restore(_ context.Context, raw string) (string, error) {
	c.calls++
	return raw, nil
}

type upperReformatter struct{}

func (upperReformatter) Reformat(_ context.Context, text string) (string, error) {
	return strings.ToUpper(text), nil
}

type countingReformatter struct{ calls int }

func (c *countingReformatter) Reformat(_ context.Context, text string) (string, error) {
	c.calls++
	return text, nil
}

type failingReformatter struct{ bad string }

func (f failingReformatter) Reformat(_ context.Context, text string) (string, error) {
	if strings.Contains(text, f.bad) {
		return "", fmt.Errorf("%w after 5 attempts: upstream 500", reformat.ErrExhausted)
	}
	return text, nil
}

type flakyCompleter struct {
	failures int
	calls    int
	out      string
}

func (f *flakyCompleter) Complete(context.Context, ports.CompletionRequest) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return f.out, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	records  []ports.VideoRecord
	finished *types.RunReport
}

func (f *fakeLedger) BeginRun(context.Context, string) (string, error) { return "run-1", nil }

func (f *fakeLedger) RecordVideo(_ context.Context, rec ports.VideoRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLedger) FinishRun(_ context.Context, r types.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = &r
	return nil
}

func (f *fakeLedger) last(id string) ports.VideoRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].VideoID == id {
			return f.records[i]
		}
	}
	return ports.VideoRecord{}
}
