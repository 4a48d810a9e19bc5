package types

import (
	"strings"
	"time"
)

type Video struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// URL is the public watch page of the video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

type Fragment struct {
	Text     string        `json:"text"`
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

type Transcript struct {
	VideoID   string     `json:"video_id"`
	Language  string     `json:"language"`
	Fragments []Fragment `json:"fragments"`
}

// Text concatenates the caption fragments into one raw string.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Fragments))
	for _, f := range t.Fragments {
		s := strings.TrimSpace(f.Text)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

type Chunk struct {
	Index     int
	Sentences []string
	Text      string
}

type ContentType string

const (
	ContentVideos  ContentType = "videos"
	ContentStreams ContentType = "streams"
	ContentBoth    ContentType = "both"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentVideos, ContentStreams, ContentBoth:
		return true
	}
	return false
}

type SortOrder string

const (
	SortNewest  SortOrder = "newest"
	SortOldest  SortOrder = "oldest"
	SortPopular SortOrder = "popular"
)

func (s SortOrder) Valid() bool {
	switch s {
	case SortNewest, SortOldest, SortPopular:
		return true
	}
	return false
}

// State is a step of the per-video pipeline.
type State string

const (
	StatePending      State = "PENDING"
	StateSkipped      State = "SKIPPED"
	StateFetching     State = "FETCHING"
	StateNoTranscript State = "NO_TRANSCRIPT"
	StatePunctuating  State = "PUNCTUATING"
	StateSegmenting   State = "SEGMENTING"
	StateChunking     State = "CHUNKING"
	StateReformatting State = "REFORMATTING"
	StateWritten      State = "WRITTEN"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no further work happens for the video in this run.
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateNoTranscript, StateWritten, StateFailed:
		return true
	}
	return false
}

type Outcome struct {
	Video      Video
	State      State
	FileName   string
	Chunks     int
	ChunksDone int
	Elapsed    time.Duration
	Err        error
}

type RunReport struct {
	Channel     string
	RunID       string
	Total       int
	Completed   int
	Skipped     int
	Unavailable int
	Failed      []Outcome
	Outcomes    []Outcome
	Elapsed     time.Duration
}

// Add folds one video outcome into the report counters. A video that
// stopped before reaching a terminal state counts as failed.
func (r *RunReport) Add(o Outcome) {
	if !o.State.Terminal() {
		o.State = StateFailed
	}
	r.Outcomes = append(r.Outcomes, o)
	switch o.State {
	case StateWritten:
		r.Completed++
	case StateSkipped:
		r.Skipped++
	case StateNoTranscript:
		r.Unavailable++
	case StateFailed:
		r.Failed = append(r.Failed, o)
	}
}
