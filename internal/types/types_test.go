package types

import (
	"errors"
	"testing"
)

func TestRunReport_Add(t *testing.T) {
	var r RunReport
	r.Add(Outcome{Video: Video{ID: "a"}, State: StateWritten})
	r.Add(Outcome{Video: Video{ID: "b"}, State: StateSkipped})
	r.Add(Outcome{Video: Video{ID: "c"}, State: StateNoTranscript})
	r.Add(Outcome{Video: Video{ID: "d"}, State: StateFailed, Err: errors.New("boom")})

	if r.Completed != 1 || r.Skipped != 1 || r.Unavailable != 1 || len(r.Failed) != 1 {
		t.Fatalf("unexpected counters: %+v", r)
	}
	if len(r.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(r.Outcomes))
	}
}

func TestRunReport_AddNonTerminalCountsAsFailed(t *testing.T) {
	var r RunReport
	r.Add(Outcome{Video: Video{ID: "a"}, State: StateReformatting, Chunks: 3, ChunksDone: 1})

	if len(r.Failed) != 1 || r.Failed[0].State != StateFailed {
		t.Fatalf("expected the interrupted video to be failed, got %+v", r.Failed)
	}
	if r.Outcomes[0].State != StateFailed {
		t.Fatalf("expected outcome state FAILED, got %s", r.Outcomes[0].State)
	}
}

func TestState_Terminal(t *testing.T) {
	tests := map[State]bool{
		StatePending:      false,
		StateFetching:     false,
		StatePunctuating:  false,
		StateSegmenting:   false,
		StateChunking:     false,
		StateReformatting: false,
		StateSkipped:      true,
		StateNoTranscript: true,
		StateWritten:      true,
		StateFailed:       true,
	}
	for s, want := range tests {
		if got := s.Terminal(); got != want {
			t.Fatalf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}
