package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/forPelevin/ytscribe/internal/domain/docname"
	"github.com/forPelevin/ytscribe/internal/ports"
	"github.com/forPelevin/ytscribe/internal/ports/adapters/ledger"
	"github.com/forPelevin/ytscribe/internal/types"
)

// WriteReport renders the outcome of one run. Videos that were skipped
// because they were already done are summarized, not listed.
func WriteReport(w io.Writer, r types.RunReport) error {
	colorize := shouldColorize(w)

	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Video", "Title", "State", "Chunks", "Time", "Error"})
	n := 0
	for _, o := range r.Outcomes {
		if o.State == types.StateSkipped {
			continue
		}
		n++
		chunks := ""
		if o.Chunks > 0 || o.State == types.StateWritten {
			chunks = fmt.Sprintf("%d/%d", o.ChunksDone, o.Chunks)
		}
		errText := ""
		if o.Err != nil {
			errText = shorten(o.Err.Error(), 80)
		}
		tw.AppendRow(table.Row{
			n,
			o.Video.ID,
			shorten(o.Video.Title, 48),
			stateText(o.State, colorize),
			chunks,
			o.Elapsed.Round(time.Second).String(),
			errText,
		})
	}
	tw.AppendFooter(table.Row{"", "", "total " + strconv.Itoa(r.Total), summary(r), "", r.Elapsed.Round(time.Second).String(), ""})

	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return err
	}
	if len(r.Failed) > 0 {
		ids := make([]string, 0, len(r.Failed))
		for _, o := range r.Failed {
			ids = append(ids, o.Video.ID)
		}
		_, err := fmt.Fprintf(w, "Failed videos (%d): %s\n", len(ids), strings.Join(ids, ", "))
		return err
	}
	return nil
}

func summary(r types.RunReport) string {
	return fmt.Sprintf("%d written, %d skipped, %d no transcript, %d failed",
		r.Completed, r.Skipped, r.Unavailable, len(r.Failed))
}

// Status prints what the ledger in outputDir knows about channel.
func Status(ctx context.Context, outputDir, channel string, w io.Writer) error {
	path := filepath.Join(outputDir, ledger.FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_, err := fmt.Fprintf(w, "No runs recorded in %s\n", outputDir)
			return err
		}
		return err
	}

	led, err := ledger.Open(ctx, path)
	if err != nil {
		return err
	}
	defer led.Close()

	key := docname.ChannelKey(channel)
	run, err := led.LastRun(ctx, key)
	if err != nil {
		return err
	}
	recs, err := led.Videos(ctx, key)
	if err != nil {
		return err
	}
	return writeStatus(w, key, run, recs)
}

func writeStatus(w io.Writer, key string, run *ledger.Run, recs []ports.VideoRecord) error {
	colorize := shouldColorize(w)

	if run == nil && len(recs) == 0 {
		_, err := fmt.Fprintf(w, "No runs recorded for %s\n", key)
		return err
	}
	if run != nil {
		finished := "in progress or interrupted"
		if !run.FinishedAt.IsZero() {
			finished = run.FinishedAt.Local().Format(time.DateTime)
		}
		if _, err := fmt.Fprintf(w, "Channel %s, last run %s started %s, finished %s: %d written, %d skipped, %d no transcript, %d failed\n",
			key, run.ID, run.StartedAt.Local().Format(time.DateTime), finished,
			run.Completed, run.Skipped, run.Unavailable, run.Failed); err != nil {
			return err
		}
	}

	tw := newTable()
	tw.AppendHeader(table.Row{"Video", "Title", "State", "Chunks", "Updated", "Error"})
	for _, rec := range recs {
		tw.AppendRow(table.Row{
			rec.VideoID,
			shorten(rec.Title, 48),
			stateText(rec.State, colorize),
			fmt.Sprintf("%d/%d", rec.ChunksDone, rec.ChunksTotal),
			rec.UpdatedAt.Local().Format(time.DateTime),
			shorten(rec.Error, 80),
		})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func stateText(s types.State, colorize bool) string {
	if !colorize {
		return string(s)
	}
	var c text.Colors
	switch s {
	case types.StateWritten:
		c = text.Colors{text.FgGreen}
	case types.StateFailed:
		c = text.Colors{text.FgRed, text.Bold}
	case types.StateNoTranscript, types.StateSkipped:
		c = text.Colors{text.FgYellow}
	default:
		c = text.Colors{text.FgBlue}
	}
	return c.Sprint(string(s))
}

func shorten(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
