package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/forPelevin/ytscribe/internal/config"
	"github.com/forPelevin/ytscribe/internal/logging"
	"github.com/forPelevin/ytscribe/internal/pipeline"
	"github.com/forPelevin/ytscribe/internal/types"
)

func runChannel(cmd *cobra.Command, channel string) error {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	contentFlag, _ := cmd.Flags().GetString("content")
	sortFlag, _ := cmd.Flags().GetString("sort")
	failFast, _ := cmd.Flags().GetBool("fail-fast")

	content := types.ContentType(strings.ToLower(strings.TrimSpace(contentFlag)))
	if content == "" {
		content = types.ContentVideos
		if isTerminal(os.Stdin) {
			content, err = promptContent(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
		}
	}
	sort := types.SortOrder(strings.ToLower(strings.TrimSpace(sortFlag)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := pipeline.RunChannel(ctx, pipeline.Config{Settings: settings, Log: log}, pipeline.ChannelInput{
		Channel:  channel,
		Content:  content,
		Sort:     sort,
		FailFast: failFast,
	})
	return finish(cmd, rep, err)
}

func runVideos(cmd *cobra.Command, ids []string) error {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	failFast, _ := cmd.Flags().GetBool("fail-fast")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := pipeline.RunVideos(ctx, pipeline.Config{Settings: settings, Log: log}, ids, failFast)
	return finish(cmd, rep, err)
}

func runStatus(cmd *cobra.Command, channel string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	return pipeline.Status(cmd.Context(), settings.Pipeline.OutputDir, channel, cmd.OutOrStdout())
}

// finish prints the run report and turns failed videos into a non-zero exit.
func finish(cmd *cobra.Command, rep types.RunReport, runErr error) error {
	if rep.Total > 0 || len(rep.Outcomes) > 0 {
		if err := pipeline.WriteReport(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if n := len(rep.Failed); n > 0 {
		return fmt.Errorf("%d of %d videos failed", n, rep.Total)
	}
	return nil
}

// loadSettings resolves config as defaults < file < env < flags.
func loadSettings(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	settings, resolved, exists, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}

	if v, _ := cmd.Flags().GetString("out"); strings.TrimSpace(v) != "" {
		settings.Pipeline.OutputDir = strings.TrimSpace(v)
	}
	if v, _ := cmd.Flags().GetString("log-level"); strings.TrimSpace(v) != "" {
		settings.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if f := cmd.Flags().Lookup("chunk-size"); f != nil && f.Changed {
		settings.Pipeline.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	}
	if v, _ := cmd.Flags().GetString("naming"); strings.TrimSpace(v) != "" {
		settings.Pipeline.Naming = strings.ToLower(strings.TrimSpace(v))
	}
	if f := cmd.Flags().Lookup("rps"); f != nil && f.Changed {
		settings.YouTube.RequestsPerSecond, _ = cmd.Flags().GetFloat64("rps")
	}

	if err := settings.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(logging.Options{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	if exists {
		log.Debug("config loaded", slog.String("path", resolved))
	}
	return settings, log, nil
}

var contentChoices = []types.ContentType{types.ContentVideos, types.ContentStreams, types.ContentBoth}

func promptContent(in io.Reader, out io.Writer) (types.ContentType, error) {
	fmt.Fprintln(out, "Which content should be transcribed?")
	for i, c := range contentChoices {
		fmt.Fprintf(out, "  %d) %s\n", i+1, c)
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Enter 1-3 [1]: ")
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", errors.New("no content type selected")
		}
		answer := strings.ToLower(strings.TrimSpace(sc.Text()))
		if answer == "" {
			return types.ContentVideos, nil
		}
		for i, c := range contentChoices {
			if answer == fmt.Sprint(i+1) || answer == string(c) {
				return c, nil
			}
		}
		fmt.Fprintf(out, "Invalid choice %q.\n", answer)
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
