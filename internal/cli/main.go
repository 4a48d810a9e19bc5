package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ytscribe",
		Short:        "Turn YouTube captions into punctuated, paragraph-formatted transcripts",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Path to a TOML config file (default $YTSCRIBE_CONFIG or ./ytscribe.toml)")
	root.PersistentFlags().String("out", "", "Output directory (overrides pipeline.output_dir)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	channel := &cobra.Command{
		Use:   "channel <channel>",
		Short: "Transcribe every video of a channel (id, @handle, name or URL)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannel(cmd, args[0])
		},
	}
	channel.Flags().String("content", "", "Content to list: videos, streams or both (prompted on a terminal when unset)")
	channel.Flags().String("sort", "newest", "Listing order: newest, oldest or popular")
	addRunFlags(channel)

	video := &cobra.Command{
		Use:   "video <id>...",
		Short: "Transcribe individual videos by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideos(cmd, args)
		},
	}
	addRunFlags(video)

	status := &cobra.Command{
		Use:   "status <channel>",
		Short: "Show recorded progress for a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args[0])
		},
	}

	root.AddCommand(channel, video, status)
	return root
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("chunk-size", 0, "Sentences per reformatted chunk (overrides pipeline.chunk_size)")
	cmd.Flags().String("naming", "", "Document naming: id or title (overrides pipeline.naming)")
	cmd.Flags().Bool("fail-fast", false, "Abort the run on the first failed video")

	// Hidden tuning flag (internal)
	cmd.Flags().Float64("rps", 0, "YouTube requests per second")
	_ = cmd.Flags().MarkHidden("rps")
}
