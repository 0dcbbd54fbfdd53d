package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "vshorts <input>",
		Short:        "Turn a local MP4 into a 9:16 vertical short",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("out", "out", "Output directory")
	root.Flags().Bool("burn-subtitles", false, "Burn karaoke subtitles into the short")
	root.Flags().String("detector", "opencv", "Face detection backend (opencv or pigo)")
	root.Flags().String("cascade", ".cache/models/haarcascade_frontalface_default.xml", "Face cascade file")

	// Hidden tuning flags (internal)
	root.Flags().Float64("smoothing", 0.15, "Crop center smoothing factor")
	_ = root.Flags().MarkHidden("smoothing")
	root.Flags().Int("min-movement", 3, "Dead zone for crop center movement, pixels")
	_ = root.Flags().MarkHidden("min-movement")
	root.Flags().Int("max", 60, "Max highlight duration seconds")
	_ = root.Flags().MarkHidden("max")
	root.Flags().Int64("seed", 0, "Run seed recorded in the manifest")
	_ = root.Flags().MarkHidden("seed")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
