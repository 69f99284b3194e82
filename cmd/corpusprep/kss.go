package main

import (
	"fmt"

	"github.com/AppleHolic/recording-studio-api/internal/corpusprep"
	"github.com/spf13/cobra"
)

func newKSSCmd() *cobra.Command {
	var opts corpusprep.Options

	cmd := &cobra.Command{
		Use:   "kss <master-dir>",
		Short: "Prepare the Korean Single Speaker dataset",
		Long: "Copies every <master-dir>/*/*.wav into waves/ and writes texts/<name>.txt " +
			"from the expanded text column of the KSS transcript.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := corpusprep.PrepareKSS(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("failed to prepare kss corpus: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Copied %d waves and wrote %d texts into %s\n", res.Waves, res.Texts, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Transcript, "transcript", "t", corpusprep.DefaultTranscript, "transcript file, relative to the master directory unless absolute")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "concurrent file operations (0 uses half the CPUs)")
	return cmd
}
