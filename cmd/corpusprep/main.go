// Command corpusprep converts speech datasets into a studio master directory.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "corpusprep",
		Short:         "Prepare speech datasets for the recording studio",
		Long:          "corpusprep lays out third-party speech datasets as a studio master directory with texts/ and waves/ keyed by file name.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newKSSCmd())
	return root
}
