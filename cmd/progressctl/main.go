// Command progressctl runs the tracker's maintenance operations from a
// terminal or a CI job against the same stores the functions use.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "progressctl",
	Short: "Operate the product progress tracker",
	Long:  "progressctl inspects products, runs cascade deletions, sweeps object namespaces and renders progress reports.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

var (
	useMemory bool
	verbose   bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&useMemory, "memory", false, "Use empty in-memory stores instead of Firestore and the object bucket")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

func main() {
	gcp.LoadDotEnv()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
