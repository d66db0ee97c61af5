// Command softcache-bench populates a backing store, runs a timed fetch
// loop through the staging cache and verifies the final resident set.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/softcache"
	"github.com/hupe1980/softcache/bench"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := bench.DefaultOptions()
	var (
		jsonLog bool
		verbose bool
		backing string
	)

	cmd := &cobra.Command{
		Use:           "softcache-bench",
		Short:         "Benchmark the software-managed staging cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			if jsonLog {
				opts.Logger = softcache.NewJSONLogger(level)
			} else {
				opts.Logger = softcache.NewTextLogger(level)
			}
			opts.Backing = bench.Backing(backing)

			res, err := bench.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"moved %d bytes in %v (%.3f GB/s), verified %d slots\n",
				res.BytesMoved, res.Elapsed, res.GBPerSec, res.Verified)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.ResidentSetSize, "resident-set-size", opts.ResidentSetSize,
		"number of slots in the resident set")
	f.IntVar(&opts.RemoteStoreSize, "remote-store-size", opts.RemoteStoreSize,
		"number of lines in the backing store")
	f.IntVar(&opts.LineSize, "line-size", opts.LineSize,
		"elements per line")
	f.IntVar(&opts.FetchCount, "fetch-count", 0,
		"lines fetched per iteration (required)")
	f.IntVar(&opts.Iterations, "iterations", opts.Iterations,
		"number of fetch iterations")
	f.Int64Var(&opts.Seed, "seed", opts.Seed,
		"seed for the index permutations")
	f.BoolVar(&opts.OptimiseCycles, "optimise-cycles", false,
		"trade memory for transfer speed (parallel scatter)")
	f.BoolVar(&opts.Rotate, "rotate", false,
		"recompute fetch indices every iteration")
	f.StringVar(&backing, "backing", string(bench.BackingMemory),
		"store implementation: memory or file")
	f.StringVar(&opts.Dir, "dir", "",
		"scratch directory for the file backing")
	f.Int64Var(&opts.ThrottleBytesPerSec, "throttle-bytes", 0,
		"limit store bandwidth in bytes/sec (0 = unlimited)")
	f.BoolVar(&jsonLog, "json-log", false, "emit JSON logs")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	cobra.CheckErr(cmd.MarkFlagRequired("fetch-count"))

	return cmd
}
