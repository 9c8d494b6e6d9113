package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"replkv/internal/bench"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr       string
		iterations int
	)

	cmd := &cobra.Command{
		Use:          "replkv-bench",
		Short:        "Measure sequential Set throughput against a server",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Starting Benchmark...")
			res, err := bench.Run(cmd.Context(), addr, iterations)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "--- Benchmark results ---")
			fmt.Fprintln(cmd.OutOrStdout(), res.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4000", "server address")
	cmd.Flags().IntVar(&iterations, "iterations", 1000, "number of Set requests")
	return cmd
}
