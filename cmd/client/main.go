package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"replkv/internal/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	root := &cobra.Command{
		Use:          "replkv-client",
		Short:        "Send one request to a key-value server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:4000", "server address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "dial and request timeout")

	// withConn dials the server for the duration of one subcommand.
	withConn := func(run func(cmd *cobra.Command, c *client.Conn, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			c, err := client.Dial(ctx, addr, timeout)
			if err != nil {
				return err
			}
			defer c.Close()
			return run(cmd, c, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set the value of a key",
			Args:  cobra.ExactArgs(2),
			RunE: withConn(func(cmd *cobra.Command, c *client.Conn, args []string) error {
				return c.Set(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value of a key",
			Args:  cobra.ExactArgs(1),
			RunE: withConn(func(cmd *cobra.Command, c *client.Conn, args []string) error {
				value, ok, err := c.Get(args[0])
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "key not found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rm <key>",
			Short: "Remove a key",
			Args:  cobra.ExactArgs(1),
			RunE: withConn(func(cmd *cobra.Command, c *client.Conn, args []string) error {
				return c.Remove(args[0])
			}),
		},
		&cobra.Command{
			Use:   "compact",
			Short: "Rewrite the server log with live keys only",
			Args:  cobra.NoArgs,
			RunE: withConn(func(cmd *cobra.Command, c *client.Conn, args []string) error {
				return c.Compact()
			}),
		},
		&cobra.Command{
			Use:   "scan <start> <end>",
			Short: "List keys in [start, end)",
			Args:  cobra.ExactArgs(2),
			RunE: withConn(func(cmd *cobra.Command, c *client.Conn, args []string) error {
				pairs, err := c.Scan(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d keys:\n", len(pairs))
				for _, kv := range pairs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", kv.Key, kv.Value)
				}
				return nil
			}),
		},
	)
	return root
}
