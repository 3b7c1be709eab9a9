// Command client runs the interactive shell of spec section 6: a
// line-oriented REPL over the filesystem-tree and user/group
// administration verbs, talking to whichever name node currently wins
// client-side quorum election.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"log/slog"

	"github.com/spf13/cobra"

	"distfs/internal/client"
	"distfs/internal/cliutil"
)

var version = "dev"

func main() {
	logger := cliutil.NewLogger()

	rootCmd := &cobra.Command{
		Use:   "distfs-client",
		Short: "Interactive shell for a distfs cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			actor, _ := cmd.Flags().GetString("actor")
			username, _ := cmd.Flags().GetString("user")
			password, _ := cmd.Flags().GetString("password")
			concurrency, _ := cmd.Flags().GetInt("concurrency")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, configPath, actor, username, password, concurrency)
		},
	}
	rootCmd.Flags().String("config", "", "path to the cluster configuration document (required)")
	rootCmd.MarkFlagRequired("config")
	rootCmd.Flags().String("actor", envOr("USER", "anonymous"), "acting username for permission checks before login")
	rootCmd.Flags().String("user", "", "username to log in as before starting the shell (optional; also usable via the login verb)")
	rootCmd.Flags().String("password", "", "password for --user")
	rootCmd.Flags().Int("concurrency", 0, "chunk worker pool size (default: configured max_thread_concurrency)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, logger *slog.Logger, configPath, actor, username, password string, concurrency int) error {
	cfg, err := cliutil.LoadConfig(logger, configPath)
	if err != nil {
		return err
	}

	if concurrency <= 0 {
		concurrency = cfg.MaxThreadConcurrency
	}

	sess := client.NewSession(actor, nil, cfg.NameNodeBaseURLsExcept(""), cfg.DataNodes, concurrency)

	if username != "" {
		if err := sess.Login(ctx, username, password); err != nil {
			return fmt.Errorf("login as %q: %w", username, err)
		}
		logger.Info("logged in", "user", username)
	}

	shell := client.NewShell(sess, os.Stdin, os.Stdout, logger)
	return shell.Run(ctx)
}
