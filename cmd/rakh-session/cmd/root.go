// Package cmd provides the rakh-session CLI commands.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adeilh/go-rakh-session/internal/config"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "rakh-session",
		Short: "Seal, unseal and verify session cookies and webhooks",
		Long: `rakh-session works with sealed session cookies and signed webhooks.

Configuration:
  Config is loaded from rakh-session.yaml in the current directory or
  $HOME/.rakh-session/. Environment variables override config values with the
  RAKH_ prefix, e.g. RAKH_COOKIE_PASSWORD or RAKH_SEAL_FORMAT=fe26.

  Secrets are read from config only so they stay out of shell history.

Commands:
  seal            Seal stdin into a session cookie
  unseal          Open a sealed cookie
  verify-webhook  Verify a webhook delivery and print its event
  authenticate    Authenticate a sealed cookie against the identity platform`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rakh-session.yaml)")

	load := func(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(config.NewViper(cfgFile))
		if err != nil {
			return nil, nil, err
		}
		return cfg, newLogger(cfg.LogLevel, cmd.ErrOrStderr()), nil
	}

	root.AddCommand(
		newSealCmd(load),
		newUnsealCmd(load),
		newVerifyWebhookCmd(load),
		newAuthenticateCmd(load),
	)
	return root
}

type configLoader func(*cobra.Command) (*config.Config, *slog.Logger, error)

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// readInput returns args[0] when given, otherwise all of stdin.
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		return []byte(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}
