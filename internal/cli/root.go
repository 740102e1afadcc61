// Package cli exposes the bot's commands.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/boddenberg/pqrs-intake-bot/internal/app"
	"github.com/boddenberg/pqrs-intake-bot/internal/config"
	"github.com/boddenberg/pqrs-intake-bot/internal/infra/observability"
	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRoot builds the pqrsbot command tree.
func NewRoot(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "pqrsbot",
		Short:         "WhatsApp PQRS intake bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(cfg, logger))
	root.AddCommand(newSweepCommand(cfg, logger))
	root.AddCommand(newStatsCommand(cfg, logger))
	root.AddCommand(newHashPasswordCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger.Info("configuration loaded",
				zap.Int("port", cfg.Port),
				zap.String("log_level", cfg.LogLevel),
				zap.String("data_file", cfg.DataFile),
				zap.Bool("whatsapp", cfg.WhatsAppConfigured()),
				zap.Bool("admin_api", cfg.AdminConfigured()),
				zap.Duration("sink_timeout", cfg.SinkTimeout),
				zap.Bool("sweep_on_startup", cfg.SweepOnStartup),
				zap.String("digest_cron", cfg.DigestCron),
			)

			shutdown, err := observability.InitTracer(ctx, cfg.AppName, cfg.OTLPEndpoint)
			if err != nil {
				return fmt.Errorf("init tracer: %w", err)
			}
			defer shutdown(context.Background())

			a := app.New(cfg, logger)
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newSweepCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-attempt pending chat alerts once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a := app.New(cfg, logger)
			defer a.Close()
			return printJSON(cmd, a.Notifier.SweepPending(ctx))
		},
	}
}

func newStatsCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print record statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app.New(cfg, logger)
			defer a.Close()
			return printJSON(cmd, a.Stats.Stats(cmd.Context()))
		},
	}
}

func newHashPasswordCommand() *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			switch {
			case fromStdin:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			case len(args) == 1:
				password = args[0]
			default:
				return errors.New("provide a password argument or --stdin")
			}

			hash, err := service.HashPassword(password)
			if err != nil {
				return err
			}
			cmd.Println(hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the password from standard input")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(app.Version)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
