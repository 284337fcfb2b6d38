package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "modbot",
		Short:         "Moderation bot with a resilient command dispatch core",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the settings document (default $BOT_CONFIG or config.json)")

	root.AddCommand(
		&cobra.Command{
			Use:   "bot",
			Short: "Connect to the chat platform and serve commands",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return logged(runApp(cmd.Context(), configPath, false))
			},
		},
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot together with the health and OAuth web server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return logged(runApp(cmd.Context(), configPath, true))
			},
		},
		&cobra.Command{
			Use:   "commands",
			Short: "Print the registered command catalog",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return printCommands(cmd.OutOrStdout(), configPath)
			},
		},
	)

	return root
}

func logged(err error) error {
	if err != nil {
		log.Error().Err(err).Msg("modbot stopped")
		return fmt.Errorf("modbot: %w", err)
	}

	log.Info().Msg("modbot stopped")
	return nil
}
