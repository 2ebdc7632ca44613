package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sgdqbot/internal/app"
)

const stopTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "sgdqbot [server channel nick]",
		Short: "Chat bot that answers questions about the SGDQ schedule",
		Long: `sgdqbot keeps a copy of the Summer Games Done Quick schedule page and
answers .sgdq, .whenrunner and .whengame in IRC or Telegram.

Exactly three positional arguments override irc.server, irc.channels and
irc.nick; any other count is ignored.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), app.Options{ConfigPath: cfgPath, Args: args})
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (JSON or YAML); defaults apply without one")
	root.AddCommand(newCheckCmd(&cfgPath))
	return root
}

func newCheckCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check [server channel nick]",
		Short: "Validate the configuration and print the effective settings",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Check(app.Options{ConfigPath: *cfgPath, Args: args})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "config ok")
			fmt.Fprintf(out, "  transport: %s\n", cfg.Chat.Transport)
			if cfg.Chat.Transport == "irc" {
				fmt.Fprintf(out, "  irc:       %s %s as %s\n", cfg.IRC.Server, strings.Join(cfg.IRC.Channels, ","), cfg.IRC.Nick)
			}
			fmt.Fprintf(out, "  schedule:  %s every %s (UTC%s %s)\n",
				cfg.Schedule.URL, cfg.Schedule.Interval, cfg.Schedule.UTCOffset, cfg.Schedule.ZoneLabel)
			if cfg.Feed.Enabled {
				fmt.Fprintf(out, "  feed:      http://%s\n", cfg.Feed.Addr)
			}
			return nil
		},
	}
}

func run(parent context.Context, opts app.Options) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(opts)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return err
	}

	<-a.Done()
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
