package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chris/arcana/internal/discord"
	"github.com/chris/arcana/internal/httpapi"
	"github.com/chris/arcana/internal/logger"
	"github.com/chris/arcana/internal/scheduler"
)

func init() {
	var noHTTP bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the midnight scheduler and, if configured, the Discord bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), !noHTTP)
		},
	}
	serveCmd.Flags().BoolVar(&noHTTP, "no-http", false, "skip the HTTP API")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "bot",
		Short: "Run the Discord bot and scheduler without the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), false)
		},
	})
}

func serve(parent context.Context, withHTTP bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp("server")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.LoadAll(ctx); err != nil {
		a.log.Warn().Err(err).Msg("loading journeys")
	}

	var dmSend func(userID, content string) error
	if a.cfg.DiscordToken != "" {
		bot, err := discord.NewBot(a.cfg.DiscordToken, a.console, a.svc, logger.New("discord"))
		if err != nil {
			return err
		}
		defer bot.Close()
		dmSend = bot.SendDM
	}

	sched := scheduler.New(a.svc, a.cfg.DiscordWebhook, dmSend, logger.New("scheduler"))
	sched.Tick = a.cfg.TickInterval
	sched.Start(ctx)
	defer sched.Stop()

	errc := make(chan error, 1)
	var srv *http.Server
	if withHTTP {
		srv = httpapi.New(a.svc, a.oracle, logger.New("http")).Server(ctx, a.cfg.HTTPAddr)
		go func() {
			a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	a.log.Info().Msg("running. Press Ctrl+C to exit.")
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	a.log.Info().Msg("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}
