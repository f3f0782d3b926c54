package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/chatkernel/internal/admin"
	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/config"
	"github.com/keshon/chatkernel/internal/discord"
	"github.com/keshon/chatkernel/internal/kernel"
	"github.com/keshon/chatkernel/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	_ "github.com/keshon/chatkernel/internal/plugins/core"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog().Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err := cfg.ValidateDiscord(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bot exited with error")
	}
	log.Info().Msg("discord bot exited cleanly")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := kernel.New(cfg, log, kernel.WithRegisterer(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	bot, err := discord.New(discord.Config{
		Token:          cfg.DiscordToken,
		Prefix:         cfg.CommandPrefix,
		DeveloperID:    cfg.DeveloperID,
		GuildBlacklist: cfg.GuildBlacklist,
	}, k, logging.Component(log, "discord"))
	if err != nil {
		return err
	}
	if err := k.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })

	if cfg.AdminAddr != "" {
		srv := admin.New(cfg.AdminAddr, admin.Deps{
			Alerts:   k.Alerts,
			Monitor:  k.Monitor,
			Plugins:  k.Plugins,
			Cache:    k.Cache,
			Storage:  k.Storage,
			Gatherer: prometheus.DefaultGatherer,
			Log:      logging.Component(log, "admin"),
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.AlertChannelID != "" {
		fwd := discord.NewForwarder(discord.SessionSender(bot.Session()), cfg.AlertChannelID, alert.TypeError, logging.Component(log, "forwarder"))
		unsubscribe := k.Alerts.Subscribe(fwd.Push)
		defer unsubscribe()
		if err := k.Jobs.Start("alert-forwarder", fwd.Run); err != nil {
			return err
		}
	}

	err = g.Wait()
	log.Info().Msg("shutting down")
	stopErr := k.Stop(context.Background())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, stopErr)
}

func bootLog() *zerolog.Logger {
	l := logging.New(logging.Options{})
	return &l
}
