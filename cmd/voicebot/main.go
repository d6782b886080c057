package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"domme-voice/internal/config"
	"domme-voice/internal/discord"
	"domme-voice/internal/logging"
	"domme-voice/internal/music/orchestrator"
	"domme-voice/internal/music/resolver"
	"domme-voice/internal/music/sources/radio"
	"domme-voice/internal/music/sources/soundcloud"
	"domme-voice/internal/music/sources/youtube"
	"domme-voice/internal/music/stream"
	"domme-voice/internal/music/voice"
	"domme-voice/internal/storage"
	"domme-voice/pkg/retrylimit"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const appName = "domme-voice"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logFile := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logFile.Close()

	log.Info().Str("app", appName).Msg("Starting voice bot...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(ctx, cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("failed to open storage")
	}
	defer store.Close()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord session")
	}

	ffmpeg := stream.FFmpeg{Path: cfg.FFmpegPath}
	yt, err := youtube.New(youtube.Options{ProxyURL: cfg.ProxyURL, FFmpeg: ffmpeg})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up YouTube source")
	}

	res := resolver.New(resolver.Options{
		StreamTimeout:  cfg.StreamTimeout,
		StreamAttempts: cfg.StreamAttempts,
		Limiter:        retrylimit.NewAdaptiveLimiter(5, 0.5, 10, 0.5, 0.5),
	},
		yt,
		soundcloud.New(soundcloud.Options{ProxyURL: cfg.ProxyURL, FFmpeg: ffmpeg}),
		radio.New(ffmpeg),
	)

	voices := voice.NewManager(voice.NewDiscordTransport(dg), voice.Options{
		JoinTimeout:     cfg.JoinTimeout,
		ReconnectWindow: cfg.ReconnectWindow,
	})

	orch := orchestrator.New(res, voices, orchestrator.Options{
		StateTimeout:   cfg.StateTimeout,
		MaxQueueLength: cfg.MaxQueueLength,
		EnqueueRate:    rate.Limit(cfg.EnqueueRate),
		EnqueueBurst:   cfg.EnqueueBurst,
		DefaultVolume:  &cfg.DefaultVolume,
		Prefs:          store,
	})

	bot := discord.NewBot(dg, orch, voices, store)

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Stringer("signal", s).Msg("Received signal, shutting down...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Discord bot error")
		}
		cancel()
	}

	log.Info().Msg("Voice bot exited cleanly")
}
