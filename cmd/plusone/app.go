package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/assistant"
	"github.com/plusone-ai/plusone/internal/broadcast"
	"github.com/plusone-ai/plusone/internal/config"
	"github.com/plusone-ai/plusone/internal/frames"
	"github.com/plusone-ai/plusone/internal/library"
	"github.com/plusone-ai/plusone/internal/monitor"
	"github.com/plusone-ai/plusone/internal/observability"
	"github.com/plusone-ai/plusone/internal/reasoning"
	"github.com/plusone-ai/plusone/internal/server"
	"github.com/plusone-ai/plusone/internal/session"
	"github.com/plusone-ai/plusone/internal/stt"
	"github.com/plusone-ai/plusone/internal/telephony"
	"github.com/plusone-ai/plusone/internal/tts"
)

// app holds everything a command needs: the wired pipeline plus the HTTP
// surface that exposes it.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	bus        *broadcast.Broadcaster
	controller *session.Controller
	media      *telephony.MediaStream // nil unless telephony is wired
	dialer     *telephony.Dialer
	lib        *library.Library
	httpServer *http.Server
}

// buildApp wires the pipeline. telephonyMode selects the audio source: a
// dialed call's media stream, or local meeting capture. listenOnly keeps
// high-priority suggestions out of the call audio.
func buildApp(cfg *config.Config, telephonyMode, listenOnly bool) (*app, error) {
	logger := observability.GetLogger()
	bus := broadcast.New(cfg.SubscriberBufsize, logger)

	a := &app{cfg: cfg, logger: logger, bus: bus}

	var analyzer monitor.Analyzer
	if cfg.MonitorEnabled() {
		var contextBuilder reasoning.ContextBuilder
		if cfg.LibraryPath != "" {
			lib, err := library.New(cfg.LibraryPath, logger)
			if err != nil {
				return nil, fmt.Errorf("library: %w", err)
			}
			if err := lib.Watch(); err != nil {
				logger.Warn().Err(err).Msg("Library watcher unavailable, edits need a restart")
			}
			a.lib = lib
			contextBuilder = lib
		}
		analyzer = reasoning.NewClient(cfg, contextBuilder, logger)
		logger.Info().Msg("Monitor enabled")
	} else {
		logger.Info().Msg("Monitor disabled, transcription only")
	}

	var newSource session.SourceFactory
	var speak monitor.SpeakFunc

	if telephonyMode {
		if !cfg.TelephonyConfigured() {
			return nil, fmt.Errorf("telephony credentials not configured")
		}
		a.media = telephony.NewMediaStream(cfg, logger)
		a.dialer = telephony.NewDialer(cfg, logger)
		newSource = func() session.AudioSource {
			return session.NewTelephonyAudioSource(a.media, cfg)
		}
		if cfg.CartesiaAPIKey != "" && !listenOnly {
			responder := telephony.NewResponder(a.media, tts.NewCartesiaClient(cfg, logger), logger)
			speak = func(ctx context.Context, text string) {
				responder.Speak(ctx, text)
			}
		}
	} else {
		newSource = func() session.AudioSource {
			return session.NewMeetingAudioSource(frames.NewMeetingSource(cfg, logger), cfg)
		}
	}

	newSTT := func(opts stt.StreamOptions) stt.Client {
		return stt.NewDeepgramClient(cfg, opts, logger)
	}

	a.controller = session.NewController(cfg, bus, analyzer, speak, newSource, newSTT, logger)

	// The reasoning client answers chat questions when it is wired in.
	var answerer assistant.Answerer
	if ans, ok := analyzer.(assistant.Answerer); ok {
		answerer = ans
	}
	srv := server.New(cfg, a.controller, bus, a.media, answerer, logger)
	a.httpServer = srv.HTTPServer()
	return a, nil
}

// serveHTTP starts the HTTP server in the background.
func (a *app) serveHTTP() {
	go func() {
		a.logger.Info().Str("port", a.cfg.Port).Msg("HTTP server listening")
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
}

// waitForShutdown blocks until SIGINT or SIGTERM.
func waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

// shutdown stops any active session and the HTTP server.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.controller.Status().State == session.StateRecording {
		if result, err := a.controller.Stop(ctx); err != nil {
			a.logger.Error().Err(err).Int("entries", result.Entries).Msg("Session stop failed")
		} else {
			a.logger.Info().Str("caption", result.CaptionPath).Int("entries", result.Entries).Msg("Session stopped")
		}
	}

	if a.lib != nil {
		a.lib.Close()
	}
	a.bus.Close()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
}

// mediaStreamURL derives the websocket URL Twilio should stream to.
func mediaStreamURL(cfg *config.Config) (string, error) {
	if cfg.PublicURL == "" {
		return "", fmt.Errorf("PUBLIC_URL must be set for telephony (a tunnel or public host)")
	}
	base := strings.TrimSuffix(cfg.PublicURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/streams/telephony", nil
}
