// Command voicebridge runs the voice-channel bridge: it captures
// speech, transcribes it, forwards it to a chat-completions agent, and
// speaks the streamed reply back into the channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaywire/voicebridge/internal/alert"
	"github.com/relaywire/voicebridge/internal/alertsrv"
	"github.com/relaywire/voicebridge/internal/audio"
	"github.com/relaywire/voicebridge/internal/brain"
	"github.com/relaywire/voicebridge/internal/config"
	"github.com/relaywire/voicebridge/internal/gate"
	"github.com/relaywire/voicebridge/internal/handoff"
	"github.com/relaywire/voicebridge/internal/playback"
	"github.com/relaywire/voicebridge/internal/session"
	"github.com/relaywire/voicebridge/internal/stt"
	"github.com/relaywire/voicebridge/internal/stt/deepgram"
	"github.com/relaywire/voicebridge/internal/stt/vosk"
	"github.com/relaywire/voicebridge/internal/tts"
	"github.com/relaywire/voicebridge/internal/tts/elevenlabs"
	"github.com/relaywire/voicebridge/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.LogLevel, cfg.LogFormat)
	log.Info().Msg("starting voicebridge")

	diag, err := session.NewDiagnosticStore(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize diagnostic store")
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transcriber")
	}
	synth, err := buildSynthesizer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build synthesizer")
	}

	adapter, err := voice.New(cfg, transcriber)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build voice adapter")
	}
	player := voice.NewPlayer(adapter)
	pq := playback.New(player)
	segmenter := audio.NewSegmenter(pq)
	adapter.SetSegmenter(segmenter)

	convos := session.NewConversationStore(cfg.HistoryCap, cfg.ConversationIdleTTL, diag)
	router := handoff.New(adapter)
	brainClient := brain.New(cfg.BrainURL, cfg.BrainToken, cfg.BrainModel, cfg.BrainTimeout)
	g := gate.New(cfg.WakeWordEnabled, cfg.WakeWordPhrases, cfg.ConversationWindow)
	inbox := alert.New(alert.DefaultCap, alert.DefaultTTL)

	mgr := session.NewManager(convos, pq, brainClient, synth.Synthesize, router, func(speakerID string) {
		g.MarkAssistantResponded(speakerID, time.Now())
	}, cfg.StreamingTTSEnabled)
	handle := session.NewHandle(cfg, g, convos, pq, router, inbox, diag, mgr)
	adapter.SetHandle(handle)

	alertServer := alertsrv.New(cfg.BindAddress, cfg.AlertWebhookPort, cfg.AlertWebhookToken, inbox, adapter)
	go func() {
		if err := alertServer.Serve(); err != nil {
			log.Error().Err(err).Msg("alert server stopped unexpectedly")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	if err := adapter.Start(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to start voice adapter")
	}
	go pruneIdleConversations(ctx, convos, cfg.ConversationIdleTTL)
	go logMetrics(ctx, mgr, pq)

	log.Info().Msg("voicebridge is running, press ctrl+c to exit")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	mgr.CancelAll()
	pq.Close()
	cancel()

	done := make(chan error, 1)
	go func() { done <- adapter.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("error during voice adapter shutdown")
		}
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timeout exceeded, forcing exit")
	}

	if err := alertServer.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("error shutting down alert server")
	}
	if err := transcriber.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing transcriber")
	}

	log.Info().Msg("voicebridge stopped")
}

// pruneIdleConversations periodically drops per-speaker history that has
// aged past the idle TTL, so a long-running process doesn't accumulate
// history for speakers who never come back.
func pruneIdleConversations(ctx context.Context, convos *session.ConversationStore, idleTTL time.Duration) {
	if idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if n := convos.PruneIdle(now); n > 0 {
				log.Debug().Int("count", n).Msg("pruned idle conversation history")
			}
		case <-ctx.Done():
			return
		}
	}
}

// metricsInterval bounds how often the in-process counters (A7) are
// logged — frequent enough to be useful in a live tail, cheap enough to
// not spam a long-running process.
const metricsInterval = 30 * time.Second

// logMetrics periodically logs the lightweight in-process counters A7
// calls for (active tasks, queue depth). No external metrics sink is in
// scope (Non-goals) — this is deliberately just a structured log line.
func logMetrics(ctx context.Context, mgr *session.Manager, pq *playback.Queue) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			log.Debug().
				Int("active_tasks", mgr.ActiveCount()).
				Int("queue_depth", pq.Len()).
				Msg("metrics")
		case <-ctx.Done():
			return
		}
	}
}

func buildTranscriber(cfg *config.Config) (*stt.Cascade, error) {
	var providers []stt.Transcriber
	switch cfg.STTProvider {
	case "vosk":
		p, err := vosk.New(cfg.VoskModelPath, 16000)
		if err != nil {
			return nil, fmt.Errorf("failed to build vosk transcriber: %w", err)
		}
		providers = append(providers, p)
	case "deepgram":
		providers = append(providers, deepgram.New(cfg.DeepgramKey, "nova-2", true))
	default:
		return nil, fmt.Errorf("unsupported STT_PROVIDER: %s", cfg.STTProvider)
	}
	return stt.NewCascade(providers, nil), nil
}

func buildSynthesizer(cfg *config.Config) (*tts.Cascade, error) {
	var providers []tts.Synthesizer
	switch cfg.TTSProvider {
	case "elevenlabs":
		providers = append(providers, elevenlabs.New(cfg.TTSKey, cfg.TTSVoice))
	default:
		return nil, fmt.Errorf("unsupported TTS_PROVIDER: %s", cfg.TTSProvider)
	}
	return tts.NewCascade(providers...), nil
}

func setupLogging(level, format string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
