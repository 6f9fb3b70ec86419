package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"playback-bridge/internal/bridge"
	"playback-bridge/internal/engine/sim"
	"playback-bridge/internal/platform/audiofocus"
	"playback-bridge/internal/platform/config"
	"playback-bridge/internal/platform/logger"
	"playback-bridge/internal/platform/metrics"
	"playback-bridge/internal/playback"
	"playback-bridge/internal/session"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	dbPath := config.GetEnv("BRIDGE_DB_PATH", "bridge.db")
	emitDiagnostics := config.GetEnvBool("BRIDGE_EMIT_DIAGNOSTICS", true)
	policy := bridge.ParseQualityPolicy(config.GetEnv("BRIDGE_QUALITY_POLICY", string(bridge.QualityPolicyEngineCap)))
	presetKey := config.GetEnv("BRIDGE_BITRATE_PRESET", bridge.DefaultBitratePreset.Key)
	videoCodecs := config.GetEnvList("BRIDGE_VIDEO_CODECS", []string{"hevc", "avc"})
	audioCodecs := config.GetEnvList("BRIDGE_AUDIO_CODECS", []string{"ac-3", "aac"})
	tickMS := config.GetEnvInt("BRIDGE_TICK_MS", 1000)

	log := logger.New(logLevel, logFormat)

	fallback, ok := bridge.LookupBitratePreset(presetKey)
	if !ok {
		log.Warn("unknown bitrate preset, using default", "preset", presetKey)
		fallback = bridge.DefaultBitratePreset
	}

	store, err := session.OpenSQLite(dbPath)
	if err != nil {
		log.Error("session store error", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	hub := playback.NewHub(log, met)
	recorder := session.NewRecorder(store, hub, log)
	registry := bridge.NewRegistry(log)

	simOpts := sim.DefaultOptions()
	simOpts.Tick = time.Duration(tickMS) * time.Millisecond
	simOpts.Logger = log

	facade := bridge.NewFacade(registry, bridge.FacadeConfig{
		NewEngine: sim.NewFactory(simOpts),
		EngineConfig: bridge.EngineConfig{
			VideoCodecPriority: videoCodecs,
			AudioCodecPriority: audioCodecs,
			Volume:             100,
		},
		Sink: recorder,
		Player: bridge.PlayerOptions{
			Logger:          log,
			Metrics:         met,
			AudioFocus:      audiofocus.New(log),
			QualityPolicy:   policy,
			EmitDiagnostics: emitDiagnostics,
		},
	})
	svc := playback.NewService(facade, store, recorder, fallback, log)
	h := playback.NewHandler(svc, hub, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetActivePlayers(registry.ActivePlayers())
			met.SetEventSubscribers(hub.Subscribers())
		}).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"db_path", dbPath,
		"quality_policy", string(policy),
		"bitrate_preset", fallback.Key,
		"emit_diagnostics", emitDiagnostics,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	// Destroying the players flushes their resume positions.
	registry.Close()
	if err := store.Close(); err != nil {
		log.Error("session store close error", "error", err)
	}

	log.Info("server stopped")
}
