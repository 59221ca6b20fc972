package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/adapters/http"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/app/orch"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/config"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/core"
	"github.com/100-hours-a-week/5-nemo-oceanAcademy-be-webrtc/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.CheckTLS(); err != nil {
		// No TLS material, no server. Same hard stop the deployment
		// scripts rely on.
		log.Fatal().Err(err).Msg("tls check failed")
	}

	engine, err := media.NewMediasoupEngine(media.WorkerConfig{
		WorkerBin:                       cfg.WorkerBin,
		LogLevel:                        cfg.WorkerLogLevel,
		LogTags:                         cfg.WorkerLogTags,
		ListenIP:                        cfg.ListenIP,
		AnnouncedIP:                     cfg.AnnouncedIP,
		RTCMinPort:                      cfg.RTCMinPort,
		RTCMaxPort:                      cfg.RTCMaxPort,
		MaxIncomingBitrate:              cfg.MaxIncomingBitrate,
		InitialAvailableOutgoingBitrate: cfg.InitialAvailableOutgoingBitrate,
	}, func() {
		// The worker is gone; nothing meaningful can be served once the
		// grace period for in-flight replies runs out.
		log.Error().Dur("grace", cfg.EngineGracePeriod).Msg("media engine died, exiting after grace period")
		time.Sleep(cfg.EngineGracePeriod)
		os.Exit(1)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}
	defer engine.Close()

	o := &orch.Orchestrator{
		Rooms:    app.NewRoomRegistry(),
		Sessions: app.NewSessionRegistry(),
		Fabric:   core.NewFabric(),
		Engine:   engine,
		Policy:   app.SimplePolicy{},
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("oceanacademy webrtc server started")
		if err := srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
