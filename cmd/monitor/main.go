package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proctor/internal/exam"
	"proctor/internal/monitor"
	"proctor/internal/platform/config"
	"proctor/internal/platform/httpclient"
	"proctor/internal/platform/httpserver"
	"proctor/internal/platform/logger"
	"proctor/internal/platform/metrics"
	"proctor/internal/token"
)

// main wires the observer-side monitoring client: the relay consumer, the
// roster poller, and the local dashboard server.
func main() {
	cfg := config.MonitorFromEnv()
	log := logger.New()

	if cfg.OlympiadID == "" || cfg.BearerToken == "" {
		log.Error("PROCTOR_OLYMPIAD_ID and PROCTOR_TOKEN are required")
		os.Exit(1)
	}
	claims, err := token.Parse(cfg.BearerToken)
	if err != nil {
		log.Error("invalid bearer token", "error", err)
		os.Exit(1)
	}
	if !token.CanMonitor(claims.Role) {
		log.Error("role may not join monitoring", "role", claims.Role)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	api := httpclient.New(cfg.APIBaseURL, cfg.BearerToken, nil)

	roster := monitor.NewRoster(cfg.OlympiadID, nil)
	relay := monitor.NewRelay(cfg.RelayURL, cfg.BearerToken, cfg.OlympiadID, roster, log, m)
	poller := monitor.NewPoller(exam.NewClient(api), roster, cfg.OlympiadID, config.RosterPoll, log, m)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	monitor.NewDashboard(roster, log).Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := httpserver.New(cfg.DashAddr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("relay stopped", "error", err)
		}
	}()
	go func() {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("roster poller stopped", "error", err)
		}
	}()
	go func() {
		log.Info("dashboard listening", "addr", cfg.DashAddr, "olympiad", cfg.OlympiadID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("dashboard server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
