package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proctor/internal/agent"
	"proctor/internal/capture"
	"proctor/internal/platform/config"
	"proctor/internal/platform/httpclient"
	"proctor/internal/platform/logger"
	"proctor/internal/platform/metrics"
	platformredis "proctor/internal/platform/redis"
	"proctor/internal/session"
)

// main wires the student-side proctoring agent: config, storage, capture
// pipelines, and the attempt runner. All exam logic lives in internal
// packages.
func main() {
	cfg := config.AgentFromEnv()
	log := logger.New()

	if cfg.OlympiadID == "" || cfg.BearerToken == "" {
		log.Error("PROCTOR_OLYMPIAD_ID and PROCTOR_TOKEN are required")
		os.Exit(1)
	}

	store, cleanup, err := newStateStore(cfg)
	if err != nil {
		log.Error("state store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	api := httpclient.New(cfg.APIBaseURL, cfg.BearerToken, nil)
	gate := capture.NewGate(log,
		capture.NewCameraSource(cfg.CameraDevice, log),
		capture.NewScreenSource(cfg.ScreenDisplay, log))

	runner := agent.New(cfg, log, m, api, store, gate, promptConsent)
	runner.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting proctoring agent", "olympiad", cfg.OlympiadID, "api", cfg.APIBaseURL)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent stopped", "error", err)
		os.Exit(1)
	}
}

// newStateStore picks Redis when configured, otherwise per-user files.
func newStateStore(cfg config.Agent) (session.StateStore, func(), error) {
	if cfg.RedisURL != "" {
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := session.NewRedisStateStore(client.Client, 24*time.Hour)
		return store, func() { client.Close() }, nil
	}
	store, err := session.NewFileStateStore(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

// promptConsent shows the proctoring disclosure on the terminal and waits for
// an explicit yes.
func promptConsent(disclosure []string) bool {
	fmt.Println("This exam is proctored. By continuing you accept:")
	for _, line := range disclosure {
		fmt.Println("  - " + line)
	}
	fmt.Print("Type 'yes' to continue: ")

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}
