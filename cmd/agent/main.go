package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transfer-agent/internal/agent"
	"transfer-agent/internal/backend"
	"transfer-agent/internal/config"
	"transfer-agent/internal/infra/logging"
	"transfer-agent/internal/infra/metrics"
	"transfer-agent/internal/native/sim"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "development mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Native service (simulated store) ----
	svc, err := sim.New(cfg.Agent.StorePath, sim.Options{}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open transfer service store")
	}
	defer svc.Close()
	go svc.Run(ctx, cfg.Agent.TickInterval)

	// ---- Control socket ----
	srv := agent.New(cfg.Agent, backend.NewLocal(svc, logger), logger)
	if err := srv.Listen(); err != nil {
		logger.Fatal().Err(err).Msg("bind control socket")
	}
	go func() {
		if err := srv.Serve(ctx); err != nil {
			logger.Error().Err(err).Msg("agent serve")
		}
	}()

	// ---- Admin HTTP (health + metrics) ----
	var admin *agent.AdminServer
	if cfg.Agent.AdminPort > 0 {
		admin = agent.NewAdminServer(cfg.Agent.AdminPort, logger)
		go func() {
			if err := admin.Start(); err != nil {
				logger.Error().Err(err).Msg("admin HTTP")
			}
		}()
	}

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	if admin != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = admin.Shutdown(shCtx)
	}
}
