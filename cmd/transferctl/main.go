// transferctl drives one download end to end: create, add file, start,
// monitor to a terminal state, complete. With -remote it goes through the
// agent; otherwise it opens the store in process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"transfer-agent/internal/client"
	"transfer-agent/internal/config"
	"transfer-agent/internal/domain/model"
	"transfer-agent/internal/infra/logging"
	"transfer-agent/internal/native/sim"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", true, "development mode (console logs)")
	remote := flag.Bool("remote", false, "go through the agent instead of in-process")
	name := flag.String("name", "transferctl job", "job display name")
	src := flag.String("src", "", "source locator (URL)")
	dst := flag.String("dst", "", "destination path")
	flag.Parse()

	if *src == "" || *dst == "" {
		fmt.Fprintln(os.Stderr, "usage: transferctl -src <url> -dst </abs/path> [-remote]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var c *client.Client
	if *remote {
		c = client.NewRemote(cfg.Client, logger)
	} else {
		svc, err := sim.New(cfg.Agent.StorePath, sim.Options{}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open transfer service store")
		}
		defer svc.Close()
		go svc.Run(ctx, cfg.Agent.TickInterval)
		c = client.NewInProcess(svc, cfg.Client, logger)
	}
	defer c.Close()

	h, err := c.CreateJob(ctx, *name, model.Download)
	if err != nil {
		logger.Fatal().Err(err).Msg("create job")
	}
	logger.Info().Str("job_id", h.ID.String()).Msg("job created")

	if err := c.AddFile(ctx, h, *src, *dst); err != nil {
		logger.Fatal().Err(err).Msg("add file")
	}
	if err := c.Start(ctx, h); err != nil {
		logger.Fatal().Err(err).Msg("start job")
	}

	for snap := range c.Monitor(ctx, h) {
		logger.Info().
			Str("state", string(snap.State)).
			Int64("transferred", snap.BytesTransferred).
			Int64("total", snap.BytesTotal).
			Msg("progress")

		if snap.State == model.StateTransferred {
			if err := c.Complete(ctx, h); err != nil {
				logger.Fatal().Err(err).Msg("complete job")
			}
		}
		if snap.State.Terminal() {
			logger.Info().Str("state", string(snap.State)).Msg("job finished")
			if snap.State != model.StateAcknowledged {
				os.Exit(1)
			}
			return
		}
	}
}
