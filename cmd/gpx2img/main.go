package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/electronjoe/gpx2img/internal/config"
	"github.com/electronjoe/gpx2img/internal/geotag"
	"github.com/electronjoe/gpx2img/internal/logging"
	"github.com/electronjoe/gpx2img/internal/metrics"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// 1. Parse flags and read config
	flags := config.Flags("gpx2img")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log := logging.New("info", os.Stderr)
		log.Error().Err(err).Msg("Failed to read config")
		return 1
	}
	log := logging.New(cfg.LogLevel, os.Stderr)

	opts, err := geotag.OptionsFromConfig(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Invalid options")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 2. Index tracks and tag photos
	rec := metrics.New()
	_, runErr := geotag.NewRunner(opts, log, rec).Run(ctx)

	// 3. Report the run, even a failed one
	if cfg.Pushgateway != "" {
		pushCtx, cancelPush := context.WithTimeout(context.Background(), 10*time.Second)
		if err := rec.Push(pushCtx, cfg.Pushgateway, "gpx2img"); err != nil {
			log.Warn().Err(err).Msg("Failed to push metrics")
		}
		cancelPush()
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("Geotagging aborted")
		return 1
	}
	return 0
}
