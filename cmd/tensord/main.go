package main

import (
	"flag"

	"github.com/danmuck/tensorctl/internal/config"
	"github.com/danmuck/tensorctl/internal/core"
	"github.com/danmuck/tensorctl/internal/device"
	"github.com/danmuck/tensorctl/internal/logging"
	"github.com/danmuck/tensorctl/internal/status"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()

	configPath := flag.String("config", "cmd/tensord/config.toml", "path to daemon config")
	flag.Parse()

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load daemon config")
	}
	log.Info().Str("path", *configPath).Msg("loaded daemon config")

	ctx, err := buildContext(cfg.Runtime)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build runtime context")
	}
	defer ctx.Close()

	log.Info().
		Str("mode", ctx.Mode().String()).
		Ints("devices", ctx.DeviceSet()).
		Int("root_device", ctx.RootDevice()).
		Msg("runtime context ready")

	server := status.New(cfg.Status.Name, cfg.Status.Addr, cfg.Status.CorsOrigins, ctx)
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("status server stopped")
	}
}

func buildContext(cfg config.RuntimeConfig) (*core.Context, error) {
	mode, err := core.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	opts := core.DefaultOptions()
	opts.Mode = mode
	opts.RootDevice = cfg.RootDevice
	opts.Devices = cfg.Devices
	opts.EnableDNN = cfg.EnableDNN
	opts.WorkspaceLimit = cfg.WorkspaceLimitMB << 20
	ctx := core.New(device.Probe(), opts)

	if cfg.RootSeed >= 0 {
		ctx.SetRootSeed(uint64(cfg.RootSeed))
	}
	ctx.SetSolverCount(cfg.SolverCount)
	return ctx, nil
}
