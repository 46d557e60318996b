package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/tensorctl/internal/config"
	"github.com/danmuck/tensorctl/internal/core"
	"github.com/danmuck/tensorctl/internal/device"
	"github.com/danmuck/tensorctl/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()

	configPath := flag.String("config", "cmd/tensorctl/config.toml", "path to tensorctl config")
	ordinal := flag.Int("device", -1, "device ordinal to query")
	all := flag.Bool("all", false, "query every present device")
	memOnly := flag.Bool("mem", false, "print only the minimum available device memory")
	find := flag.Int("find", -1, "print the first present ordinal at or above this value")
	genConfig := flag.String("gen-config", "", "write a config template of this kind (daemon|runtime) and exit")
	output := flag.String("output", "", "output path for -gen-config")
	force := flag.Bool("force", false, "overwrite an existing file with -gen-config")
	flag.Parse()

	if *genConfig != "" {
		target := *output
		if target == "" {
			target = "cmd/tensord/config.toml"
		}
		if err := config.WriteTemplate(target, *genConfig, *force); err != nil {
			log.Fatal().Err(err).Msg("failed to write config template")
		}
		log.Info().Str("kind", *genConfig).Str("path", target).Msg("wrote config template")
		return
	}

	cfg, err := loadQueryConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tensorctl config")
	}
	if *ordinal >= 0 {
		cfg.Device = *ordinal
	}
	if *all {
		cfg.All = true
	}
	if *memOnly {
		cfg.MemOnly = true
	}

	mode, err := core.ParseMode(cfg.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("bad mode")
	}
	opts := core.DefaultOptions()
	opts.Mode = mode
	ctx := core.New(device.Probe(), opts)
	defer ctx.Close()

	if *find >= 0 {
		fmt.Println(ctx.FindDevice(*find))
		return
	}

	if cfg.MemOnly {
		fmt.Println(device.MemFmt(ctx.MinAvailableDeviceMemory()))
		return
	}

	ordinals := []int{cfg.Device}
	if cfg.All {
		ordinals = ordinals[:0]
		for i := 0; i < ctx.DeviceCount(); i++ {
			ordinals = append(ordinals, i)
		}
	}

	failed := false
	for _, o := range ordinals {
		report, err := ctx.DeviceQuery(o)
		if err != nil {
			log.Error().Err(err).Int("device", o).Msg("device query failed")
			failed = true
			continue
		}
		fmt.Println(report)
	}
	if failed {
		os.Exit(1)
	}
}
