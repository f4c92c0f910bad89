package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/imagemin/vips"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"github.com/wolfeidau/assetpipe/internal/watch"
)

type WatchCmd struct {
	Project  ProjectFlags  `embed:""`
	Runtime  RuntimeFlags  `embed:""`
	Debounce time.Duration `help:"Quiet period before rebuilding." default:"150ms"`
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := setupLogger(ctx, globals)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := w.Runtime.setupTelemetry(ctx, globals)
	defer shutdown()

	cfg, err := w.Project.Load()
	if err != nil {
		return err
	}

	p, release, err := w.Runtime.newPipeline(cfg)
	if err != nil {
		return err
	}
	defer func() { release() }()
	defer vips.Shutdown()

	build := func(ctx context.Context, p *assets.Pipeline) error {
		report, err := p.Build(ctx)
		if err != nil {
			return err
		}
		logReport(log, report)
		return nil
	}

	// a broken first build still starts the watcher so the next save can fix it
	if err := build(ctx, p); err != nil {
		log.Error().Err(err).Msg("Build failed")
	}

	watchCfg := watch.DefaultConfig()
	watchCfg.Paths = []string{cfg.Context}
	watchCfg.Ignore = []string{cfg.Output.Path}
	watchCfg.Debounce = w.Debounce

	configFile, _ := filepath.Abs(configFileOr(w.Project.Config))
	if _, err := os.Stat(configFile); err == nil {
		watchCfg.Paths = append(watchCfg.Paths, configFile)
	}
	if w.Runtime.CacheDir != "" {
		watchCfg.Ignore = append(watchCfg.Ignore, w.Runtime.CacheDir)
	}

	watcher, err := watch.New(watchCfg)
	if err != nil {
		return err
	}

	return watcher.Watch(ctx, func(ctx context.Context, changed []string) error {
		log.Info().Strs("changed", changed).Msg("Rebuilding")
		telemetry.GetMetrics().RebuildsTotal.Add(ctx, 1)

		if slices.Contains(changed, configFile) {
			cfg, err := w.Project.Load()
			if err != nil {
				return err
			}
			next, nextRelease, err := w.Runtime.newPipeline(cfg)
			if err != nil {
				return err
			}
			release()
			p, release = next, nextRelease
			log.Info().Str("config", configFile).Msg("Reloaded configuration")
		}

		return build(ctx, p)
	})
}
