package commands

import (
	"context"

	"github.com/wolfeidau/assetpipe/internal/imagemin/vips"
)

type BuildCmd struct {
	Project ProjectFlags `embed:""`
	Runtime RuntimeFlags `embed:""`
}

func (b *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, log := setupLogger(ctx, globals)

	shutdown := b.Runtime.setupTelemetry(ctx, globals)
	defer shutdown()

	cfg, err := b.Project.Load()
	if err != nil {
		return err
	}

	log.Info().Str("version", globals.Version).Str("mode", cfg.Mode.String()).Msg("Starting build")

	p, release, err := b.Runtime.newPipeline(cfg)
	if err != nil {
		return err
	}
	defer release()
	defer vips.Shutdown()

	report, err := p.Build(ctx)
	if err != nil {
		return err
	}

	logReport(log, report)
	return nil
}
