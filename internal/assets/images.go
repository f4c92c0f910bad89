package assets

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// compressImages runs the image compressors over every image in the
// compilation, emitted and copied alike.
func (p *Pipeline) compressImages(ctx context.Context, c *compilation) error {
	if p.images == nil {
		return errors.New("no image compressors configured")
	}

	results, err := p.images.CompressAll(ctx, c.files)

	metrics := telemetry.GetMetrics()
	for _, res := range results {
		format, _ := imagemin.FormatFromPath(res.Path)
		attrs := metric.WithAttributes(attribute.String("format", string(format)))

		switch {
		case res.Failure != nil:
			metrics.ImageFailures.Add(ctx, 1, attrs)
		case res.Cached:
			metrics.ImageCacheHits.Add(ctx, 1, attrs)
		default:
			metrics.ImagesCompressed.Add(ctx, 1, attrs)
		}
		metrics.ImageBytesSaved.Add(ctx, int64(res.Saved), attrs)

		if c.metadata != nil {
			if info, ok := c.metadata.Outputs[res.Path]; ok {
				info.Bytes = len(res.Contents)
				c.metadata.Outputs[res.Path] = info
			}
		}
	}

	failures := imagemin.Failures(results)
	c.failures = append(c.failures, failures...)

	zerolog.Ctx(ctx).Info().Int("images", len(results)).Int("failures", len(failures)).Msg("Compressed images")
	return err
}
