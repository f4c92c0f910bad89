package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the build instruments.
type Metrics struct {
	BuildsTotal       metric.Int64Counter
	BuildErrorsTotal  metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	StageDuration     metric.Float64Histogram
	RebuildsTotal     metric.Int64Counter
	AssetsEmitted     metric.Int64Counter
	AssetBytesEmitted metric.Int64Counter

	ImagesCompressed metric.Int64Counter
	ImageFailures    metric.Int64Counter
	ImageBytesSaved  metric.Int64Counter
	ImageCacheHits   metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, creating the
// instruments from the global meter provider on first use.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.total",
		metric.WithDescription("Total number of builds started"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"assetpipe.builds.errors.total",
		metric.WithDescription("Total number of builds that failed"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"assetpipe.builds.duration",
		metric.WithDescription("Duration of a complete build"),
		metric.WithUnit("ms"),
	)

	m.StageDuration, _ = meter.Float64Histogram(
		"assetpipe.stages.duration",
		metric.WithDescription("Duration of a single build stage"),
		metric.WithUnit("ms"),
	)

	m.RebuildsTotal, _ = meter.Int64Counter(
		"assetpipe.watch.rebuilds.total",
		metric.WithDescription("Total number of rebuilds triggered by file changes"),
		metric.WithUnit("{build}"),
	)

	m.AssetsEmitted, _ = meter.Int64Counter(
		"assetpipe.assets.emitted.total",
		metric.WithDescription("Total number of files written to the output root"),
		metric.WithUnit("{file}"),
	)

	m.AssetBytesEmitted, _ = meter.Int64Counter(
		"assetpipe.assets.emitted.bytes",
		metric.WithDescription("Total bytes written to the output root"),
		metric.WithUnit("By"),
	)

	m.ImagesCompressed, _ = meter.Int64Counter(
		"assetpipe.images.compressed.total",
		metric.WithDescription("Total number of images passed through a compressor"),
		metric.WithUnit("{image}"),
	)

	m.ImageFailures, _ = meter.Int64Counter(
		"assetpipe.images.failures.total",
		metric.WithDescription("Total number of images that failed to compress"),
		metric.WithUnit("{image}"),
	)

	m.ImageBytesSaved, _ = meter.Int64Counter(
		"assetpipe.images.saved.bytes",
		metric.WithDescription("Total bytes removed by image compression"),
		metric.WithUnit("By"),
	)

	m.ImageCacheHits, _ = meter.Int64Counter(
		"assetpipe.images.cache.hits.total",
		metric.WithDescription("Total number of compressed images served from cache"),
		metric.WithUnit("{image}"),
	)

	return m
}
