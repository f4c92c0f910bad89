package assets

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/mode"
	"github.com/wolfeidau/assetpipe/internal/plugins"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// BuildMetadata is the bundler metafile with every path made relative to the
// output root.
type BuildMetadata struct {
	Outputs map[string]OutputInfo `json:"outputs"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint,omitempty"`
	CSSBundle  string       `json:"cssBundle,omitempty"`
	Imports    []ImportInfo `json:"imports"`
	// Inputs are the source modules bundled into the output, keyed by path
	// relative to the working directory.
	Inputs map[string]InputInfo `json:"inputs,omitempty"`
	Bytes  int                  `json:"bytes"`
}

type InputInfo struct {
	BytesInOutput int `json:"bytesInOutput"`
}

type ImportInfo struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// Import kinds used when walking chunk dependencies.
const (
	ImportStatement = "import-statement"
	DynamicImport   = "dynamic-import"
)

// EntryOutput is where the files of one configured entry ended up.
type EntryOutput struct {
	Name       string `json:"name"`
	Script     string `json:"script"`
	Stylesheet string `json:"stylesheet,omitempty"`
}

// EmittedAsset is one file written to the output root.
type EmittedAsset struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

// Report summarises one build invocation.
type Report struct {
	BuildID  string              `json:"buildId"`
	Mode     mode.Mode           `json:"mode"`
	Entries  []EntryOutput       `json:"entries"`
	Assets   []EmittedAsset      `json:"assets"`
	Failures []*imagemin.Failure `json:"failures,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// Pipeline runs builds for one configuration and keeps the metadata of the
// last successful build.
type Pipeline struct {
	config  config.Config
	options Options
	target  api.Target
	workDir string
	images  *imagemin.Minifier

	metadata *BuildMetadata
	entries  []EntryOutput
	mu       sync.RWMutex
}

// New creates a pipeline for cfg.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, errors.New("a transform registry is required")
	}

	target, err := transform.ParseTarget(cfg.Target)
	if err != nil {
		return nil, err
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:  cfg,
		options: opts,
		target:  target,
		workDir: workDir,
	}

	for _, stage := range cfg.Plugins {
		imageCfg, ok := stage.Config.(*plugins.ImageminConfig)
		if !ok {
			continue
		}

		var cache *imagemin.Cache
		if imageCfg.Cache {
			cache, err = imagemin.NewCache(opts.CacheDir, 0)
			if err != nil {
				return nil, err
			}
		}

		p.images, err = imagemin.New(*imageCfg, opts.Compressors, cache)
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s stage: %w", stage.Name, err)
		}
	}

	return p, nil
}
