package assets

import (
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// DefaultMetafile is the manifest written to the output root.
const DefaultMetafile = "meta.json"

// Options are the runtime collaborators of a Pipeline. The build itself is
// described by config.Config.
type Options struct {
	// Registry runs the transform chains named by the rule table.
	Registry *transform.Registry
	// Compressors builds the image compressors named by the imagemin stage.
	Compressors map[string]imagemin.Factory
	// CacheDir keeps compressed images between builds. Empty keeps them in
	// memory for the lifetime of the Pipeline.
	CacheDir string
	// Metafile is relative to the output root. Empty disables the manifest.
	Metafile string
}

// DefaultOptions returns options with the manifest enabled. Registry and
// Compressors must still be set.
func DefaultOptions() Options {
	return Options{
		Metafile: DefaultMetafile,
	}
}
