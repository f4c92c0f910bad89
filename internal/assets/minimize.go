package assets

import (
	"fmt"
	"path"
	"sort"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpipe/internal/optimization"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// minimize applies the named minimizer to every output it handles.
func (p *Pipeline) minimize(name string, c *compilation) error {
	var (
		ext    string
		loader api.Loader
		format api.Format
	)
	switch name {
	case optimization.CSSMinimizer:
		ext, loader, format = ".css", api.LoaderCSS, api.FormatDefault
	case optimization.JSMinimizer:
		ext, loader, format = ".js", api.LoaderJS, api.FormatESModule
	default:
		return fmt.Errorf("unknown minimizer %q", name)
	}

	files := make([]string, 0, len(c.files))
	for file := range c.files {
		if path.Ext(file) == ext {
			files = append(files, file)
		}
	}
	sort.Strings(files)

	for _, file := range files {
		result := api.Transform(string(c.files[file]), api.TransformOptions{
			Loader:            loader,
			Format:            format,
			Target:            p.target,
			MinifyWhitespace:  true,
			MinifyIdentifiers: true,
			MinifySyntax:      true,
			Sourcefile:        file,
			LogLevel:          api.LogLevelSilent,
		})
		if len(result.Errors) > 0 {
			return &transform.Error{Step: name, Path: file, Err: transform.MessagesError(result.Errors)}
		}

		c.files[file] = result.Code
		if info, ok := c.metadata.Outputs[file]; ok {
			info.Bytes = len(result.Code)
			c.metadata.Outputs[file] = info
		}
	}
	return nil
}
