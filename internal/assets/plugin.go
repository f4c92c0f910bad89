package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// rulesPlugin routes every file the bundler loads through the rule table.
// Files whose chain ends in the file step are emitted next to the bundle
// and replaced by their public URL.
type rulesPlugin struct {
	ctx        context.Context
	table      *rules.Table
	registry   *transform.Registry
	workDir    string
	publicPath string
	// cssDir is where stylesheets end up, url() references are made
	// relative to it.
	cssDir string

	mu      sync.Mutex
	emitted map[string]string
	files   map[string][]byte
	err     error
}

func newRulesPlugin(ctx context.Context, p *Pipeline, cssDir string) *rulesPlugin {
	return &rulesPlugin{
		ctx:        ctx,
		table:      p.config.Rules,
		registry:   p.options.Registry,
		workDir:    p.workDir,
		publicPath: p.config.Output.PublicPath,
		cssDir:     cssDir,
		emitted:    make(map[string]string),
		files:      make(map[string][]byte),
	}
}

func (r *rulesPlugin) plugin() api.Plugin {
	return api.Plugin{
		Name: "rules",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, r.onResolve)
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"}, r.onLoad)
		},
	}
}

// onResolve only handles url() tokens in stylesheets. Everything else is
// left to the bundler's own resolution.
func (r *rulesPlugin) onResolve(args api.OnResolveArgs) (api.OnResolveResult, error) {
	if args.Kind != api.ResolveCSSURLToken || isRemote(args.Path) {
		return api.OnResolveResult{}, nil
	}

	clean, suffix := splitSuffix(args.Path)
	abs := clean
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(args.ResolveDir, clean)
	}
	if _, err := os.Stat(abs); err != nil {
		return api.OnResolveResult{}, nil
	}

	name, err := r.emit(abs)
	if err != nil {
		return api.OnResolveResult{}, r.fail(err)
	}

	rel, err := filepath.Rel(filepath.FromSlash(r.cssDir), filepath.FromSlash(name))
	if err != nil {
		return api.OnResolveResult{}, r.fail(err)
	}

	return api.OnResolveResult{
		Path:     filepath.ToSlash(rel) + suffix,
		External: true,
	}, nil
}

func (r *rulesPlugin) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	rel := r.relPath(args.Path)

	entry, err := r.table.Resolve(rel)
	if err != nil {
		return api.OnLoadResult{}, r.fail(err)
	}

	if entry.Emits() {
		name, err := r.emit(args.Path)
		if err != nil {
			return api.OnLoadResult{}, r.fail(err)
		}

		literal, err := json.Marshal(r.publicPath + name)
		if err != nil {
			return api.OnLoadResult{}, r.fail(err)
		}

		contents := "export default " + string(literal) + ";\n"
		return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
	}

	data, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, r.fail(err)
	}

	out, err := r.registry.Run(r.ctx, entry.Use, transform.Asset{
		Path:     rel,
		Contents: data,
		Kind:     transform.KindFromPath(rel),
	})
	if err != nil {
		return api.OnLoadResult{}, r.fail(err)
	}

	loader, err := loaderFor(out)
	if err != nil {
		return api.OnLoadResult{}, r.fail(&transform.Error{Step: entry.Name, Path: rel, Err: err})
	}

	zerolog.Ctx(r.ctx).Debug().Str("path", rel).Str("rule", entry.Name).Msg("Loaded")

	contents := string(out.Contents)
	return api.OnLoadResult{
		Contents:   &contents,
		Loader:     loader,
		ResolveDir: filepath.Dir(args.Path),
	}, nil
}

// emit runs the chain of the rule matching abs and records the output under
// the rule's naming policy. Each source file is emitted once.
func (r *rulesPlugin) emit(abs string) (string, error) {
	r.mu.Lock()
	name, ok := r.emitted[abs]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	rel := r.relPath(abs)
	entry, err := r.table.Resolve(rel)
	if err != nil {
		return "", err
	}
	if !entry.Emits() {
		return "", &transform.Error{Step: entry.Name, Path: rel, Err: fmt.Errorf("rule does not emit files, chain is %v", entry.StepNames())}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}

	out, err := r.registry.Run(r.ctx, entry.Use, transform.Asset{
		Path:     rel,
		Contents: data,
		Kind:     transform.KindFromPath(rel),
	})
	if err != nil {
		return "", err
	}

	base, ext := naming.Split(rel)
	name = entry.Output.Name(base, ext, out.Contents)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitted[abs] = name
	r.files[name] = out.Contents

	zerolog.Ctx(r.ctx).Debug().Str("path", rel).Str("rule", entry.Name).Str("output", name).Msg("Emitted")
	return name, nil
}

// fail records the first error so the typed error survives the bundler,
// which only reports messages.
func (r *rulesPlugin) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
	return err
}

func (r *rulesPlugin) firstError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *rulesPlugin) relPath(abs string) string {
	rel, err := filepath.Rel(r.workDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func loaderFor(a transform.Asset) (api.Loader, error) {
	switch a.Kind {
	case transform.KindJS:
		if path.Ext(a.Path) == ".jsx" {
			return api.LoaderJSX, nil
		}
		return api.LoaderJS, nil
	case transform.KindCSS:
		if !a.Extract {
			return api.LoaderNone, errors.New("stylesheets must be extracted, add the extract-css step")
		}
		return api.LoaderCSS, nil
	case transform.KindJSON:
		return api.LoaderJSON, nil
	case transform.KindHTML:
		return api.LoaderText, nil
	default:
		return api.LoaderNone, fmt.Errorf("no loader for %s output", a.Kind)
	}
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "data:") ||
		strings.HasPrefix(p, "#") ||
		strings.HasPrefix(p, "//") ||
		strings.Contains(p, "://")
}

// splitSuffix separates a query or fragment from a referenced path, as used
// by font declarations such as font.woff2?v=1 or font.svg#icons.
func splitSuffix(p string) (string, string) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i], p[i:]
	}
	return p, ""
}
