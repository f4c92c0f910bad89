package assets

import (
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/config"
	"github.com/wolfeidau/assetpipe/internal/imagemin"
	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

// compilation is the in-memory output of one build. Stages rework it and
// nothing touches the output root until emit, except the clean stage.
type compilation struct {
	config   config.Config
	outDir   string
	files    map[string][]byte
	metadata *BuildMetadata
	entries  []*EntryOutput
	failures []*imagemin.Failure

	// stylesheets memoizes the final stylesheet path of each entry, shared
	// by the html and extract-css stages.
	stylesheets map[string]string
}

// outRel returns abs relative to the output root, with forward slashes.
func (c *compilation) outRel(abs string) (string, error) {
	rel, err := filepath.Rel(c.outDir, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output %s is outside of %s", abs, c.outDir)
	}
	return filepath.ToSlash(rel), nil
}

// matchEntries finds the bundler outputs of every configured entry.
func (c *compilation) matchEntries(entries []config.Entry, context string, workDir string) error {
	for _, e := range entries {
		input, err := filepath.Abs(filepath.Join(context, e.Path))
		if err != nil {
			return err
		}
		if rel, err := filepath.Rel(workDir, input); err == nil {
			input = rel
		}
		input = filepath.ToSlash(input)

		out := &EntryOutput{Name: e.Name}
		for outputPath, info := range c.metadata.Outputs {
			if info.EntryPoint == input && strings.HasSuffix(outputPath, ".js") {
				out.Script = outputPath
				out.Stylesheet = info.CSSBundle
				break
			}
		}
		if out.Script == "" {
			return fmt.Errorf("entry %q (%s) not found in metadata", e.Name, input)
		}

		c.entries = append(c.entries, out)
	}
	return nil
}

// nameEntries gives entry scripts their final names from the script naming
// policy. It runs after minimizers so fingerprints cover the final bytes.
func (c *compilation) nameEntries() error {
	for _, e := range c.entries {
		final := c.config.Output.Scripts.Name(e.Name, "js", c.files[e.Script])
		if err := c.rename(e.Script, final); err != nil {
			return err
		}
	}
	return nil
}

// nameChunks gives split chunks stable names when the chunk policy does not
// fingerprint them. A chunk is named after the module that created it, or
// "chunk" when it only holds shared code. Chunks sharing a name are numbered
// in the order of their inputs.
func (c *compilation) nameChunks() error {
	policy := c.config.Output.Chunks
	if policy.Fingerprint || c.metadata == nil {
		return nil
	}

	entryScripts := make(map[string]bool, len(c.entries))
	for _, e := range c.entries {
		entryScripts[e.Script] = true
	}

	groups := make(map[string][]string)
	for name, info := range c.metadata.Outputs {
		if path.Ext(name) != ".js" || entryScripts[name] {
			continue
		}
		base := "chunk"
		if info.EntryPoint != "" {
			base, _ = naming.Split(info.EntryPoint)
		}
		groups[base] = append(groups[base], name)
	}

	bases := make([]string, 0, len(groups))
	for base := range groups {
		bases = append(bases, base)
	}
	sort.Strings(bases)

	for _, base := range bases {
		chunks := groups[base]
		sort.Slice(chunks, func(i, j int) bool {
			return c.chunkKey(chunks[i]) < c.chunkKey(chunks[j])
		})

		for i, chunk := range chunks {
			name := base
			if len(chunks) > 1 {
				name = fmt.Sprintf("%s-%d", base, i+1)
			}
			stylesheet := c.metadata.Outputs[chunk].CSSBundle
			to := c.freeName(policy.Name(name, "js", nil))
			if err := c.rename(chunk, to); err != nil {
				return err
			}
			if stylesheet != "" {
				if err := c.rename(stylesheet, c.freeName(strings.TrimSuffix(to, ".js")+".css")); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// chunkKey orders chunks by the modules they were built from, which stay
// put across rebuilds while bundler hashes do not.
func (c *compilation) chunkKey(chunk string) string {
	info := c.metadata.Outputs[chunk]
	if info.EntryPoint != "" {
		return info.EntryPoint
	}

	inputs := make([]string, 0, len(info.Inputs))
	for input := range info.Inputs {
		inputs = append(inputs, input)
	}
	sort.Strings(inputs)
	return strings.Join(inputs, "\n")
}

// freeName returns name, numbered when an output already uses it.
func (c *compilation) freeName(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 2; ; i++ {
		if _, exists := c.files[candidate]; !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// rename moves an output, its source map and every metadata reference to it.
func (c *compilation) rename(from, to string) error {
	if from == to {
		return nil
	}
	if _, exists := c.files[to]; exists {
		return fmt.Errorf("cannot rename %s, %s already exists", from, to)
	}

	data, ok := c.files[from]
	if !ok {
		return fmt.Errorf("output %s not found", from)
	}
	delete(c.files, from)

	if sourceMap, ok := c.files[from+".map"]; ok {
		delete(c.files, from+".map")
		c.files[to+".map"] = sourceMap
		c.renameMetadata(from+".map", to+".map")

		data = []byte(strings.Replace(string(data),
			"sourceMappingURL="+path.Base(from)+".map",
			"sourceMappingURL="+path.Base(to)+".map", 1))
	}

	c.files[to] = data
	c.renameMetadata(from, to)

	if path.Ext(from) == ".js" && path.Dir(from) == path.Dir(to) {
		c.rewriteImports(path.Dir(from), path.Base(from), path.Base(to))
	}

	for _, e := range c.entries {
		if e.Script == from {
			e.Script = to
		}
		if e.Stylesheet == from {
			e.Stylesheet = to
		}
	}
	return nil
}

// rewriteImports points the relative imports of scripts in dir at a renamed
// sibling script.
func (c *compilation) rewriteImports(dir, from, to string) {
	for name, data := range c.files {
		if path.Ext(name) != ".js" || path.Dir(name) != dir {
			continue
		}
		for _, quote := range []string{`"`, "'"} {
			data = bytes.ReplaceAll(data, []byte(quote+"./"+from+quote), []byte(quote+"./"+to+quote))
		}
		c.files[name] = data
	}
}

func (c *compilation) renameMetadata(from, to string) {
	if c.metadata == nil {
		return
	}

	if info, ok := c.metadata.Outputs[from]; ok {
		delete(c.metadata.Outputs, from)
		info.Bytes = len(c.files[to])
		c.metadata.Outputs[to] = info
	}

	for key, info := range c.metadata.Outputs {
		if info.CSSBundle == from {
			info.CSSBundle = to
		}
		for i := range info.Imports {
			if !info.Imports[i].External && info.Imports[i].Path == from {
				info.Imports[i].Path = to
			}
		}
		c.metadata.Outputs[key] = info
	}
}

// extractStage returns the extract-css stage config, if assembled.
func (c *compilation) extractStage() (*plugins.ExtractCSSConfig, bool) {
	for _, s := range c.config.Plugins {
		if cfg, ok := s.Config.(*plugins.ExtractCSSConfig); ok {
			return cfg, true
		}
	}
	return nil, false
}

// stylesheetDir is the directory stylesheets are emitted to.
func (c *compilation) stylesheetDir() string {
	if cfg, ok := c.extractStage(); ok {
		return cfg.Filename.Dir
	}
	return c.config.Output.Scripts.Dir
}

// stylesheetName returns the final path of the stylesheet of e.
func (c *compilation) stylesheetName(e *EntryOutput) string {
	if name, ok := c.stylesheets[e.Name]; ok {
		return name
	}

	name := e.Stylesheet
	if cfg, ok := c.extractStage(); ok && e.Stylesheet != "" {
		name = cfg.Filename.Name(e.Name, "css", c.files[e.Stylesheet])
	}

	c.stylesheets[e.Name] = name
	return name
}

// extractCSS moves every stylesheet the bundler produced into the
// stylesheet directory. Entry stylesheets are named by the stage's naming
// policy, others keep their bundler names.
func (c *compilation) extractCSS(cfg *plugins.ExtractCSSConfig) error {
	for _, e := range c.entries {
		if e.Stylesheet == "" {
			continue
		}
		if err := c.rename(e.Stylesheet, c.stylesheetName(e)); err != nil {
			return err
		}
	}

	var rest []string
	for name := range c.files {
		if path.Ext(name) == ".css" && path.Dir(name) != path.Clean(cfg.Filename.Dir) {
			rest = append(rest, name)
		}
	}
	for _, name := range rest {
		if err := c.rename(name, path.Join(cfg.Filename.Dir, path.Base(name))); err != nil {
			return err
		}
	}
	return nil
}

func (c *compilation) entryOutputs() []EntryOutput {
	out := make([]EntryOutput, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	return out
}
