// Package config turns a build mode and a handful of options into the
// immutable description of a build: rules, optimization policy and stages.
package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wolfeidau/assetpipe/internal/mode"
	"github.com/wolfeidau/assetpipe/internal/naming"
	"github.com/wolfeidau/assetpipe/internal/optimization"
	"github.com/wolfeidau/assetpipe/internal/plugins"
	"github.com/wolfeidau/assetpipe/internal/rules"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// DevTool values.
const (
	DevToolSourceMap = "source-map"
	DevToolNone      = ""
)

type Entry struct {
	Name string `yaml:"name"`
	// Path is relative to the source root.
	Path string `yaml:"path"`
}

type Output struct {
	Path       string        `yaml:"path"`
	PublicPath string        `yaml:"publicPath"`
	Scripts    naming.Policy `yaml:"scripts"`
	// Chunks names split chunks. Unfingerprinted chunks get stable names
	// after bundling.
	Chunks naming.Policy `yaml:"chunks"`
}

// DevServer describes the development file server. It is carried as
// configuration only; this module never serves files.
type DevServer struct {
	Port               int    `yaml:"port"`
	StaticDir          string `yaml:"static"`
	HistoryAPIFallback bool   `yaml:"historyApiFallback"`
	Open               bool   `yaml:"open"`
	Compress           bool   `yaml:"compress"`
	Hot                bool   `yaml:"hot"`
}

// RuleSpec is the serialisable form of a rule.
type RuleSpec struct {
	Name    string       `yaml:"name"`
	Test    string       `yaml:"test"`
	Exclude string       `yaml:"exclude,omitempty"`
	Use     []rules.Step `yaml:"use,omitempty"`
	// Output is the sub directory for emitted files.
	Output string `yaml:"output,omitempty"`
}

// Options are the inputs of Build that do not derive from the mode.
type Options struct {
	Context    string
	Output     string
	PublicPath string
	Entries    []Entry
	Template   string
	AssetsDir  string
	CopyAssets bool
	CopyIgnore []string
	CleanKeep  []string
	Target     string
	DevServer  DevServer
	// Rules replaces the default rule table when non-empty.
	Rules []RuleSpec
}

// DefaultOptions mirrors the conventional project layout: sources in src/,
// output in app/.
func DefaultOptions() Options {
	return Options{
		Context:    "src",
		Output:     "app",
		Entries:    []Entry{{Name: "main", Path: "js/main.js"}},
		Template:   "index.html",
		AssetsDir:  "assets",
		CopyAssets: true,
		Target:     "es2015",
		DevServer: DevServer{
			Port:               3000,
			HistoryAPIFallback: true,
			Open:               true,
			Compress:           true,
			Hot:                true,
		},
	}
}

// Config is the complete, immutable description of one build invocation.
type Config struct {
	Mode         mode.Mode
	Context      string
	Entries      []Entry
	Output       Output
	Rules        *rules.Table
	Optimization optimization.Policy
	Plugins      []plugins.Stage
	DevTool      string
	Target       string
	DevServer    DevServer
}

// Build derives the configuration for m. It has no side effects.
func Build(m mode.Mode, opts Options) (Config, error) {
	if opts.Context == "" {
		return Config{}, configErr("context", errors.New("source root is required"))
	}
	if opts.Output == "" {
		return Config{}, configErr("output", errors.New("output root is required"))
	}
	if len(opts.Entries) == 0 {
		return Config{}, configErr("entries", errors.New("at least one entry is required"))
	}

	seen := make(map[string]bool, len(opts.Entries))
	for _, e := range opts.Entries {
		if e.Name == "" || e.Path == "" {
			return Config{}, configErr("entries", fmt.Errorf("entry %q needs a name and a path", e.Name))
		}
		if seen[e.Name] {
			return Config{}, configErr("entries", fmt.Errorf("duplicate entry %q", e.Name))
		}
		seen[e.Name] = true
	}

	table := rules.DefaultTable(m)
	if len(opts.Rules) > 0 {
		var err error
		table, err = compileRules(m, opts.Rules)
		if err != nil {
			return Config{}, err
		}
	}

	stages := plugins.Build(m, plugins.Options{
		Template:   opts.Template,
		AssetsDir:  opts.AssetsDir,
		CopyAssets: opts.CopyAssets,
		CopyIgnore: opts.CopyIgnore,
		CleanKeep:  opts.CleanKeep,
	})
	if err := plugins.Validate(m, stages); err != nil {
		return Config{}, configErr("plugins", err)
	}

	devTool := DevToolNone
	if m.IsDevelopment() {
		devTool = DevToolSourceMap
	}

	devServer := opts.DevServer
	if devServer.StaticDir == "" {
		devServer.StaticDir = opts.Output
	}

	target := opts.Target
	if target == "" {
		target = "es2015"
	}
	if _, err := transform.ParseTarget(target); err != nil {
		return Config{}, configErr("target", err)
	}

	return Config{
		Mode:    m,
		Context: opts.Context,
		Entries: append([]Entry(nil), opts.Entries...),
		Output: Output{
			Path:       opts.Output,
			PublicPath: opts.PublicPath,
			Scripts:    naming.ForMode(m, "js"),
			Chunks:     naming.ForMode(m, "js"),
		},
		Rules:        table,
		Optimization: optimization.Build(m),
		Plugins:      stages,
		DevTool:      devTool,
		Target:       target,
		DevServer:    devServer,
	}, nil
}

var knownSteps = map[string]bool{
	rules.StepHTML:       true,
	rules.StepCSS:        true,
	rules.StepExtractCSS: true,
	rules.StepSass:       true,
	rules.StepFile:       true,
	rules.StepBabel:      true,
}

func compileRules(m mode.Mode, specs []RuleSpec) (*rules.Table, error) {
	entries := make([]rules.Entry, 0, len(specs))
	for i, spec := range specs {
		field := fmt.Sprintf("rules[%d]", i)
		for _, s := range spec.Use {
			if !knownSteps[s.Name] {
				return nil, configErr(field, fmt.Errorf("unknown transform %q (known: %v)", s.Name, sortedKeys(knownSteps)))
			}
		}
		e, err := rules.Compile(spec.Name, spec.Test, spec.Exclude, spec.Use, naming.ForMode(m, spec.Output))
		if err != nil {
			return nil, configErr(field, err)
		}
		entries = append(entries, e)
	}

	table, err := rules.NewTable(entries...)
	if err != nil {
		return nil, configErr("rules", err)
	}
	return table, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
