package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/assetpipe/internal/mode"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "assetpipe.yaml"

// File is the YAML overlay applied on top of DefaultOptions. Unset fields
// keep their defaults.
type File struct {
	Mode       string         `yaml:"mode"`
	Context    string         `yaml:"context"`
	Output     string         `yaml:"output"`
	PublicPath *string        `yaml:"publicPath"`
	Entries    []Entry        `yaml:"entries"`
	Template   string         `yaml:"template"`
	Assets     string         `yaml:"assets"`
	CopyAssets *bool          `yaml:"copyAssets"`
	CopyIgnore []string       `yaml:"copyIgnore"`
	CleanKeep  []string       `yaml:"cleanKeep"`
	Target     string         `yaml:"target"`
	Rules      []RuleSpec     `yaml:"rules"`
	DevServer  *devServerFile `yaml:"devServer"`
}

type devServerFile struct {
	Port               *int    `yaml:"port"`
	StaticDir          *string `yaml:"static"`
	HistoryAPIFallback *bool   `yaml:"historyApiFallback"`
	Open               *bool   `yaml:"open"`
	Compress           *bool   `yaml:"compress"`
	Hot                *bool   `yaml:"hot"`
}

// LoadFile reads and decodes a config file. A missing file returns an error
// matching fs.ErrNotExist; anything else is a ConfigurationError.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, configErr(path, err)
	}

	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, configErr(path, err)
	}
	return f, nil
}

// Decode parses a config document, rejecting unknown keys.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return &f, nil
}

// ResolveMode returns the mode named in the file, or fallback when the file
// does not set one. Unlike the environment variable, an unknown value here
// is an error.
func (f *File) ResolveMode(fallback mode.Mode) (mode.Mode, error) {
	if f == nil || f.Mode == "" {
		return fallback, nil
	}
	m, err := mode.Parse(f.Mode)
	if err != nil {
		return "", configErr("mode", err)
	}
	return m, nil
}

// Apply overlays the file onto opts.
func (f *File) Apply(opts Options) Options {
	if f == nil {
		return opts
	}

	setString(&opts.Context, f.Context)
	setString(&opts.Output, f.Output)
	setString(&opts.Template, f.Template)
	setString(&opts.AssetsDir, f.Assets)
	setString(&opts.Target, f.Target)

	if f.PublicPath != nil {
		opts.PublicPath = *f.PublicPath
	}
	if len(f.Entries) > 0 {
		opts.Entries = append([]Entry(nil), f.Entries...)
	}
	if f.CopyAssets != nil {
		opts.CopyAssets = *f.CopyAssets
	}
	if len(f.CopyIgnore) > 0 {
		opts.CopyIgnore = append([]string(nil), f.CopyIgnore...)
	}
	if len(f.CleanKeep) > 0 {
		opts.CleanKeep = append([]string(nil), f.CleanKeep...)
	}
	if len(f.Rules) > 0 {
		opts.Rules = append([]RuleSpec(nil), f.Rules...)
	}

	if ds := f.DevServer; ds != nil {
		setPtr(&opts.DevServer.Port, ds.Port)
		setPtr(&opts.DevServer.StaticDir, ds.StaticDir)
		setPtr(&opts.DevServer.HistoryAPIFallback, ds.HistoryAPIFallback)
		setPtr(&opts.DevServer.Open, ds.Open)
		setPtr(&opts.DevServer.Compress, ds.Compress)
		setPtr(&opts.DevServer.Hot, ds.Hot)
	}

	return opts
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
