package config

import (
	"io"

	"github.com/wolfeidau/assetpipe/internal/optimization"
	"github.com/wolfeidau/assetpipe/internal/plugins"
	"gopkg.in/yaml.v3"
)

// Description is a printable view of a Config.
type Description struct {
	Mode         string              `yaml:"mode"`
	Context      string              `yaml:"context"`
	Entries      []Entry             `yaml:"entries"`
	Output       Output              `yaml:"output"`
	DevTool      string              `yaml:"devtool"`
	Target       string              `yaml:"target"`
	Rules        []RuleDescription   `yaml:"rules"`
	Optimization optimization.Policy `yaml:"optimization"`
	Plugins      []plugins.Stage     `yaml:"plugins"`
	DevServer    DevServer           `yaml:"devServer"`
}

type RuleDescription struct {
	Name    string   `yaml:"name"`
	Test    string   `yaml:"test"`
	Exclude string   `yaml:"exclude,omitempty"`
	Use     []string `yaml:"use,omitempty"`
	Output  string   `yaml:"output,omitempty"`
}

func (c Config) Describe() Description {
	d := Description{
		Mode:         c.Mode.String(),
		Context:      c.Context,
		Entries:      c.Entries,
		Output:       c.Output,
		DevTool:      c.DevTool,
		Target:       c.Target,
		Optimization: c.Optimization,
		Plugins:      c.Plugins,
		DevServer:    c.DevServer,
	}

	if c.Rules != nil {
		for _, e := range c.Rules.Entries() {
			rd := RuleDescription{
				Name:   e.Name,
				Test:   e.Test.String(),
				Use:    e.StepNames(),
				Output: e.Output.Pattern(),
			}
			if e.Exclude != nil {
				rd.Exclude = e.Exclude.String()
			}
			d.Rules = append(d.Rules, rd)
		}
	}

	return d
}

// WriteYAML prints the description of c to w.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Describe()); err != nil {
		return err
	}
	return enc.Close()
}
