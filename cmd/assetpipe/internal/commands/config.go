package commands

import (
	"context"
	"io"
	"os"
)

type ConfigCmd struct {
	Project ProjectFlags `embed:""`

	Out io.Writer `kong:"-"`
}

func (c *ConfigCmd) Run(_ context.Context, globals *Globals) error {
	setupLogger(context.Background(), globals)

	cfg, err := c.Project.Load()
	if err != nil {
		return err
	}

	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	return cfg.WriteYAML(out)
}
