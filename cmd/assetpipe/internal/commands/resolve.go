package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/assetpipe/internal/naming"
)

type ResolveCmd struct {
	Project ProjectFlags `embed:""`
	Paths   []string     `arg:"" help:"Paths to resolve, relative to the working directory."`

	Out io.Writer `kong:"-"`
}

func (r *ResolveCmd) Run(_ context.Context, globals *Globals) error {
	setupLogger(context.Background(), globals)

	cfg, err := r.Project.Load()
	if err != nil {
		return err
	}

	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tRULE\tCHAIN\tOUTPUT")

	for _, p := range r.Paths {
		entry, err := cfg.Rules.Resolve(filepath.ToSlash(p))
		if err != nil {
			_ = tw.Flush()
			return err
		}

		output := "-"
		if entry.Emits() {
			base, ext := naming.Split(p)
			output = entry.Output.Pattern()
			if ext != "" {
				output = strings.Replace(output, "[name]", base, 1) + "." + ext
			}
		}

		chain := strings.Join(entry.StepNames(), " > ")
		if chain == "" {
			chain = "-"
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p, entry.Name, chain, output)
	}

	return tw.Flush()
}
