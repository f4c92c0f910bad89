package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

// clean removes everything under the output root except files matching a
// keep pattern.
func (c *compilation) clean(ctx context.Context, cfg *plugins.CleanConfig) error {
	keep, err := compileGlobs(cfg.Keep)
	if err != nil {
		return err
	}

	if err := c.checkCleanable(); err != nil {
		return err
	}

	var files, dirs []string
	err = filepath.WalkDir(c.outDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == c.outDir {
				return fs.SkipAll
			}
			return err
		}
		if p == c.outDir {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}

		rel, err := c.outRel(p)
		if err != nil {
			return err
		}
		if !matchAny(keep, rel) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return err
		}
	}

	// deepest first, directories still holding kept files stay
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		_ = os.Remove(d)
	}

	zerolog.Ctx(ctx).Debug().Int("removed", len(files)).Str("output", c.outDir).Msg("Cleaned output")
	return nil
}

// checkCleanable refuses to clean the working directory or any directory
// holding the sources.
func (c *compilation) checkCleanable() error {
	source, err := filepath.Abs(c.config.Context)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(c.outDir, source)
	if err != nil {
		return err
	}
	if rel == "." || !strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to clean %s, it contains the sources in %s", c.outDir, source)
	}
	return nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, p string) bool {
	for _, g := range globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}
