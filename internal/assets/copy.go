package assets

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/plugins"
)

// copyAssets adds the files of every copy pattern to the compilation.
// Files the build already produced win over copied ones.
func (c *compilation) copyAssets(ctx context.Context, cfg *plugins.CopyConfig) error {
	for _, pattern := range cfg.Patterns {
		ignore, err := compileGlobs(pattern.Ignore)
		if err != nil {
			return err
		}

		from := filepath.Join(c.config.Context, pattern.From)
		if _, err := os.Stat(from); err != nil {
			return fmt.Errorf("failed to copy %s: %w", pattern.From, err)
		}

		copied := 0
		err = filepath.WalkDir(from, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			rel, err := filepath.Rel(from, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				return nil
			}

			if matchAny(ignore, rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}

			dest := path.Join(pattern.To, rel)
			if _, exists := c.files[dest]; exists {
				zerolog.Ctx(ctx).Warn().Str("path", dest).Msg("Copy target already emitted, skipping")
				return nil
			}

			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			c.files[dest] = data
			copied++
			return nil
		})
		if err != nil {
			return err
		}

		zerolog.Ctx(ctx).Debug().Str("from", pattern.From).Str("to", pattern.To).Int("files", copied).Msg("Copied assets")
	}
	return nil
}
