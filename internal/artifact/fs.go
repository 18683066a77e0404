package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FSSink flushes a store's contents to a directory after a run, so external
// tooling can collect what the pipeline produced. Files are named
// <name>.v<version>; artifact names are sanitized for the filesystem.
type FSSink struct {
	// Dir is the target directory. It is created if missing.
	Dir string
}

// Flush writes every stored version to the sink directory, one file per
// version, writing concurrently. The first write error cancels the rest.
func (k *FSSink) Flush(ctx context.Context, s *Store) error {
	refs := s.Refs()
	if len(refs) == 0 {
		return nil
	}
	if err := os.MkdirAll(k.Dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := s.Get(ref)
			if err != nil {
				return err
			}
			path := filepath.Join(k.Dir, fileName(ref))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing artifact %s: %w", ref, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// fileName maps a ref to a safe file name.
func fileName(ref Ref) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, ref.Name)
	return fmt.Sprintf("%s.v%d", name, ref.Version)
}
