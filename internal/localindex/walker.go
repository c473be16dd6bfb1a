package localindex

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// Entry is one regular file found by the walker.
type Entry struct {
	Path    string // slash-separated, relative to the walk root, NFC-normalized
	AbsPath string
	Size    int64
	ModTime int64 // unix nanoseconds
}

// WalkOptions filters the tree. Patterns use path.Match syntax and are
// tested against the slash-separated relative path and the base name.
type WalkOptions struct {
	// Include, when non-empty, keeps only files matching at least one
	// pattern. Directories are always descended.
	Include []string

	// Exclude drops matching files and prunes matching directories.
	Exclude []string
}

// Walk enumerates regular files under root. Symlinks are not followed.
// Names are NFC-normalized so digests key identically across
// platforms with different filesystem normalization.
func Walk(ctx context.Context, root string, opts WalkOptions) ([]Entry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("localindex: resolving root: %w", err)
	}

	var entries []Entry

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("localindex: walking %s: %w", p, err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return fmt.Errorf("localindex: relativizing %s: %w", p, err)
		}

		rel = norm.NFC.String(filepath.ToSlash(rel))

		if d.IsDir() {
			if rel != "." && matchAny(opts.Exclude, rel) {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if matchAny(opts.Exclude, rel) {
			return nil
		}

		if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("localindex: stat %s: %w", p, err)
		}

		entries = append(entries, Entry{
			Path:    rel,
			AbsPath: p,
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// matchAny tests patterns against the relative path and its base name,
// so "*.log" matches at any depth.
func matchAny(patterns []string, rel string) bool {
	base := path.Base(rel)

	for _, pat := range patterns {
		if ok, err := path.Match(pat, rel); err == nil && ok {
			return true
		}

		if ok, err := path.Match(pat, base); err == nil && ok {
			return true
		}
	}

	return false
}
