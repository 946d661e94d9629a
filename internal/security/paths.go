// Package security confines archive writes to their root directory and
// turns session identifiers into safe key segments.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside its root.
var ErrEscapesRoot = errors.New("path escapes root")

// WithinRoot reports an error unless path, after resolving symlinks, stays
// below root. A path that does not exist yet is judged by its nearest
// existing parent, so a symlinked directory cannot redirect a new file.
func WithinRoot(path, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	resolved := absPath
	for dir, rest := absPath, ""; ; {
		if r, err := filepath.EvalSymlinks(dir); err == nil {
			resolved = filepath.Join(r, rest)
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}

	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s not under %s", ErrEscapesRoot, path, root)
	}
	return nil
}

// maxSegment bounds a sanitised key segment.
const maxSegment = 128

// SanitizeSegment maps s onto [A-Za-z0-9._-], collapsing runs of other
// characters into one underscore. Leading and trailing dots and
// underscores are trimmed; an empty result becomes "unknown".
func SanitizeSegment(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxSegment {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			under = false
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
