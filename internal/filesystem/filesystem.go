package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/logger"
)

const removeParallelism = 4

// WorkDir is the shared working directory holding media files, their
// Filename Records and temporary archives. Every path it hands out is
// confined to the root.
type WorkDir struct {
	root string
}

// NewWorkDir creates the directory if needed and returns a WorkDir rooted at
// its absolute path.
func NewWorkDir(root string) (*WorkDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewIOError(err, root)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.NewIOError(fmt.Errorf("failed to create working directory: %w", err), abs)
	}

	return &WorkDir{root: abs}, nil
}

// Root returns the absolute directory path.
func (w *WorkDir) Root() string {
	return w.root
}

// Path resolves a bare file name inside the working directory.
func (w *WorkDir) Path(name string) (string, error) {
	return SafeJoin(w.root, name)
}

// CheckWritable creates and removes a probe file.
func (w *WorkDir) CheckWritable() error {
	f, err := os.CreateTemp(w.root, ".probe-*")
	if err != nil {
		return errors.NewIOError(err, w.root)
	}

	name := f.Name()
	f.Close()

	return os.Remove(name)
}

// Remove deletes the given paths concurrently. Missing files are not errors.
// Every failure is logged and the joined result returned; callers on
// best-effort paths may ignore it.
func (w *WorkDir) Remove(paths ...string) error {
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(removeParallelism)

	for i, p := range paths {
		g.Go(func() error {
			if !w.contains(p) {
				errs[i] = errors.NewIOError(errors.ErrPathEscape, p)
				return nil
			}

			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				logger.Warnf("Failed to remove %s: %v", p, err)
				errs[i] = errors.NewIOError(err, p)
			}

			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

func (w *WorkDir) contains(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}

	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// SafeJoin joins root and a single path segment, refusing anything that
// would resolve outside root.
func SafeJoin(root, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", errors.NewInputError(errors.ErrPathEscape, name)
	}

	joined := filepath.Join(root, name)
	if filepath.Dir(joined) != filepath.Clean(root) {
		return "", errors.NewInputError(errors.ErrPathEscape, name)
	}

	return joined, nil
}
