package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/logger"
)

// DefaultLevel favours speed; inputs are already compressed media.
const DefaultLevel = 5

// Item is one file to add. Name is the entry name inside the archive.
type Item struct {
	ID   string
	Path string
	Name string
}

// Entry is one written archive member.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Result describes a finished archive.
type Result struct {
	Path    string
	Size    int64
	Entries []Entry
}

// Builder writes zip archives.
type Builder struct {
	level int
}

// NewBuilder returns a Builder compressing at level (flate levels -2..9).
func NewBuilder(level int) (*Builder, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}

	return &Builder{level: level}, nil
}

type checkedItem struct {
	Item
	size int64
}

// Build checks every input, then writes the archive to a temporary file next
// to archivePath and renames it into place once it is synced and closed. If
// any input is missing nothing is written and the error is a
// *errors.MissingFilesError naming all of them.
func (b *Builder) Build(ctx context.Context, items []Item, archivePath string) (Result, error) {
	if len(items) == 0 {
		return Result{}, errors.NewInputError(errors.ErrNoFiles, archivePath)
	}

	checked, err := precheck(items)
	if err != nil {
		return Result{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".*.tmp")
	if err != nil {
		return Result{}, errors.NewIOError(err, archivePath)
	}
	tmpPath := tmp.Name()

	entries, err := b.write(ctx, tmp, checked)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		if errors.IsCategory(err, errors.CategoryContext) || errors.IsCategory(err, errors.CategoryArchive) {
			return Result{}, err
		}
		return Result{}, errors.NewArchiveError(err, archivePath)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return Result{}, errors.NewIOError(err, archivePath)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return Result{}, errors.NewIOError(err, archivePath)
	}

	return Result{Path: archivePath, Size: info.Size(), Entries: entries}, nil
}

func precheck(items []Item) ([]checkedItem, error) {
	var missing []string
	checked := make([]checkedItem, 0, len(items))

	for _, it := range items {
		f, err := os.Open(it.Path)
		if err != nil {
			missing = append(missing, label(it))
			continue
		}

		info, err := f.Stat()
		f.Close()
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, label(it))
			continue
		}

		checked = append(checked, checkedItem{Item: it, size: info.Size()})
	}

	if len(missing) > 0 {
		return nil, &errors.MissingFilesError{Missing: missing}
	}

	return checked, nil
}

func label(it Item) string {
	if it.ID != "" {
		return it.ID
	}
	return filepath.Base(it.Path)
}

func (b *Builder) write(ctx context.Context, w io.Writer, items []checkedItem) ([]Entry, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, b.level)
	})

	names := newNameSet()
	entries := make([]Entry, 0, len(items))

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return nil, errors.NewContextError(err, it.ID)
		}

		name := names.add(entryName(it.Item))
		n, err := addFile(zw, it.Path, name)
		if err != nil {
			zw.Close()
			return nil, errors.NewArchiveError(err, it.Path)
		}

		if n != it.size {
			logger.Warnf("Size of %s changed while archiving: expected %d, wrote %d", it.Path, it.size, n)
		}

		entries = append(entries, Entry{Name: name, Size: n})
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return entries, nil
}

func addFile(zw *zip.Writer, path, name string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("input vanished: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	}
	hdr.SetMode(0o644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}

	return io.Copy(w, f)
}

// entryName keeps entry names to a single safe path segment.
func entryName(it Item) string {
	name := filesystem.Sanitize(it.Name)
	if strings.Trim(name, ".") == "" {
		name = filepath.Base(it.Path)
	}

	return name
}

type nameSet map[string]struct{}

func newNameSet() nameSet { return make(nameSet) }

// add returns name, or name with a " (n)" suffix before the extension if an
// equal name (ignoring case) was already used.
func (s nameSet) add(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 2; ; i++ {
		key := strings.ToLower(candidate)
		if _, taken := s[key]; !taken {
			s[key] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
}
