package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
)

func TestNewWorkDirCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")

	wd, err := filesystem.NewWorkDir(root)
	if err != nil {
		t.Fatalf("NewWorkDir failed: %v", err)
	}

	info, err := os.Stat(wd.Root())
	if err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be a directory, err=%v", wd.Root(), err)
	}

	if err := wd.CheckWritable(); err != nil {
		t.Fatalf("CheckWritable failed: %v", err)
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		ok   bool
	}{
		{"12345.mp4", true},
		{"12345.filename", true},
		{".jobs.db", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{`a\b`, false},
		{"a\x00b", false},
	}

	for _, tt := range tests {
		got, err := filesystem.SafeJoin(root, tt.name)
		if tt.ok {
			if err != nil {
				t.Errorf("SafeJoin(%q) unexpected error: %v", tt.name, err)
				continue
			}
			if filepath.Dir(got) != root {
				t.Errorf("SafeJoin(%q) = %q, escapes %q", tt.name, got, root)
			}
			continue
		}

		if err == nil {
			t.Errorf("SafeJoin(%q) = %q, want error", tt.name, got)
			continue
		}
		if !errors.Is(err, errors.ErrPathEscape) {
			t.Errorf("SafeJoin(%q) error = %v, want ErrPathEscape", tt.name, err)
		}
	}
}

func TestRemoveBestEffort(t *testing.T) {
	wd, err := filesystem.NewWorkDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkDir failed: %v", err)
	}

	var paths []string
	for _, name := range []string{"a.mp4", "a.filename", "b.mp4"} {
		p, err := wd.Path(name)
		if err != nil {
			t.Fatalf("Path(%q): %v", name, err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
		paths = append(paths, p)
	}

	missing, _ := wd.Path("never-existed.mp4")
	paths = append(paths, missing)

	if err := wd.Remove(paths...); err != nil {
		t.Fatalf("Remove returned %v, want nil for missing files", err)
	}

	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", p)
		}
	}
}

func TestRemoveRefusesOutsideRoot(t *testing.T) {
	wd, err := filesystem.NewWorkDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkDir failed: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "keep.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := wd.Remove(outside); err == nil {
		t.Fatalf("expected error removing a path outside the working directory")
	}

	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file outside root was touched: %v", err)
	}
}
