package repository_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/repository"
)

func newStore(t *testing.T) (*repository.RecordStore, *filesystem.WorkDir) {
	t.Helper()
	wd, err := filesystem.NewWorkDir(t.TempDir())
	require.NoError(t, err)
	return repository.NewRecordStore(wd), wd
}

func TestRecordStoreRoundTrip(t *testing.T) {
	store, _ := newStore(t)

	rec := repository.FilenameRecord{
		ID:          "12345",
		DisplayName: "My Clip-2026-10-17",
		Options:     repository.Options{IncludeDate: true, Date: "2026-10-17"},
	}
	require.NoError(t, store.Save(rec))

	path, err := store.Path("12345")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "My Clip-2026-10-17\n{\"includeDate\":true,\"includeType\":false,\"date\":\"2026-10-17\"}\n", string(raw))

	got, err := store.Find("12345")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordStoreSingleLineRecord(t *testing.T) {
	store, _ := newStore(t)

	path, err := store.Path("777")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("Legacy Name"), 0o644))

	got, err := store.Find("777")
	require.NoError(t, err)
	assert.Equal(t, "Legacy Name", got.DisplayName)
	assert.Equal(t, repository.Options{}, got.Options)
}

func TestRecordStoreResanitizesOnRead(t *testing.T) {
	store, _ := newStore(t)

	path, err := store.Path("9")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("../../etc/passwd\nnot json\n"), 0o644))

	got, err := store.Find("9")
	require.NoError(t, err)
	assert.Equal(t, ".-.-etc-passwd", got.DisplayName)
}

func TestRecordStoreMissingAndDelete(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Find("nope")
	assert.True(t, errors.Is(err, repository.ErrRecordNotFound))

	require.NoError(t, store.Save(repository.FilenameRecord{ID: "a", DisplayName: "A"}))
	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("a"))

	_, err = store.Find("a")
	assert.True(t, errors.Is(err, repository.ErrRecordNotFound))
}

func TestRecordStoreRejectsTraversalIDs(t *testing.T) {
	store, _ := newStore(t)

	err := store.Save(repository.FilenameRecord{ID: "../x", DisplayName: "x"})
	assert.Error(t, err)

	_, err = store.Find("a/b")
	assert.Error(t, err)
}
