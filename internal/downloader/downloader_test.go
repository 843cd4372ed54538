package downloader_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/vodbatch/internal/config"
	"github.com/NamanBalaji/vodbatch/internal/downloader"
	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/metrics"
	"github.com/NamanBalaji/vodbatch/internal/progress"
	"github.com/NamanBalaji/vodbatch/internal/repository"
	"github.com/NamanBalaji/vodbatch/internal/status"
	"github.com/NamanBalaji/vodbatch/internal/ytdlp/ytdlptest"
)

var progressLines = []string{
	"[twitch:vod] 12345: Downloading stream metadata",
	"[download]  25.0% of 10MiB at 2.0MiB/s ETA 00:04",
	"[download] 100% of 10MiB in 00:05",
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Send(ev progress.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

type fixture struct {
	svc  *downloader.Service
	dir  *filesystem.WorkDir
	jobs *repository.BboltRepository
}

func newFixture(t *testing.T, script ytdlptest.Script, tune ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DownloadsDir = t.TempDir()
	cfg.Tool.Path = ytdlptest.Write(t, script)
	cfg.Server.CleanupDelay = 10 * time.Millisecond
	for _, f := range tune {
		f(&cfg)
	}

	dir, err := filesystem.NewWorkDir(cfg.DownloadsDir)
	require.NoError(t, err)

	jobs, err := repository.NewBboltRepository(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Close() })

	svc, err := downloader.New(&cfg, dir, jobs, metrics.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return &fixture{svc: svc, dir: dir, jobs: jobs}
}

func (f *fixture) exists(t *testing.T, name string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(f.dir.Root(), name))
	return err == nil
}

func request(id, filename string) downloader.Request {
	return downloader.Request{ID: id, Credential: "token", Filename: filename}
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := downloader.New(&cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestDownloadSuccess(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Lines: progressLines, Bytes: 2048})

	req := request("12345", "My Clip")
	req.IncludeDate = true

	rec := &recorder{}
	complete, err := f.svc.Download(context.Background(), req, rec)
	require.NoError(t, err)

	want := "My Clip-" + time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, progress.KindComplete, complete.Type)
	assert.Equal(t, want, complete.Filename)
	assert.Equal(t, "/api/videos/12345/file", complete.DownloadURL)
	require.NotNil(t, complete.Batch)
	assert.False(t, *complete.Batch)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, 25.0, events[0].Percent)
	assert.Equal(t, "finalizing", events[1].Status)
	assert.Equal(t, complete, events[2])

	assert.True(t, f.exists(t, "12345.mp4"))
	assert.True(t, f.exists(t, "12345.filename"))

	job, err := f.svc.Status("12345")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, job.Phase)
	assert.Equal(t, 100.0, job.Percent)
	assert.Equal(t, want, job.DisplayName)

	d, err := f.svc.OpenFile("12345")
	require.NoError(t, err)
	assert.Equal(t, want+".mp4", d.Name)
	assert.EqualValues(t, 2048, d.Size)
}

func TestDownloadTypeSuffix(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 16})

	req := request("777", "a/b")
	req.IncludeType = true

	complete, err := f.svc.Download(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "a-b-Archive", complete.Filename)
}

func TestDownloadValidation(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 16})

	tests := []struct {
		name     string
		req      downloader.Request
		category errors.ErrorCategory
		sentinel error
	}{
		{
			name:     "missing credential",
			req:      downloader.Request{ID: "1", Filename: "x"},
			category: errors.CategoryAuth,
			sentinel: errors.ErrMissingCredential,
		},
		{
			name:     "missing filename",
			req:      downloader.Request{ID: "1", Credential: "t", Filename: "  "},
			category: errors.CategoryInput,
			sentinel: errors.ErrMissingFilename,
		},
		{
			name:     "unsafe id",
			req:      downloader.Request{ID: "../1", Credential: "t", Filename: "x"},
			category: errors.CategoryInput,
			sentinel: errors.ErrInvalidIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			_, err := f.svc.Download(context.Background(), tt.req, rec)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category))
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Empty(t, rec.all())
		})
	}

	entries, err := os.ReadDir(f.dir.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadZeroByteOutput(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Lines: progressLines})

	rec := &recorder{}
	_, err := f.svc.Download(context.Background(), request("12345", "clip"), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEmptyOutput)

	for _, ev := range rec.all() {
		assert.NotEqual(t, progress.KindComplete, ev.Type)
	}

	// The record is written before the tool runs.
	assert.True(t, f.exists(t, "12345.filename"))
	assert.False(t, f.exists(t, "12345.mp4"))

	job, err := f.svc.Status("12345")
	require.NoError(t, err)
	assert.Equal(t, status.Failed, job.Phase)
	assert.NotEmpty(t, job.Error)
}

func TestDownloadToolFailure(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Stderr: []string{"ERROR: video unavailable"}, ExitCode: 1, NoOutput: true})

	_, err := f.svc.Download(context.Background(), request("12345", "clip"), nil)
	require.Error(t, err)

	code, ok := errors.GetExitCode(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)
}

func TestDownloadConflictAndCancel(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Lines: progressLines[:2], Hang: true})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Download(context.Background(), request("12345", "clip"), nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		job, err := f.svc.Status("12345")
		return err == nil && job.Phase == status.Downloading
	}, 5*time.Second, 10*time.Millisecond)

	_, err := f.svc.Download(context.Background(), request("12345", "clip"), nil)
	require.Error(t, err)
	assert.Equal(t, 409, errors.HTTPStatus(err))

	_, err = f.svc.OpenFile("12345")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, f.svc.Cancel("12345"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryContext))
	case <-time.After(10 * time.Second):
		t.Fatal("download did not stop after cancel")
	}

	job, err := f.svc.Status("12345")
	require.NoError(t, err)
	assert.Equal(t, status.Failed, job.Phase)
	assert.Equal(t, "cancelled", job.Error)

	err = f.svc.Cancel("12345")
	require.Error(t, err)
	assert.Equal(t, 404, errors.HTTPStatus(err))
	assert.ErrorIs(t, f.svc.Cancel("../x"), errors.ErrInvalidIdentifier)
}

func TestDownloadSecondStreamKeepsProgress(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{
		Lines: []string{
			"[download] 100% of 5MiB in 00:01",
			"[download]  10.0% of 1MiB at 1.0MiB/s ETA 00:01",
		},
		Hang: true,
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Download(context.Background(), request("av1", "clip"), nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		job, err := f.svc.Status("av1")
		return err == nil && job.Phase == status.Downloading && job.Percent == 10
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.svc.Cancel("av1"))
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("download did not stop after cancel")
	}
}

func TestOpenFileMissing(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 16})

	_, err := f.svc.OpenFile("404")
	require.Error(t, err)
	assert.Equal(t, 404, errors.HTTPStatus(err))
}

func TestOpenFileWithoutRecordUsesID(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 16})
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Root(), "55.mp4"), []byte("data"), 0o644))

	d, err := f.svc.OpenFile("55")
	require.NoError(t, err)
	assert.Equal(t, "55.mp4", d.Name)
}

func TestBuildArchive(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 512})

	for id, name := range map[string]string{"a1": "First", "b2": "Second"} {
		req := request(id, name)
		req.Batch = true
		_, err := f.svc.Download(context.Background(), req, nil)
		require.NoError(t, err)
	}

	res, err := f.svc.BuildArchive(context.Background(), []string{"b2", "a1"})
	require.NoError(t, err)

	zr, err := zip.OpenReader(res.Path)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	assert.Equal(t, []string{"Second.mp4", "First.mp4"}, names)
	assert.Equal(t, f.dir.Root(), filepath.Dir(res.Path))
}

func TestBuildArchiveErrors(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 64})
	_, err := f.svc.Download(context.Background(), request("a1", "First"), nil)
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := f.svc.BuildArchive(context.Background(), nil)
		require.Error(t, err)
		assert.Equal(t, 400, errors.HTTPStatus(err))
		assert.ErrorIs(t, err, errors.ErrNoFiles)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := f.svc.BuildArchive(context.Background(), []string{"x9", "a1", "y8"})
		require.Error(t, err)

		var miss *errors.MissingFilesError
		require.True(t, errors.As(err, &miss))
		assert.Equal(t, []string{"x9", "y8"}, miss.Missing)
		assert.Equal(t, 404, errors.HTTPStatus(err))

		entries, err := filepath.Glob(filepath.Join(f.dir.Root(), "*.zip"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := f.svc.BuildArchive(context.Background(), []string{"a1", "../etc"})
		assert.ErrorIs(t, err, errors.ErrInvalidIdentifier)
	})
}

func TestDeliveredRemovesFiles(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 64})
	_, err := f.svc.Download(context.Background(), request("a1", "First"), nil)
	require.NoError(t, err)

	res, err := f.svc.BuildArchive(context.Background(), []string{"a1"})
	require.NoError(t, err)

	f.svc.Delivered([]string{"a1"}, res.Path)

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(res.Path)
		return !f.exists(t, "a1.mp4") && !f.exists(t, "a1.filename") && os.IsNotExist(statErr)
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := f.svc.Status("a1")
		return errors.Is(err, repository.ErrJobNotFound)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRedownloadCallsOffPendingCleanup(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 64}, func(c *config.Config) {
		c.Server.CleanupDelay = 500 * time.Millisecond
	})

	_, err := f.svc.Download(context.Background(), request("v1", "First"), nil)
	require.NoError(t, err)
	f.svc.Delivered([]string{"v1"})

	_, err = f.svc.Download(context.Background(), request("v1", "Second"), nil)
	require.NoError(t, err)

	time.Sleep(time.Second)

	d, err := f.svc.OpenFile("v1")
	require.NoError(t, err)
	assert.Equal(t, "Second.mp4", d.Name)
	assert.True(t, f.exists(t, "v1.filename"))

	job, err := f.svc.Status("v1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, job.Phase)
	assert.Equal(t, "Second", job.DisplayName)
}

func TestShutdownFlushesCleanup(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 64}, func(c *config.Config) {
		c.Server.CleanupDelay = time.Hour
	})
	_, err := f.svc.Download(context.Background(), request("a1", "First"), nil)
	require.NoError(t, err)

	f.svc.Delivered([]string{"a1"})
	assert.True(t, f.exists(t, "a1.mp4"))

	require.NoError(t, f.svc.Shutdown(context.Background()))
	assert.False(t, f.exists(t, "a1.mp4"))

	_, err = f.svc.Download(context.Background(), request("b2", "Second"), nil)
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestRecoverMarksInterruptedJobs(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 64})

	now := time.Now()
	require.NoError(t, f.jobs.Save(&repository.Job{ID: "r1", Phase: status.Downloading, Percent: 40, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, f.jobs.Save(&repository.Job{ID: "r2", Phase: status.Completed, Percent: 100, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Root(), "r1.mp4.part"), []byte("half"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Root(), "r1.filename"), []byte("Half Clip\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Root(), "r2.filename"), []byte("Done Clip\n"), 0o644))

	require.NoError(t, f.svc.Recover())

	job, err := f.svc.Status("r1")
	require.NoError(t, err)
	assert.Equal(t, status.Failed, job.Phase)
	assert.Equal(t, "interrupted", job.Error)
	assert.False(t, f.exists(t, "r1.mp4.part"))
	assert.False(t, f.exists(t, "r1.filename"))
	assert.True(t, f.exists(t, "r2.filename"))

	job, err = f.svc.Status("r2")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, job.Phase)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, ytdlptest.Script{Bytes: 64})

	h := f.svc.Health(context.Background())
	assert.True(t, h.OK())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, ytdlptest.Version, h.Tool.Version)
	assert.True(t, h.DirWritable)
	assert.Empty(t, h.ActiveJobs)

	broken := newFixture(t, ytdlptest.Script{}, func(c *config.Config) {
		c.Tool.Path = filepath.Join(t.TempDir(), "no-such-tool")
	})
	h = broken.svc.Health(context.Background())
	assert.False(t, h.OK())
	assert.Equal(t, "error", h.Status)
	assert.NotEmpty(t, h.ToolError)
}
