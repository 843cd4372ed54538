package downloader

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/vodbatch/internal/archive"
	"github.com/NamanBalaji/vodbatch/internal/config"
	"github.com/NamanBalaji/vodbatch/internal/engine"
	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/logger"
	"github.com/NamanBalaji/vodbatch/internal/metrics"
	"github.com/NamanBalaji/vodbatch/internal/progress"
	"github.com/NamanBalaji/vodbatch/internal/repository"
	"github.com/NamanBalaji/vodbatch/internal/status"
	"github.com/NamanBalaji/vodbatch/internal/ytdlp"
)

// journalInterval bounds how often percent-only updates hit the journal.
const journalInterval = 2 * time.Second

// Service runs the fetch, delivery and archive pipeline over one working
// directory.
type Service struct {
	cfg     *config.Config
	dir     *filesystem.WorkDir
	records *repository.RecordStore
	jobs    repository.Repository
	worker  *ytdlp.Worker
	engine  *engine.Engine
	builder *archive.Builder
	metrics *metrics.Metrics
	cleaner *cleaner

	now func() time.Time
}

// New wires a Service from configuration. jobs is the journal; m receives
// metrics.
func New(cfg *config.Config, dir *filesystem.WorkDir, jobs repository.Repository, m *metrics.Metrics) (*Service, error) {
	if cfg == nil || dir == nil || jobs == nil || m == nil {
		return nil, fmt.Errorf("config, working directory, journal and metrics are required")
	}

	worker, err := ytdlp.New(cfg.Tool)
	if err != nil {
		return nil, err
	}

	builder, err := archive.NewBuilder(cfg.Archive.Level())
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:     cfg,
		dir:     dir,
		records: repository.NewRecordStore(dir),
		jobs:    jobs,
		worker:  worker,
		engine:  engine.New(cfg.MaxConcurrentDownloads),
		builder: builder,
		metrics: m,
		cleaner: newCleaner(dir, m),
		now:     time.Now,
	}, nil
}

// Validate checks a request before anything is spawned or written.
func (s *Service) Validate(req Request) error {
	if strings.TrimSpace(req.Credential) == "" {
		return errors.NewAuthError(errors.ErrMissingCredential, req.ID)
	}

	if err := ValidateID(req.ID); err != nil {
		return err
	}

	if strings.TrimSpace(req.Filename) == "" {
		return errors.NewInputError(errors.ErrMissingFilename, req.ID)
	}

	return nil
}

// Download fetches req.ID, sending progress events to sink in tool output
// order and a single complete event once the file is verified. On failure no
// complete event is sent and the error is returned.
func (s *Service) Download(ctx context.Context, req Request, sink progress.Sink) (progress.Event, error) {
	if err := s.Validate(req); err != nil {
		s.metrics.DownloadRejected()
		return progress.Event{}, err
	}

	var complete progress.Event
	err := s.engine.Run(ctx, req.ID, func(ctx context.Context, runID uuid.UUID) error {
		ev, err := s.run(ctx, runID, req, sink)
		complete = ev
		return err
	})
	if errors.IsCategory(err, errors.CategoryConflict) {
		s.metrics.DownloadRejected()
	}

	return complete, err
}

func (s *Service) run(ctx context.Context, runID uuid.UUID, req Request, sink progress.Sink) (progress.Event, error) {
	name, opts := DisplayName(req.ID, req.Filename, repository.Options{
		IncludeDate: req.IncludeDate,
		IncludeType: req.IncludeType,
		VideoType:   req.VideoType,
	}, s.now())

	if s.cleaner.cancel(req.ID) {
		logger.Debugf("Called off pending cleanup of %s for a new run", req.ID)
	}

	if err := s.records.Save(repository.FilenameRecord{ID: req.ID, DisplayName: name, Options: opts}); err != nil {
		return progress.Event{}, errors.NewIOError(err, req.ID)
	}

	outputPath, err := s.mediaPath(req.ID)
	if err != nil {
		return progress.Event{}, err
	}

	tr := s.newTracker(runID, req.ID, name)
	tr.save(status.Pending, 0, "")

	logger.Infof("Downloading %s as %q (run %s)", req.ID, name, runID)

	started := time.Now()
	s.metrics.DownloadStarted()
	tr.save(status.Downloading, 0, "")

	res, err := s.worker.Run(ctx, req.ID, outputPath, tr.wrap(sink))
	if err != nil {
		result := metrics.ResultFailed
		msg := err.Error()
		if errors.IsCategory(err, errors.CategoryContext) {
			result = metrics.ResultCancelled
			msg = "cancelled"
		}

		s.metrics.DownloadFinished(result, time.Since(started), 0)
		tr.save(status.Failed, tr.percent(), msg)
		logger.Errorf("Download %s failed: %v", req.ID, err)

		return progress.Event{}, err
	}

	s.metrics.DownloadFinished(metrics.ResultCompleted, time.Since(started), res.Size)
	tr.save(status.Completed, 100, "")
	logger.Infof("Download %s completed (%d bytes)", req.ID, res.Size)

	complete := progress.Complete(FileURL(req.ID), name, req.Batch)
	if sink != nil {
		if err := sink.Send(complete); err != nil {
			logger.Debugf("Complete event for %s not delivered: %v", req.ID, err)
		}
	}

	return complete, nil
}

func (s *Service) mediaPath(id string) (string, error) {
	return s.dir.Path(id + "." + s.worker.Ext())
}

// OpenFile resolves a finished file for delivery. An id that is still being
// fetched counts as not found.
func (s *Service) OpenFile(id string) (Delivery, error) {
	if err := ValidateID(id); err != nil {
		return Delivery{}, err
	}

	if s.engine.IsActive(id) {
		return Delivery{}, errors.NewNotFoundError(errors.ErrNotFound, id)
	}

	path, err := s.mediaPath(id)
	if err != nil {
		return Delivery{}, err
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Delivery{}, errors.NewNotFoundError(errors.ErrNotFound, id)
	}

	return Delivery{
		ID:      id,
		Path:    path,
		Name:    s.entryName(id),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func (s *Service) entryName(id string) string {
	name := id
	if rec, err := s.records.Find(id); err == nil {
		name = rec.DisplayName
	} else if !errors.Is(err, repository.ErrRecordNotFound) {
		logger.Warnf("Failed to read filename record for %s: %v", id, err)
	}

	return name + "." + s.worker.Ext()
}

// BuildArchive bundles the given ids into a new zip in the working directory.
// Every id must be finished and present; otherwise the error lists all the
// ones that are not and nothing is written.
func (s *Service) BuildArchive(ctx context.Context, ids []string) (archive.Result, error) {
	if len(ids) == 0 {
		s.metrics.ArchiveFailed(metrics.ResultRejected)
		return archive.Result{}, errors.NewInputError(errors.ErrNoFiles, "download-zip")
	}

	items := make([]archive.Item, 0, len(ids))
	var missing []string

	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			s.metrics.ArchiveFailed(metrics.ResultRejected)
			return archive.Result{}, err
		}

		path, err := s.mediaPath(id)
		if err != nil {
			return archive.Result{}, err
		}

		if s.engine.IsActive(id) || !isRegular(path) {
			missing = append(missing, id)
			continue
		}

		items = append(items, archive.Item{ID: id, Path: path, Name: s.entryName(id)})
	}

	if len(missing) > 0 {
		s.metrics.ArchiveFailed(metrics.ResultMissing)
		return archive.Result{}, &errors.MissingFilesError{Missing: missing}
	}

	archivePath, err := s.dir.Path("archive-" + uuid.NewString() + ".zip")
	if err != nil {
		return archive.Result{}, err
	}

	started := time.Now()
	res, err := s.builder.Build(ctx, items, archivePath)
	if err != nil {
		result := metrics.ResultFailed
		var miss *errors.MissingFilesError
		if errors.As(err, &miss) {
			result = metrics.ResultMissing
		}
		s.metrics.ArchiveFailed(result)
		return archive.Result{}, err
	}

	s.metrics.ArchiveBuilt(time.Since(started), res.Size)
	logger.Infof("Built archive %s with %d entries (%d bytes)", archivePath, len(res.Entries), res.Size)

	return res, nil
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delivered schedules removal of the media files and Filename Records of ids,
// plus any extra paths such as a served archive, after the grace delay. A new
// download of one of the ids before then calls its removal off.
func (s *Service) Delivered(ids []string, extra ...string) {
	delay := s.cfg.Server.CleanupDelay

	for _, id := range ids {
		var paths []string
		if p, err := s.mediaPath(id); err == nil {
			paths = append(paths, p)
		}
		if p, err := s.records.Path(id); err == nil {
			paths = append(paths, p)
		}

		s.cleaner.schedule(id, delay, paths, func() {
			if err := s.jobs.Delete(id); err != nil && !errors.Is(err, repository.ErrJobNotFound) {
				logger.Warnf("Failed to drop journal entry %s: %v", id, err)
			}
		})
	}

	// Extras are absolute paths, which never collide with a media id.
	for _, p := range extra {
		s.cleaner.schedule(p, delay, []string{p}, nil)
	}
}

// Status returns the journal entry for id.
func (s *Service) Status(id string) (*repository.Job, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	job, err := s.jobs.Find(id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, errors.NewNotFoundError(err, id)
		}
		return nil, err
	}

	return job, nil
}

// Cancel stops the queued or running download of id.
func (s *Service) Cancel(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if !s.engine.Cancel(id) {
		return errors.NewNotFoundError(errors.ErrNotFound, id)
	}

	logger.Infof("Cancelled download of %s", id)
	return nil
}

// Health probes the tool and the working directory.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		DownloadsDir: s.dir.Root(),
		ActiveJobs:   s.engine.Active(),
		CheckedAt:    s.now().UTC(),
	}

	info, err := s.worker.Version(ctx)
	h.Tool = info
	if err != nil {
		h.ToolError = err.Error()
	}

	if err := s.dir.CheckWritable(); err != nil {
		h.DirError = err.Error()
	} else {
		h.DirWritable = true
	}

	h.Status = "ok"
	if !h.OK() {
		h.Status = "error"
	}

	return h
}

// Recover marks journal entries left running by a previous process as failed
// and removes their partial output and Filename Records.
func (s *Service) Recover() error {
	jobs, err := s.jobs.FindUnfinished()
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	for _, job := range jobs {
		logger.Warnf("Job %s was interrupted in phase %s", job.ID, job.Phase)

		if p, err := s.mediaPath(job.ID); err == nil {
			_ = s.dir.Remove(p, p+".part", p+".ytdl")
		}
		if err := s.records.Delete(job.ID); err != nil {
			logger.Warnf("Failed to drop filename record %s: %v", job.ID, err)
		}

		job.Phase = status.Failed
		job.Error = "interrupted"
		job.UpdatedAt = s.now()
		if err := s.jobs.Save(job); err != nil {
			return fmt.Errorf("failed to update journal entry %s: %w", job.ID, err)
		}
	}

	return nil
}

// Shutdown cancels running downloads, waits for them and runs pending
// cleanups immediately.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.engine.Shutdown(ctx)
	s.cleaner.flush()
	return err
}

// tracker keeps the journal entry of one run in step with its events.
type tracker struct {
	s   *Service
	job repository.Job

	mu        sync.Mutex
	lastSaved time.Time
}

func (s *Service) newTracker(runID uuid.UUID, id, name string) *tracker {
	now := s.now()
	return &tracker{
		s: s,
		job: repository.Job{
			ID:          id,
			RunID:       runID,
			DisplayName: name,
			CreatedAt:   now,
		},
	}
}

func (t *tracker) percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Percent
}

func (t *tracker) save(phase status.Status, pct float64, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.saveLocked(phase, pct, msg)
}

func (t *tracker) saveLocked(phase status.Status, pct float64, msg string) {
	if t.job.Phase != phase && !t.job.Phase.CanTransition(phase) {
		logger.Debugf("Ignoring transition %s -> %s for %s", t.job.Phase, phase, t.job.ID)
		return
	}

	t.job.Phase = phase
	t.job.Percent = pct
	t.job.Error = msg
	t.job.UpdatedAt = t.s.now()
	t.lastSaved = time.Now()

	job := t.job
	if err := t.s.jobs.Save(&job); err != nil {
		logger.Warnf("Failed to journal %s: %v", t.job.ID, err)
	}
}

// wrap forwards events to sink and journals phase changes immediately and
// percent changes at most every journalInterval.
func (t *tracker) wrap(sink progress.Sink) progress.Sink {
	return progress.SinkFunc(func(ev progress.Event) error {
		phase := status.Downloading
		if ev.Status == status.Finalizing.String() {
			phase = status.Finalizing
		}

		t.mu.Lock()
		if phase != t.job.Phase || time.Since(t.lastSaved) >= journalInterval {
			t.saveLocked(phase, ev.Percent, "")
		} else {
			t.job.Percent = ev.Percent
		}
		t.mu.Unlock()

		if sink == nil {
			return nil
		}
		return sink.Send(ev)
	})
}
