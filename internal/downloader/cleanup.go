package downloader

import (
	"sync"
	"time"

	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/logger"
	"github.com/NamanBalaji/vodbatch/internal/metrics"
)

// cleaner removes delivered files after a grace delay. Pending removals are
// keyed so a fresh run of the same media can call its removal off. They can
// also be run early with flush.
type cleaner struct {
	dir     *filesystem.WorkDir
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*cleanup
}

type cleanup struct {
	timer *time.Timer
	paths []string
	after func()
}

func newCleaner(dir *filesystem.WorkDir, m *metrics.Metrics) *cleaner {
	return &cleaner{
		dir:     dir,
		metrics: m,
		pending: make(map[string]*cleanup),
	}
}

// schedule replaces any removal already pending under key.
func (c *cleaner) schedule(key string, delay time.Duration, paths []string, after func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[key]; ok {
		prev.timer.Stop()
	}

	job := &cleanup{paths: paths, after: after}
	c.pending[key] = job
	job.timer = time.AfterFunc(delay, func() {
		if c.take(key, job) {
			c.run(job)
		}
	})
}

// cancel drops the removal pending under key, if any.
func (c *cleaner) cancel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.pending[key]
	if !ok {
		return false
	}
	job.timer.Stop()
	delete(c.pending, key)
	return true
}

// take claims job from the pending set. It fails once the job was replaced,
// cancelled or flushed.
func (c *cleaner) take(key string, job *cleanup) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[key] != job {
		return false
	}
	delete(c.pending, key)
	return true
}

func (c *cleaner) run(job *cleanup) {
	if err := c.dir.Remove(job.paths...); err != nil {
		failed := len(unwrapJoined(err))
		c.metrics.CleanupFailed(failed)
		logger.Warnf("Cleanup left %d file(s) behind: %v", failed, err)
	}

	if job.after != nil {
		job.after()
	}
}

// flush runs every pending cleanup now.
func (c *cleaner) flush() {
	c.mu.Lock()
	jobs := make([]*cleanup, 0, len(c.pending))
	for key, job := range c.pending {
		job.timer.Stop()
		jobs = append(jobs, job)
		delete(c.pending, key)
	}
	c.mu.Unlock()

	for _, job := range jobs {
		c.run(job)
	}
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
