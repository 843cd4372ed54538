package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/vodbatch/internal/config"
	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/logger"
	"github.com/NamanBalaji/vodbatch/internal/progress"
)

const (
	// waitDelay bounds how long Wait blocks on pipes after the process is killed.
	waitDelay   = 5 * time.Second
	maxLineSize = 1 << 20
)

// Result describes a verified output file.
type Result struct {
	Path string
	Size int64
}

// Worker runs yt-dlp for one media id at a time. It is safe for concurrent
// use; each Run owns its own process.
type Worker struct {
	cfg *config.ToolConfig
}

// New creates a new yt-dlp worker.
func New(cfg *config.ToolConfig) (*Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tool config is required")
	}

	return &Worker{cfg: cfg}, nil
}

// Ext is the container extension of produced files.
func (w *Worker) Ext() string {
	return w.cfg.MergeFormat
}

// Args returns the argument list used to fetch id into outputPath.
func (w *Worker) Args(id, outputPath string) []string {
	args := make([]string, 0, len(w.cfg.ExtraArgs)+13)
	args = append(args, w.cfg.ExtraArgs...)
	args = append(args,
		w.cfg.BaseURL+id,
		"-o", outputPath,
		"-f", w.cfg.Format,
		"--merge-output-format", w.cfg.MergeFormat,
		"--newline",
		"--no-colors",
		"--no-warnings",
		"--progress",
		"--no-playlist",
	)

	return args
}

// Run spawns yt-dlp for id, sends a progress event to sink for every progress
// line on stdout in output order, and verifies that outputPath exists with a
// non-zero size once the process exits 0. Cancelling ctx kills the whole
// process group. A failed Send does not stop the process; the output is still
// drained.
func (w *Worker) Run(ctx context.Context, id, outputPath string, sink progress.Sink) (Result, error) {
	binary, err := w.binary()
	if err != nil {
		return Result{}, errors.NewProcessError(err, id, 0)
	}

	removePartials(outputPath)

	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, w.Args(id, outputPath)...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, errors.NewProcessError(err, id, 0)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, errors.NewProcessError(err, id, 0)
	}

	logger.Debugf("Starting %s %s", binary, strings.Join(w.Args(id, outputPath), " "))

	if err := cmd.Start(); err != nil {
		return Result{}, errors.NewProcessError(fmt.Errorf("failed to start yt-dlp: %w", err), id, 0)
	}

	var g errgroup.Group
	g.Go(func() error {
		return consumeOutput(stdout, func(line string) { handleLine(id, line, sink) })
	})
	g.Go(func() error {
		return consumeOutput(stderr, func(line string) { logger.Warnf("yt-dlp[%s]: %s", id, line) })
	})

	// All pipe reads must finish before Wait closes them.
	if err := g.Wait(); err != nil {
		logger.Debugf("yt-dlp[%s] output error: %v", id, err)
	}
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		removePartials(outputPath)
		if errors.Is(ctxErr, context.DeadlineExceeded) && w.cfg.Timeout > 0 {
			return Result{}, errors.NewProcessError(fmt.Errorf("yt-dlp timed out after %s", w.cfg.Timeout), id, -1)
		}
		return Result{}, errors.NewContextError(ctxErr, id)
	}

	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return Result{}, errors.NewProcessError(waitErr, id, code)
	}

	return verifyOutput(id, outputPath)
}

func (w *Worker) binary() (string, error) {
	binary := strings.TrimSpace(w.cfg.Path)
	if binary == "" {
		binary = "yt-dlp"
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return "", errors.ErrBinaryNotFound
	}

	return path, nil
}

func verifyOutput(id, outputPath string) (Result, error) {
	info, err := os.Stat(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.NewProcessError(errors.ErrEmptyOutput, id, 0)
		}
		return Result{}, errors.NewIOError(err, outputPath)
	}

	if !info.Mode().IsRegular() || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return Result{}, errors.NewProcessError(errors.ErrEmptyOutput, id, 0)
	}

	return Result{Path: outputPath, Size: info.Size()}, nil
}

func consumeOutput(r io.Reader, handle func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		handle(line)
	}

	if err := scanner.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}

	return nil
}

func handleLine(id, line string, sink progress.Sink) {
	ev, ok := progress.ParseLine(line)
	if !ok {
		logger.Debugf("yt-dlp[%s]: %s", id, line)
		return
	}

	if sink == nil {
		return
	}

	if err := sink.Send(ev); err != nil {
		logger.Debugf("yt-dlp[%s]: dropped progress event: %v", id, err)
	}
}

// removePartials deletes leftovers of an earlier interrupted run for the same
// output path. Format specific fragments look like <base>.f137.mp4.part.
func removePartials(outputPath string) {
	candidates := []string{outputPath, outputPath + ".part", outputPath + ".ytdl"}

	base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	if matches, err := filepath.Glob(base + ".f[0-9]*"); err == nil {
		candidates = append(candidates, matches...)
	}
	if matches, err := filepath.Glob(base + ".temp.*"); err == nil {
		candidates = append(candidates, matches...)
	}

	for _, p := range candidates {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Failed to remove partial %s: %v", p, err)
		}
	}
}
