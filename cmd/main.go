package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/NamanBalaji/vodbatch/internal/config"
	"github.com/NamanBalaji/vodbatch/internal/downloader"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/logger"
	"github.com/NamanBalaji/vodbatch/internal/metrics"
	"github.com/NamanBalaji/vodbatch/internal/progress"
	"github.com/NamanBalaji/vodbatch/internal/repository"
	"github.com/NamanBalaji/vodbatch/internal/tui/components"
	"github.com/NamanBalaji/vodbatch/internal/tui/styles"
)

const lineWidth = 100

// printer serializes progress lines from concurrent jobs and remembers the
// last event of each.
type printer struct {
	mu   sync.Mutex
	last map[string]progress.Event
}

func newPrinter() *printer {
	return &printer{last: make(map[string]progress.Event)}
}

func (p *printer) sink(id string) progress.Sink {
	return progress.SinkFunc(func(ev progress.Event) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.last[id] = ev
		fmt.Println(components.JobItem(id, ev, nil, lineWidth))
		return nil
	})
}

func (p *printer) fail(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Println(components.JobItem(id, p.last[id], err, lineWidth))
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "", "Path to config file")
	name := flag.String("name", "", "Display name (defaults to the id)")
	withDate := flag.Bool("date", false, "Append today's date to the name")
	withType := flag.Bool("type", false, "Append the video type to the name")
	videoType := flag.String("video-type", "", "Video type suffix used with -type")
	zipOut := flag.String("zip", "", "Bundle the finished files into this zip")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <id> [id...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	ids := flag.Args()
	if len(ids) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogging(*debug, cfg.LogFile); err != nil {
		fmt.Printf("Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	dir, err := filesystem.NewWorkDir(cfg.DownloadsDir)
	if err != nil {
		fmt.Printf("Error preparing downloads directory: %v\n", err)
		os.Exit(1)
	}

	repo, err := repository.NewBboltRepository(filepath.Join(dir.Root(), ".jobs.db"))
	if err != nil {
		fmt.Printf("Error opening journal: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	svc, err := downloader.New(cfg, dir, repo, metrics.New())
	if err != nil {
		fmt.Printf("Error creating downloader: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := newPrinter()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		finished []string
		failed   int
	)

	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()

			filename := *name
			if filename == "" {
				filename = id
			}

			_, err := svc.Download(ctx, downloader.Request{
				ID:          id,
				Credential:  "local",
				Filename:    filename,
				IncludeDate: *withDate,
				IncludeType: *withType,
				VideoType:   *videoType,
				Batch:       *zipOut != "",
			}, out.sink(id))

			if err != nil {
				out.fail(id, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			finished = append(finished, id)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if *zipOut != "" && len(finished) > 0 {
		res, err := svc.BuildArchive(ctx, finished)
		if err != nil {
			fmt.Printf("Error building archive: %v\n", err)
			os.Exit(1)
		}
		if err := os.Rename(res.Path, *zipOut); err != nil {
			fmt.Printf("Archive left at %s: %v\n", res.Path, err)
			os.Exit(1)
		}
		fmt.Println(styles.SuccessStyle.Render(fmt.Sprintf("Wrote %s (%d entries, %d bytes)", *zipOut, len(res.Entries), res.Size)))
	}

	if err := svc.Shutdown(context.Background()); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	if failed > 0 {
		fmt.Println(styles.ErrorStyle.Render(fmt.Sprintf("%d of %d downloads failed", failed, len(ids))))
		os.Exit(1)
	}
}
