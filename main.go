package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NamanBalaji/vodbatch/internal/config"
	"github.com/NamanBalaji/vodbatch/internal/downloader"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	api "github.com/NamanBalaji/vodbatch/internal/http"
	"github.com/NamanBalaji/vodbatch/internal/logger"
	"github.com/NamanBalaji/vodbatch/internal/metrics"
	"github.com/NamanBalaji/vodbatch/internal/repository"
)

const journalFile = ".jobs.db"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "", "Path to config file (default "+config.DefaultPath()+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v\n", err)
	}

	err = logger.InitLogging(*debug, cfg.LogFile)
	if err != nil {
		log.Fatalf("Warning: Failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	dir, err := filesystem.NewWorkDir(cfg.DownloadsDir)
	if err != nil {
		log.Fatalf("Error preparing downloads directory: %v\n", err)
	}

	repo, err := repository.NewBboltRepository(filepath.Join(dir.Root(), journalFile))
	if err != nil {
		log.Fatalf("Error creating repository: %v\n", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Errorf("Error closing repository: %v", err)
		}
	}()

	m := metrics.New()

	svc, err := downloader.New(cfg, dir, repo, m)
	if err != nil {
		log.Fatalf("Error creating downloader: %v\n", err)
	}

	if err := svc.Recover(); err != nil {
		logger.Errorf("Startup sweep failed: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(api.NewHandler(svc, cfg.Archive.DownloadName), cfg.Server.CORSOrigins, m),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams stay open for the length of a download.
		WriteTimeout: 0,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s, downloads in %s", srv.Addr, dir.Root())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server error: %v", err)
		}
	case <-ctx.Done():
		logger.Infof("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Running jobs are cancelled first so their streams can end.
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error stopping downloads: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error shutting down server: %v", err)
	}
}
