package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	port                   = 3001
	corsOrigin             = "http://localhost:5173"
	maxConcurrentDownloads = 3
	shutdownTimeout        = 10 * time.Second
	cleanupDelay           = 5 * time.Second
	ytdlpPath              = "yt-dlp"
	videoBaseURL           = "https://www.twitch.tv/videos/"
	formatSelector         = "bestvideo+bestaudio/best"
	mergeFormat            = "mp4"
	compressionLevel       = 5
	archiveDownloadName    = "videos.zip"
)

func defaultDownloadsDir() string {
	return filepath.Join(xdg.DataHome, appName, "downloads")
}

func defaultLogFile() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}
