package ytdlp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// ToolInfo is what the health check reports about the tool.
type ToolInfo struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Version resolves the binary and runs it with --version.
func (w *Worker) Version(ctx context.Context) (ToolInfo, error) {
	binary, err := w.binary()
	if err != nil {
		return ToolInfo{Path: w.cfg.Path}, err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(output))
		if trimmed != "" {
			return ToolInfo{Path: binary}, fmt.Errorf("yt-dlp --version failed: %s", trimmed)
		}

		return ToolInfo{Path: binary}, fmt.Errorf("yt-dlp --version failed: %w", err)
	}

	return ToolInfo{Path: binary, Version: strings.TrimSpace(string(output))}, nil
}
