package downloader

import (
	"time"

	"github.com/NamanBalaji/vodbatch/internal/engine"
	"github.com/NamanBalaji/vodbatch/internal/ytdlp"
)

// Request asks for one media id to be fetched.
type Request struct {
	ID          string
	Credential  string
	Filename    string
	IncludeDate bool
	IncludeType bool
	VideoType   string
	// Batch tells the client to wait for a zip instead of fetching the
	// single file right away.
	Batch bool
}

// Delivery is a finished file ready to be streamed to a client.
type Delivery struct {
	ID      string
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Health is the result of the readiness probe.
type Health struct {
	Status       string             `json:"status"`
	Tool         ytdlp.ToolInfo     `json:"tool"`
	ToolError    string             `json:"toolError,omitempty"`
	DownloadsDir string             `json:"downloadsDir"`
	DirWritable  bool               `json:"dirWritable"`
	DirError     string             `json:"dirError,omitempty"`
	ActiveJobs   []engine.ActiveJob `json:"activeJobs"`
	CheckedAt    time.Time          `json:"checkedAt"`
}

// OK reports whether every probe passed.
func (h Health) OK() bool {
	return h.ToolError == "" && h.DirWritable
}
