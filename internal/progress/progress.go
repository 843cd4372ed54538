package progress

import (
	"math"
	"regexp"
	"strconv"

	"github.com/NamanBalaji/vodbatch/internal/status"
)

// Kind tags an Event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
)

// Event is one message on a job's stream. Progress events carry Percent,
// Status and the optional Speed/ETA; complete events carry DownloadURL,
// Filename and Batch.
type Event struct {
	Type        Kind    `json:"type"`
	Percent     float64 `json:"percent"`
	Status      string  `json:"status,omitempty"`
	Speed       string  `json:"speed,omitempty"`
	ETA         string  `json:"eta,omitempty"`
	DownloadURL string  `json:"downloadUrl,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	Batch       *bool   `json:"batchDownload,omitempty"`
}

// Sink receives events in the order they were produced.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Send(e Event) error { return f(e) }

var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	speedRe   = regexp.MustCompile(`\d+(?:\.\d+)?[KMG]iB/s`)
	etaRe     = regexp.MustCompile(`ETA\s+(\d+:\d{2}(?::\d{2})?)`)
)

// ParseLine extracts a progress event from one line of tool output. The
// second result is false when the line carries no percentage.
func ParseLine(line string) (Event, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return Event{}, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(pct, 0) || math.IsNaN(pct) {
		return Event{}, false
	}
	pct = math.Round(pct*10) / 10

	ev := Event{
		Type:    KindProgress,
		Percent: pct,
		Status:  status.Downloading.String(),
	}
	if pct == 100 {
		ev.Status = status.Finalizing.String()
	}

	if s := speedRe.FindString(line); s != "" {
		ev.Speed = s
	}
	if e := etaRe.FindStringSubmatch(line); e != nil {
		ev.ETA = e[1]
	}

	return ev, true
}

// Complete builds the terminal event for a finished job.
func Complete(downloadURL, filename string, batch bool) Event {
	return Event{
		Type:        KindComplete,
		Percent:     100,
		DownloadURL: downloadURL,
		Filename:    filename,
		Batch:       &batch,
	}
}

