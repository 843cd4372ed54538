package progress_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanBalaji/vodbatch/internal/progress"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		line   string
		ok     bool
		pct    float64
		status string
		speed  string
		eta    string
	}{
		{
			name:   "full yt-dlp line",
			line:   "[download]  50.0% of 10.00MiB at 1.2MiB/s ETA 00:05",
			ok:     true,
			pct:    50.0,
			status: "downloading",
			speed:  "1.2MiB/s",
			eta:    "00:05",
		},
		{
			name:   "rounds to one decimal",
			line:   "42.37% ... ETA 01:23",
			ok:     true,
			pct:    42.4,
			status: "downloading",
			eta:    "01:23",
		},
		{
			name:   "hundred is finalizing",
			line:   "100.0% done",
			ok:     true,
			pct:    100,
			status: "finalizing",
		},
		{
			name:   "rounding up to hundred is finalizing",
			line:   "[download]  99.96% of 3GiB",
			ok:     true,
			pct:    100,
			status: "finalizing",
		},
		{
			name:   "integer percent",
			line:   "7% at 512KiB/s",
			ok:     true,
			pct:    7,
			status: "downloading",
			speed:  "512KiB/s",
		},
		{
			name:   "hour eta",
			line:   "[download]   1.0% of 40GiB at 3.1MiB/s ETA 03:41:07",
			ok:     true,
			pct:    1,
			status: "downloading",
			speed:  "3.1MiB/s",
			eta:    "03:41:07",
		},
		{name: "no percent", line: "[Merger] Merging formats into \"x.mp4\"", ok: false},
		{name: "empty", line: "", ok: false},
		{name: "bare percent sign", line: "100 %", ok: false},
		{name: "binary", line: "\x00\xff\xfe%\x01", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev, ok := progress.ParseLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}

			assert.Equal(t, progress.KindProgress, ev.Type)
			assert.InDelta(t, tt.pct, ev.Percent, 1e-9)
			assert.Equal(t, tt.status, ev.Status)
			assert.Equal(t, tt.speed, ev.Speed)
			assert.Equal(t, tt.eta, ev.ETA)
		})
	}
}

func TestEventJSON(t *testing.T) {
	ev, ok := progress.ParseLine("50.0% of 10MiB at 1.2MiB/s ETA 00:05")
	require.True(t, ok)

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"progress","percent":50,"status":"downloading","speed":"1.2MiB/s","eta":"00:05"}`, string(b))

	b, err = json.Marshal(progress.Complete("/api/videos/1/file", "clip", false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete","percent":100,"downloadUrl":"/api/videos/1/file","filename":"clip","batchDownload":false}`, string(b))
}
