// Package ytdlptest builds stand-in yt-dlp executables for tests.
package ytdlptest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Version is what a fake tool prints for --version.
const Version = "2025.09.26"

// Script describes the behaviour of a fake yt-dlp.
type Script struct {
	// Stdout lines, printed in order.
	Lines []string
	// Stderr lines.
	Stderr []string
	// Bytes written to the -o path. Zero leaves an empty file.
	Bytes int
	// NoOutput skips creating the -o file.
	NoOutput bool
	// ExitCode of the process.
	ExitCode int
	// Hang sleeps after printing until the process is killed.
	Hang bool
	// ArgsFile, when set, receives the arguments one per line.
	ArgsFile string
}

// Write creates an executable shell script in a temp dir and returns its path.
func Write(tb testing.TB, s Script) string {
	tb.Helper()

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("if [ \"$1\" = \"--version\" ]; then echo " + Version + "; exit 0; fi\n")

	if s.ArgsFile != "" {
		fmt.Fprintf(&b, "for a in \"$@\"; do printf '%%s\\n' \"$a\" >> %s; done\n", quote(s.ArgsFile))
	}

	b.WriteString("out=\"\"\n")
	b.WriteString("while [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then out=\"$2\"; shift; fi\n  shift\ndone\n")

	for _, l := range s.Lines {
		fmt.Fprintf(&b, "printf '%%s\\n' %s\n", quote(l))
	}
	for _, l := range s.Stderr {
		fmt.Fprintf(&b, "printf '%%s\\n' %s >&2\n", quote(l))
	}

	if s.Hang {
		b.WriteString("sleep 30\n")
	}

	if !s.NoOutput {
		if s.Bytes > 0 {
			fmt.Fprintf(&b, "head -c %d /dev/zero > \"$out\"\n", s.Bytes)
		} else {
			b.WriteString(": > \"$out\"\n")
		}
	}

	fmt.Fprintf(&b, "exit %d\n", s.ExitCode)

	path := filepath.Join(tb.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		tb.Fatalf("write fake yt-dlp: %v", err)
	}

	return path
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
