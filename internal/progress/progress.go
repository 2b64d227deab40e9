// Package progress renders a single-line download meter on terminals.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// IsTerminalFunc reports whether a file descriptor is a terminal.
// Overridden in tests.
var IsTerminalFunc = term.IsTerminal

const (
	lineWidth   = 80
	barWidth    = 24
	minInterval = 100 * time.Millisecond
)

// Writer counts bytes written through it and redraws a meter on output.
type Writer struct {
	dst       io.Writer
	output    io.Writer
	label     string
	total     int64
	written   int64
	startTime time.Time
	lastPrint time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewWriter wraps dst. label names the download on the meter; a total of
// zero or less shows bytes and speed only.
func NewWriter(dst io.Writer, label string, total int64, output io.Writer) *Writer {
	return &Writer{
		dst:       dst,
		output:    output,
		label:     label,
		total:     total,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Write implements io.Writer.
func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.dst.Write(p)
	if n > 0 {
		pw.mu.Lock()
		pw.written += int64(n)
		pw.draw(false)
		pw.mu.Unlock()
	}
	return n, err
}

// Written returns the byte count so far.
func (pw *Writer) Written() int64 {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.written
}

// Finish clears the meter line.
func (pw *Writer) Finish() {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	_, _ = fmt.Fprintf(pw.output, "\r%s\r", strings.Repeat(" ", lineWidth))
}

func (pw *Writer) draw(force bool) {
	now := pw.now()
	if !force && now.Sub(pw.lastPrint) < minInterval {
		return
	}
	pw.lastPrint = now
	elapsed := now.Sub(pw.startTime).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}
	speed := float64(pw.written) / elapsed

	var line string
	if pw.total > 0 {
		percent := float64(pw.written) / float64(pw.total) * 100
		if percent > 100 {
			percent = 100
		}
		eta := "--:--"
		if speed > 0 {
			eta = formatDuration(float64(pw.total-pw.written) / speed)
		}
		filled := int(percent / 100 * barWidth)
		bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
		line = fmt.Sprintf("\r%s [%s] %3.0f%% %s/%s %s/s %s",
			pw.label, bar, percent,
			formatBytes(pw.written), formatBytes(pw.total),
			formatBytes(int64(speed)), eta)
	} else {
		line = fmt.Sprintf("\r%s %s (%s/s)", pw.label, formatBytes(pw.written), formatBytes(int64(speed)))
	}
	if pad := lineWidth - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	_, _ = io.WriteString(pw.output, line)
}

func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1fGB", float64(b)/GB)
	case b >= MB:
		return fmt.Sprintf("%.1fMB", float64(b)/MB)
	case b >= KB:
		return fmt.Sprintf("%.1fKB", float64(b)/KB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

// formatDuration formats seconds as M:SS or H:MM:SS.
func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// Enabled reports whether f is a terminal a meter can be drawn on.
func Enabled(f *os.File) bool {
	return f != nil && IsTerminalFunc(int(f.Fd()))
}
