package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single output line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines kept per candidate.
	MaxBufferedLines = 100
)

// OutputHandler consumes the stdout/stderr of a candidate script. It keeps
// the most recent lines for the trial record and logs each one.
type OutputHandler struct {
	candidate string
	stream    string
	logger    *slog.Logger

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex

	// Unterminated tail of the last Write
	partial []byte
	wmu     sync.Mutex
}

// NewOutputHandler creates a handler for one stream of one candidate.
func NewOutputHandler(candidate, stream string, logger *slog.Logger) *OutputHandler {
	return &OutputHandler{
		candidate: candidate,
		stream:    stream,
		logger:    logger,
		buffer:    make([]string, MaxBufferedLines),
	}
}

// Write implements io.Writer so the handler can be used as exec.Cmd output.
// Writes need not be line-aligned: an unterminated tail is held until the
// next Write or Flush.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.wmu.Lock()
	defer h.wmu.Unlock()

	data := append(h.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		h.HandleLine(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	if len(data) > MaxLineLength {
		h.HandleLine(string(data))
		data = nil
	}
	h.partial = append(h.partial[:0:0], data...)
	return len(p), nil
}

// Flush emits a pending unterminated line. Call it once the stream ends.
func (h *OutputHandler) Flush() {
	h.wmu.Lock()
	defer h.wmu.Unlock()

	if len(h.partial) > 0 {
		h.HandleLine(string(bytes.TrimRight(h.partial, "\r")))
		h.partial = nil
	}
}

// HandleLine records and logs one line of output.
func (h *OutputHandler) HandleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	h.logger.Log(context.Background(), classifyLine(line), "candidate_output",
		"candidate", h.candidate,
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine picks a log level from the line content. Most script output
// is noise and stays at debug.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)
	for _, p := range ErrorPatterns {
		if strings.Contains(lower, p) {
			return slog.LevelWarn
		}
	}
	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are lowercase substrings that mark a line as a problem.
var ErrorPatterns = []string{
	"error",
	"failed",
	"access is denied",
	"not recognized",
	"cannot find",
	"windivert",
}

// CountErrors counts occurrences of error patterns in the buffer.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
