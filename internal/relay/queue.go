// internal/relay/queue.go
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ColonelBlimp/bandwatch/internal/dsp"
)

// ErrQueueDisabled indicates the backing file could not be opened at
// startup and the queue is running in disabled (drop) mode.
var ErrQueueDisabled = errors.New("local queue disabled: storage unavailable")

// Queue is the store-and-forward log of undelivered detections: an
// append-only text file, one detection per line as
// "frequency,magnitude,timestamp" with frequency rounded to an integer.
//
// Bounded: Append evicts oldest entries via Trim once the count exceeds
// maxEntries. All access is single-threaded per the pipeline's execution
// model; the file is never shared between goroutines.
//
// If the backing storage is unavailable at initialization the queue runs
// disabled: every operation is a logged no-op and failed deliveries are
// dropped. Availability over durability.
type Queue struct {
	path       string
	maxEntries int
	count      int
	disabled   bool
	log        *slog.Logger
}

// NewQueue opens (creating if needed) the queue file and counts existing
// entries. On storage failure the returned queue is disabled, not nil, so
// the pipeline keeps running.
func NewQueue(path string, maxEntries int, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}

	q := &Queue{path: path, maxEntries: maxEntries, log: log}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		q.disabled = true
		log.Warn("queue storage unavailable, running in drop mode",
			"op", "queue.init", "path", path, "error", err)
		return q
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			q.count++
		}
	}
	if err := scanner.Err(); err != nil {
		q.disabled = true
		log.Warn("queue storage unreadable, running in drop mode",
			"op", "queue.init", "path", path, "error", err)
	}

	return q
}

// Enabled reports whether the queue has working storage
func (q *Queue) Enabled() bool {
	return !q.disabled
}

// Count returns the number of queued detections
func (q *Queue) Count() int {
	if q.disabled {
		return 0
	}
	return q.count
}

// Append serializes the detection and appends it to the log, then trims
// if the bound is exceeded. In disabled mode the detection is dropped
// with a warning.
func (q *Queue) Append(d dsp.Detection) error {
	if q.disabled {
		q.log.Warn("queue disabled, dropping detection",
			"op", "queue.append", "frequency_hz", d.Frequency, "magnitude", d.Magnitude)
		return ErrQueueDisabled
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEntry(d) + "\n"); err != nil {
		return fmt.Errorf("append queue entry: %w", err)
	}
	q.count++

	if q.count > q.maxEntries {
		if err := q.Trim(q.maxEntries); err != nil {
			return err
		}
	}
	return nil
}

// Entries reads all queued detections oldest-first. Malformed lines are
// skipped with a warning rather than failing the whole read.
func (q *Queue) Entries() ([]dsp.Detection, error) {
	if q.disabled {
		return nil, nil
	}

	lines, err := q.readLines()
	if err != nil {
		return nil, err
	}

	entries := make([]dsp.Detection, 0, len(lines))
	for _, line := range lines {
		d, err := parseEntry(line)
		if err != nil {
			q.log.Warn("skipping malformed queue entry",
				"op", "queue.entries", "line", line, "error", err)
			continue
		}
		entries = append(entries, d)
	}
	return entries, nil
}

// Clear removes every queued entry. Called only after a drain in which
// every entry was delivered; a partially successful drain leaves the log
// untouched (all-or-nothing clear, so the log stays consistent without
// per-entry deletion).
func (q *Queue) Clear() error {
	if q.disabled {
		return nil
	}
	if err := os.WriteFile(q.path, nil, 0644); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	q.count = 0
	return nil
}

// Trim rewrites the log keeping only the newest maxEntries lines. A no-op
// when the queue already fits; otherwise a full read + rewrite, which is
// O(n) but fine for the small bound.
func (q *Queue) Trim(maxEntries int) error {
	if q.disabled || q.count <= maxEntries {
		return nil
	}

	lines, err := q.readLines()
	if err != nil {
		return err
	}

	if len(lines) > maxEntries {
		dropped := len(lines) - maxEntries
		lines = lines[dropped:]
		q.log.Info("queue trimmed, oldest entries evicted",
			"op", "queue.trim", "dropped", dropped, "kept", len(lines))
	}

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	// Write-then-rename so a crash mid-trim never truncates the log.
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write trimmed queue: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}

	q.count = len(lines)
	return nil
}

func (q *Queue) readLines() ([]string, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	return lines, nil
}

// formatEntry renders one queue line: frequency is stored rounded to an
// integer, magnitude and timestamp as-is.
func formatEntry(d dsp.Detection) string {
	return strconv.Itoa(int(math.Round(d.Frequency))) + "," +
		strconv.Itoa(d.Magnitude) + "," +
		strconv.FormatInt(d.TimestampMS, 10)
}

func parseEntry(line string) (dsp.Detection, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return dsp.Detection{}, fmt.Errorf("want 3 fields, got %d", len(fields))
	}

	freq, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return dsp.Detection{}, fmt.Errorf("frequency: %w", err)
	}
	mag, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return dsp.Detection{}, fmt.Errorf("magnitude: %w", err)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return dsp.Detection{}, fmt.Errorf("timestamp: %w", err)
	}

	return dsp.Detection{Frequency: freq, Magnitude: mag, TimestampMS: ts}, nil
}
