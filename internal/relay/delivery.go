// internal/relay/delivery.go
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ColonelBlimp/bandwatch/internal/dsp"
)

// DetectionsPath is the collector ingest endpoint
const DetectionsPath = "/api/detections"

// drainFailLimit is the number of consecutive drain failures tolerated
// before the sweep stops early, so a collector that died mid-drain is
// not hammered.
const drainFailLimit = 3

// Outcome describes what happened to one delivered detection
type Outcome int

const (
	// OutcomeSent means the collector accepted the detection live
	OutcomeSent Outcome = iota
	// OutcomeQueued means the detection went to the local queue instead
	OutcomeQueued
	// OutcomeDropped means the queue was disabled and the detection is gone
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeQueued:
		return "queued"
	case OutcomeDropped:
		return "dropped"
	default:
		return "invalid"
	}
}

// detectionPayload is the wire form POSTed to the collector
type detectionPayload struct {
	Frequency float64 `json:"frequency"`
	Magnitude int     `json:"magnitude"`
	Timestamp int64   `json:"timestamp"`
}

// Deliverer owns the send path: live POST when the collector is
// reachable, local queue fallback when it is not, and queue drain on
// reconnect. Single-threaded like the rest of the pipeline.
type Deliverer struct {
	queue   *Queue
	monitor *Monitor
	link    Link
	client  *http.Client
	log     *slog.Logger
}

// NewDeliverer wires the delivery manager to its queue, reachability
// monitor and link layer. sendTimeout bounds each POST.
func NewDeliverer(queue *Queue, monitor *Monitor, link Link, sendTimeout time.Duration, log *slog.Logger) *Deliverer {
	if log == nil {
		log = slog.Default()
	}
	return &Deliverer{
		queue:   queue,
		monitor: monitor,
		link:    link,
		client:  &http.Client{Timeout: sendTimeout},
		log:     log,
	}
}

// Deliver sends one detection to the collector, or queues it when the
// link is down, the collector is unreachable, or the send fails. A
// successful live send opportunistically drains the queue; the drain's
// result never affects this call's own outcome.
func (d *Deliverer) Deliver(ctx context.Context, det dsp.Detection) Outcome {
	if !d.link.Up() {
		d.log.Info("link down, queueing detection",
			"op", "deliver", "frequency_hz", det.Frequency)
		return d.enqueue(det)
	}

	if !d.monitor.Probe(ctx) {
		d.log.Info("collector unreachable, queueing detection",
			"op", "deliver", "frequency_hz", det.Frequency)
		return d.enqueue(det)
	}

	if err := d.send(ctx, det); err != nil {
		d.log.Warn("send failed, queueing detection",
			"op", "deliver", "endpoint", d.monitor.ActiveEndpoint(), "error", err)
		outcome := d.enqueue(det)

		// Force a fresh probe before the next send attempt.
		d.monitor.Invalidate()
		if !d.link.Up() {
			d.link.RequestReconnect()
		}
		return outcome
	}

	d.log.Info("detection delivered",
		"op", "deliver",
		"endpoint", d.monitor.ActiveEndpoint(),
		"frequency_hz", det.Frequency,
		"magnitude", det.Magnitude)

	if d.queue.Count() > 0 {
		if err := d.Drain(ctx); err != nil {
			d.log.Warn("queue drain incomplete", "op", "deliver", "error", err)
		}
	}
	return OutcomeSent
}

// Drain attempts to deliver every queued detection oldest-first, stopping
// early after more than drainFailLimit consecutive failures. A successful
// send resets the streak, so scattered failures against a flaky collector
// do not abort the sweep. The queue is cleared only when every entry went
// through with zero failures; any failure leaves the whole log in place
// for the next drain (all-or-nothing clear, the log has no per-entry
// deletion).
func (d *Deliverer) Drain(ctx context.Context) error {
	entries, err := d.queue.Entries()
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	streak := 0
	failed := 0
	sent := 0
	for _, det := range entries {
		if streak > drainFailLimit {
			d.log.Info("drain stopped early",
				"op", "drain", "sent", sent, "failures", failed)
			break
		}
		if err := d.send(ctx, det); err != nil {
			streak++
			failed++
			continue
		}
		streak = 0
		sent++
	}

	if failed == 0 {
		if err := d.queue.Clear(); err != nil {
			return fmt.Errorf("clear queue: %w", err)
		}
		d.log.Info("queue drained", "op", "drain", "sent", sent)
		return nil
	}

	return fmt.Errorf("drain: %d of %d entries failed, queue retained", failed, len(entries))
}

// send POSTs one detection to the active endpoint. Shared by Deliver and
// Drain; it never touches the queue itself.
func (d *Deliverer) send(ctx context.Context, det dsp.Detection) error {
	body, err := json.Marshal(detectionPayload{
		Frequency: det.Frequency,
		Magnitude: det.Magnitude,
		Timestamp: det.TimestampMS,
	})
	if err != nil {
		return fmt.Errorf("encode detection: %w", err)
	}

	url := d.monitor.ActiveEndpoint() + DetectionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post detection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector rejected detection: %s", resp.Status)
	}
	return nil
}

// enqueue appends the detection to the local queue, mapping a disabled
// queue to OutcomeDropped.
func (d *Deliverer) enqueue(det dsp.Detection) Outcome {
	if err := d.queue.Append(det); err != nil {
		if !errors.Is(err, ErrQueueDisabled) {
			d.log.Warn("queue append failed, detection lost",
				"op", "deliver", "error", err)
		}
		return OutcomeDropped
	}
	return OutcomeQueued
}
