// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ColonelBlimp/bandwatch/internal/audio"
	"github.com/ColonelBlimp/bandwatch/internal/dsp"
	"github.com/ColonelBlimp/bandwatch/internal/relay"
)

var (
	// ErrNilStage indicates a required pipeline stage is missing
	ErrNilStage = errors.New("all pipeline stages are required")
	// ErrInvalidReadTimeout indicates the block read timeout must be positive
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")
)

// Pipeline is the single-threaded acquire → analyze → detect → deliver
// loop. All mutable pipeline state (window buffer, reachability,
// timestamps) lives in the stage objects it owns; there are no package
// globals. One iteration performs one acquisition attempt and, only when
// a window completes, one full analysis cycle.
//
// Network calls block the loop for up to their timeouts; that is
// acceptable because detection cadence is already gated by window-fill
// time, and it is why the send/probe timeouts must stay short.
type Pipeline struct {
	blocks      <-chan []float32
	acc         *audio.Accumulator
	analyzer    *dsp.Analyzer
	detector    *dsp.Detector
	deliverer   *relay.Deliverer
	readTimeout time.Duration
	log         *slog.Logger

	start time.Time
	// now is swappable for tests
	now func() time.Time
}

// New wires the pipeline stages together. blocks is the capture output;
// readTimeout bounds the wait for one hardware block, and an expired wait
// is a transient miss, not an error.
func New(
	blocks <-chan []float32,
	acc *audio.Accumulator,
	analyzer *dsp.Analyzer,
	detector *dsp.Detector,
	deliverer *relay.Deliverer,
	readTimeout time.Duration,
	log *slog.Logger,
) (*Pipeline, error) {
	if blocks == nil || acc == nil || analyzer == nil || detector == nil || deliverer == nil {
		return nil, ErrNilStage
	}
	if readTimeout <= 0 {
		return nil, ErrInvalidReadTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		blocks:      blocks,
		acc:         acc,
		analyzer:    analyzer,
		detector:    detector,
		deliverer:   deliverer,
		readTimeout: readTimeout,
		log:         log,
		now:         time.Now,
	}, nil
}

// Run drives the loop until ctx is cancelled or the capture channel
// closes. Designed to run indefinitely unattended: every failure inside a
// cycle is logged and the loop moves on to the next window.
func (p *Pipeline) Run(ctx context.Context) error {
	p.start = p.now()
	timer := time.NewTimer(p.readTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.readTimeout)

		select {
		case <-ctx.Done():
			return ctx.Err()

		case block, ok := <-p.blocks:
			if !ok {
				return nil
			}
			if p.acc.Add(block) {
				p.cycle(ctx)
			}

		case <-timer.C:
			// Transient acquisition miss; retry next iteration.
		}
	}
}

// cycle runs one analyze/detect/deliver pass over the filled window
func (p *Pipeline) cycle(ctx context.Context) {
	spectrum, err := p.analyzer.Spectrum(p.acc.Window())
	if err != nil {
		p.log.Warn("spectral analysis failed", "op", "cycle", "error", err)
		return
	}

	det, ok, err := p.detector.Scan(spectrum, p.elapsedMS())
	if err != nil {
		// Band misconfiguration aborts this window only.
		p.log.Warn("detection aborted for window", "op", "cycle", "error", err)
		return
	}
	if !ok {
		return
	}

	outcome := p.deliverer.Deliver(ctx, det)
	p.log.Debug("detection handled",
		"op", "cycle",
		"outcome", outcome.String(),
		"frequency_hz", det.Frequency,
		"magnitude", det.Magnitude)
}

// elapsedMS is the device-relative timestamp: milliseconds since Run started
func (p *Pipeline) elapsedMS() int64 {
	return p.now().Sub(p.start).Milliseconds()
}
