// internal/dsp/detector.go
package dsp

import (
	"errors"
	"log/slog"
	"math"
)

var (
	// ErrInvalidBand indicates the target band is empty or inverted
	ErrInvalidBand = errors.New("target band max must exceed band min and both must be positive")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidScaleFactor indicates scale factor must be positive
	ErrInvalidScaleFactor = errors.New("scale factor must be positive")
	// ErrBandAboveNyquist indicates the band reaches or exceeds the Nyquist bin
	ErrBandAboveNyquist = errors.New("target band reaches or exceeds the Nyquist frequency")
)

// Detection is an actionable band detection: a peak that crossed both
// magnitude gates. Immutable once created.
type Detection struct {
	// Frequency is the peak bin center frequency in Hz
	Frequency float64
	// Magnitude is the scaled peak magnitude, round(raw * scaleFactor)
	Magnitude int
	// TimestampMS is device-relative milliseconds since pipeline start
	TimestampMS int64
}

// Signal describes the strongest bin in the target band for one window,
// before either gate is applied. Exposed for observability; only gate-2
// crossings become Detections.
type Signal struct {
	Frequency    float64
	RawMagnitude float64
	ScaledMag    int
}

// DetectorConfig holds configuration for the target-band detector.
// All values should come from the application config file.
type DetectorConfig struct {
	// TargetFreqMin is the lower band edge in Hz (from config: target_freq_min)
	TargetFreqMin float64
	// TargetFreqMax is the upper band edge in Hz (from config: target_freq_max)
	TargetFreqMax float64
	// SampleRate is the audio sample rate in Hz (from config: sample_rate)
	SampleRate float64
	// WindowSize is the FFT window size (from config: window_size)
	WindowSize int
	// RawThreshold is gate 1: the minimum raw peak magnitude (from config: raw_threshold)
	RawThreshold float64
	// ScaleFactor multiplies the raw peak before gate 2 (from config: scale_factor)
	ScaleFactor float64
	// ScaledThreshold is gate 2: the minimum scaled magnitude for an
	// actionable detection (from config: scaled_threshold)
	ScaledThreshold int
}

// Detector scans a fixed bin range of a magnitude spectrum for a peak and
// applies the two-stage threshold. Gate 1 separates signal from noise;
// only gate 2 produces a Detection worth delivering.
type Detector struct {
	config DetectorConfig
	minBin int
	maxBin int
	log    *slog.Logger

	// lastSignal holds the strongest in-band signal of the most recent
	// scan that crossed gate 1, for diagnostics.
	lastSignal *Signal
}

// NewDetector creates a new band detector with the given configuration.
// Band/Nyquist misconfiguration is also re-checked on every Scan so a
// reconfigured pipeline fails closed rather than crashing.
func NewDetector(cfg DetectorConfig, log *slog.Logger) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.TargetFreqMin <= 0 || cfg.TargetFreqMax <= cfg.TargetFreqMin {
		return nil, ErrInvalidBand
	}
	if cfg.ScaleFactor <= 0 {
		return nil, ErrInvalidScaleFactor
	}
	if cfg.WindowSize <= 0 || cfg.WindowSize%2 != 0 {
		return nil, ErrInvalidFFTSize
	}
	if log == nil {
		log = slog.Default()
	}

	minBin := int(math.Round(cfg.TargetFreqMin * float64(cfg.WindowSize) / cfg.SampleRate))
	maxBin := int(math.Round(cfg.TargetFreqMax * float64(cfg.WindowSize) / cfg.SampleRate))

	return &Detector{
		config: cfg,
		minBin: minBin,
		maxBin: maxBin,
		log:    log,
	}, nil
}

// Scan searches bins [minBin, maxBin] of the magnitude spectrum for the
// peak. Ties keep the first (lowest-bin) maximum. Returns a Detection only
// when the peak crosses both gates; a gate-1-only peak is logged and kept
// in LastSignal but not emitted.
//
// Fails closed with ErrBandAboveNyquist when maxBin >= windowSize/2; the
// caller skips the cycle and the loop continues.
func (d *Detector) Scan(spectrum []float64, timestampMS int64) (Detection, bool, error) {
	d.lastSignal = nil

	if d.maxBin >= d.config.WindowSize/2 {
		return Detection{}, false, ErrBandAboveNyquist
	}
	if d.maxBin >= len(spectrum) {
		return Detection{}, false, ErrWindowLength
	}

	maxMag := 0.0
	peakBin := d.minBin
	for i := d.minBin; i <= d.maxBin; i++ {
		if spectrum[i] > maxMag {
			maxMag = spectrum[i]
			peakBin = i
		}
	}

	// Gate 1: raw magnitude floor. Below it the window is silence/noise.
	if maxMag < d.config.RawThreshold {
		return Detection{}, false, nil
	}

	freq := float64(peakBin) * d.config.SampleRate / float64(d.config.WindowSize)
	scaled := int(math.Round(maxMag * d.config.ScaleFactor))
	d.lastSignal = &Signal{Frequency: freq, RawMagnitude: maxMag, ScaledMag: scaled}

	// Gate 2: actionable threshold on the scaled magnitude.
	if scaled < d.config.ScaledThreshold {
		d.log.Debug("in-band signal below actionable threshold",
			"frequency_hz", freq,
			"raw_magnitude", maxMag,
			"scaled_magnitude", scaled,
			"scaled_threshold", d.config.ScaledThreshold)
		return Detection{}, false, nil
	}

	return Detection{
		Frequency:   freq,
		Magnitude:   scaled,
		TimestampMS: timestampMS,
	}, true, nil
}

// LastSignal returns the strongest in-band signal of the most recent scan
// that crossed gate 1, or nil. For diagnostics only.
func (d *Detector) LastSignal() *Signal {
	return d.lastSignal
}

// BinRange returns the inclusive bin range scanned (for testing)
func (d *Detector) BinRange() (int, int) {
	return d.minBin, d.maxBin
}

// Config returns the current configuration
func (d *Detector) Config() DetectorConfig {
	return d.config
}
