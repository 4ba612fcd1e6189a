// internal/dsp/spectrum.go
package dsp

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

var (
	// ErrInvalidFFTSize indicates window size must be positive and even
	ErrInvalidFFTSize = errors.New("window size must be positive and even")
	// ErrWindowLength indicates the sample window has the wrong length
	ErrWindowLength = errors.New("sample window length does not match configured window size")
)

// Analyzer turns a filled sample window into per-bin magnitude.
// Bin i corresponds to frequency i * sampleRate / windowSize.
type Analyzer struct {
	windowSize int
	hamming    []float64
	magnitude  []float64 // reused each cycle, windowSize/2 bins
}

// NewAnalyzer creates a spectral analyzer for the given window size.
// Hamming coefficients are precomputed once.
func NewAnalyzer(windowSize int) (*Analyzer, error) {
	if windowSize <= 0 || windowSize%2 != 0 {
		return nil, ErrInvalidFFTSize
	}

	return &Analyzer{
		windowSize: windowSize,
		hamming:    window.Hamming(windowSize),
		magnitude:  make([]float64, windowSize/2),
	}, nil
}

// Spectrum applies the Hamming window to samples in place, runs a forward
// real FFT and returns per-bin magnitude for the first windowSize/2 bins.
//
// The returned slice is owned by the analyzer and overwritten on the next
// call; consumers must not retain it across cycles.
func (a *Analyzer) Spectrum(samples []float64) ([]float64, error) {
	if len(samples) != a.windowSize {
		return nil, ErrWindowLength
	}

	for i := range samples {
		samples[i] *= a.hamming[i]
	}

	bins := fft.FFTReal(samples)
	for i := 0; i < a.windowSize/2; i++ {
		a.magnitude[i] = cmplx.Abs(bins[i])
	}

	return a.magnitude, nil
}

// BinFrequency returns the center frequency of bin i in Hz.
func (a *Analyzer) BinFrequency(i int, sampleRate float64) float64 {
	return float64(i) * sampleRate / float64(a.windowSize)
}

// WindowSize returns the configured window size
func (a *Analyzer) WindowSize() int {
	return a.windowSize
}
