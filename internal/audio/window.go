// internal/audio/window.go
package audio

import "errors"

var (
	// ErrInvalidWindowSize indicates window size must be positive
	ErrInvalidWindowSize = errors.New("window size must be positive")
	// ErrInvalidAccumBlockSize indicates block size must divide the window size
	ErrInvalidAccumBlockSize = errors.New("block size must be positive and divide the window size")
)

// Accumulator collects fixed-size sample blocks into a full analysis
// window. The window buffer is owned by the accumulator and reused in
// place; callers must finish with Window() before the next Add.
type Accumulator struct {
	windowSize int
	blockSize  int
	buffer     []float64
	filled     int
}

// NewAccumulator creates an accumulator for the given window and block sizes.
func NewAccumulator(windowSize, blockSize int) (*Accumulator, error) {
	if windowSize <= 0 {
		return nil, ErrInvalidWindowSize
	}
	if blockSize <= 0 || windowSize%blockSize != 0 {
		return nil, ErrInvalidAccumBlockSize
	}

	return &Accumulator{
		windowSize: windowSize,
		blockSize:  blockSize,
		buffer:     make([]float64, windowSize),
	}, nil
}

// Add appends one hardware block to the window buffer. It returns true
// exactly when the window fills, at which point the fill counter resets
// so the next Add starts a fresh window.
//
// A block of the wrong length is a transient hardware miss: the counter
// does not advance and the caller retries on the next cycle.
func (a *Accumulator) Add(block []float32) bool {
	if len(block) != a.blockSize {
		return false
	}

	for i, s := range block {
		a.buffer[a.filled+i] = float64(s)
	}
	a.filled += a.blockSize

	if a.filled >= a.windowSize {
		a.filled = 0
		return true
	}
	return false
}

// Window returns the filled window buffer. Valid only between a true
// return from Add and the following Add; the analyzer mutates it in place.
func (a *Accumulator) Window() []float64 {
	return a.buffer
}

// Filled returns the current fill counter (for tests and diagnostics)
func (a *Accumulator) Filled() int {
	return a.filled
}

// Reset discards any partially accumulated window
func (a *Accumulator) Reset() {
	a.filled = 0
}
