// internal/audio/window_test.go
package audio

import (
	"errors"
	"testing"
)

const (
	accumTestWindowSize = 2048
	accumTestBlockSize  = 1024
)

func createTestAccumulator(t *testing.T) *Accumulator {
	t.Helper()
	a, err := NewAccumulator(accumTestWindowSize, accumTestBlockSize)
	if err != nil {
		t.Fatalf("NewAccumulator failed: %v", err)
	}
	return a
}

func makeBlock(size int, value float32) []float32 {
	block := make([]float32, size)
	for i := range block {
		block[i] = value
	}
	return block
}

func TestNewAccumulator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name       string
		windowSize int
		blockSize  int
		wantErr    error
	}{
		{"zero window", 0, 1024, ErrInvalidWindowSize},
		{"negative window", -1, 1024, ErrInvalidWindowSize},
		{"zero block", 2048, 0, ErrInvalidAccumBlockSize},
		{"block does not divide window", 2048, 1000, ErrInvalidAccumBlockSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAccumulator(tt.windowSize, tt.blockSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewAccumulator(%d, %d) error = %v, want %v",
					tt.windowSize, tt.blockSize, err, tt.wantErr)
			}
		})
	}
}

func TestAccumulator_WindowFillsExactly(t *testing.T) {
	a := createTestAccumulator(t)

	if ready := a.Add(makeBlock(accumTestBlockSize, 0.1)); ready {
		t.Error("window reported ready after half the samples")
	}
	if got := a.Filled(); got != accumTestBlockSize {
		t.Errorf("Filled() = %d, want %d", got, accumTestBlockSize)
	}

	if ready := a.Add(makeBlock(accumTestBlockSize, 0.2)); !ready {
		t.Error("window not ready after windowSize samples")
	}

	// Counter resets exactly at the fill boundary
	if got := a.Filled(); got != 0 {
		t.Errorf("Filled() = %d after window completion, want 0", got)
	}
}

func TestAccumulator_ShortBlockIsTransientMiss(t *testing.T) {
	a := createTestAccumulator(t)

	a.Add(makeBlock(accumTestBlockSize, 0.1))
	before := a.Filled()

	// A short hardware read must not advance the counter
	if ready := a.Add(makeBlock(accumTestBlockSize/2, 0.1)); ready {
		t.Error("short block reported window ready")
	}
	if got := a.Filled(); got != before {
		t.Errorf("Filled() = %d after short block, want %d", got, before)
	}

	// The caller simply retries with a full block on the next cycle
	if ready := a.Add(makeBlock(accumTestBlockSize, 0.2)); !ready {
		t.Error("window not ready after retry completed the fill")
	}
}

func TestAccumulator_WindowContents(t *testing.T) {
	a := createTestAccumulator(t)

	a.Add(makeBlock(accumTestBlockSize, 0.25))
	a.Add(makeBlock(accumTestBlockSize, -0.5))

	window := a.Window()
	if len(window) != accumTestWindowSize {
		t.Fatalf("Window() length = %d, want %d", len(window), accumTestWindowSize)
	}
	if window[0] != 0.25 {
		t.Errorf("window[0] = %v, want 0.25", window[0])
	}
	if window[accumTestBlockSize] != -0.5 {
		t.Errorf("window[%d] = %v, want -0.5", accumTestBlockSize, window[accumTestBlockSize])
	}
}

func TestAccumulator_Reset(t *testing.T) {
	a := createTestAccumulator(t)

	a.Add(makeBlock(accumTestBlockSize, 0.1))
	a.Reset()

	if got := a.Filled(); got != 0 {
		t.Errorf("Filled() = %d after Reset, want 0", got)
	}
}
