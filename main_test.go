package main

import (
	"testing"
)

// TestMain_Imports verifies that main package compiles and imports work
func TestMain_Imports(t *testing.T) {
	// The main function is minimal and delegates to cmd.Execute(),
	// which calls os.Exit; behavior is covered by the cmd package.
}
