// cmd/root_test.go
package cmd

import (
	"bytes"
	"testing"
)

func TestRootCmd_HasExpectedFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"device", "d"},
		{"endpoint", "e"},
		{"debug", "D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := flags.Lookup(tt.name)
			if flag == nil {
				t.Errorf("flag %q not found", tt.name)
				return
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("flag %q shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
			}
		})
	}
}

func TestRootCmd_Properties(t *testing.T) {
	if rootCmd.Use != "bandwatch" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "bandwatch")
	}
	if rootCmd.Short == "" {
		t.Error("rootCmd.Short is empty")
	}
	if rootCmd.Long == "" {
		t.Error("rootCmd.Long is empty")
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	want := map[string]bool{"listen": false, "collect": false}

	for _, sub := range rootCmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() with --help error = %v", err)
	}

	output := buf.String()
	for _, want := range []string{"bandwatch", "--device", "listen", "collect"} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestNewLogger_Levels(t *testing.T) {
	if log := newLogger(false); log == nil {
		t.Fatal("newLogger(false) returned nil")
	}
	if log := newLogger(true); log == nil {
		t.Fatal("newLogger(true) returned nil")
	}
}
