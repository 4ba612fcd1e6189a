// cmd/root.go
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ColonelBlimp/bandwatch/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "bandwatch",
	Short: "Ultrasonic band detector with store-and-forward relay",
	Long: `Bandwatch continuously samples audio, detects a narrow ultrasonic band
via FFT, and relays detections to a remote collector, buffering them in a
bounded local queue whenever the collector is unreachable.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().StringSliceP("endpoint", "e", nil, "collector endpoint URL (repeatable)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	viper.BindPFlag("device_index", rootCmd.PersistentFlags().Lookup("device"))
	viper.BindPFlag("endpoints", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger; Debug level when the debug flag is set
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
