// cmd/listen.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ColonelBlimp/bandwatch/internal/audio"
	"github.com/ColonelBlimp/bandwatch/internal/config"
	"github.com/ColonelBlimp/bandwatch/internal/dsp"
	"github.com/ColonelBlimp/bandwatch/internal/pipeline"
	"github.com/ColonelBlimp/bandwatch/internal/relay"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the sampling and detection pipeline",
	Long: `Captures audio from the configured device, analyzes each window for the
target band, and delivers detections to the collector with local queue
fallback. Runs until interrupted.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}
	log := newLogger(settings.Debug)

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		BlockSize:   uint32(settings.BlockSize),
	})
	if err := capture.Init(); err != nil {
		return fmt.Errorf("init capture: %w", err)
	}
	defer capture.Close()

	acc, err := audio.NewAccumulator(settings.WindowSize, settings.BlockSize)
	if err != nil {
		return fmt.Errorf("init accumulator: %w", err)
	}

	analyzer, err := dsp.NewAnalyzer(settings.WindowSize)
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}

	detector, err := dsp.NewDetector(dsp.DetectorConfig{
		TargetFreqMin:   settings.TargetFreqMin,
		TargetFreqMax:   settings.TargetFreqMax,
		SampleRate:      settings.SampleRate,
		WindowSize:      settings.WindowSize,
		RawThreshold:    settings.RawThreshold,
		ScaleFactor:     settings.ScaleFactor,
		ScaledThreshold: settings.ScaledThreshold,
	}, log)
	if err != nil {
		return fmt.Errorf("init detector: %w", err)
	}

	sendTimeout := time.Duration(settings.SendTimeoutMS) * time.Millisecond
	probeInterval := time.Duration(settings.ProbeIntervalS) * time.Second

	queue := relay.NewQueue(settings.QueueFile, settings.MaxQueueEntries, log)
	monitor, err := relay.NewMonitor(settings.Endpoints, probeInterval, sendTimeout/2, log)
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}
	link := relay.NewNetLink(settings.LinkInterface, settings.ReconnectCmd, log)
	deliverer := relay.NewDeliverer(queue, monitor, link, sendTimeout, log)

	pipe, err := pipeline.New(
		capture.Blocks, acc, analyzer, detector, deliverer,
		time.Duration(settings.ReadTimeoutMS)*time.Millisecond, log)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	log.Info("pipeline running",
		"sample_rate", settings.SampleRate,
		"window_size", settings.WindowSize,
		"band_hz", fmt.Sprintf("%.0f-%.0f", settings.TargetFreqMin, settings.TargetFreqMax),
		"queued", queue.Count())

	if err := pipe.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
