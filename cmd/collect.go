// cmd/collect.go
package cmd

import (
	"fmt"

	"github.com/ColonelBlimp/bandwatch/internal/collector"
	"github.com/ColonelBlimp/bandwatch/internal/config"
	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the detection collector service",
	Long: `Serves the collector HTTP API: detection ingest, liveness probe and
Prometheus metrics. Detections and requests are appended to log files
under the configured log directory.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	settings, err := config.Get()
	if err != nil {
		return err
	}
	log := newLogger(settings.Debug)

	srv := collector.NewServer(settings.CollectorLogDir, log)
	return srv.Run(fmt.Sprintf(":%d", settings.CollectorPort))
}
