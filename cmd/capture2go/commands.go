package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sensorstim/capture2go/pkg/imu/config"
	"github.com/sensorstim/capture2go/pkg/imu/metrics"
)

var (
	rootCmd = &cobra.Command{
		Use:           "capture2go",
		Short:         "Host client for Capture2Go IMU sensors.",
		Long:          ``,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

var configFile string
var metricsAddr string
var debug bool

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Client configuration file (HCL)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "Serve prometheus metrics on this address (e.g. :4114)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup resolves the shared configuration, logger and metrics for a
// command run.
func setup() (*config.Client, types.Logger, *metrics.Metrics) {
	log := logging.New(logging.Zerolog, "capture2go", os.Stderr)
	if debug {
		log.SetLevel(types.DebugLevel)
	} else {
		log.SetLevel(types.InfoLevel)
	}

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			fmt.Printf("Could not load config %s: %v\n", configFile, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var met *metrics.Metrics
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		met = metrics.New(reg)
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}
	return cfg, log, met
}
