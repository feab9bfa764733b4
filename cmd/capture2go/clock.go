package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorstim/capture2go/pkg/imu/device"
)

var (
	cmdClock = &cobra.Command{
		Use:   "clock DEVICE",
		Short: "Measure the device clock offset with periodic round-trips",
		Long:  ``,
		Args:  cobra.ExactArgs(1),
		Run:   runClock,
	}
)

func init() {
	rootCmd.AddCommand(cmdClock)
}

func runClock(_ *cobra.Command, args []string) {
	cfg, log, met := setup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	devices, err := device.Connect(ctx, args, cfg, log, met)
	if err != nil {
		fmt.Printf("Connect failed: %v\n", err)
		return
	}
	dev := devices[0]
	defer dev.Disconnect()

	if err := dev.Init(ctx, device.InitOptions{AbortStreaming: true}); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		return
	}

	ticker := time.NewTicker(cfg.ClockSyncInterval)
	defer ticker.Stop()
	fmt.Println("Measuring... Press Ctrl+C to stop.")
	for {
		select {
		case <-ticker.C:
			stats, err := dev.ClockRoundtrip(ctx)
			if err != nil {
				fmt.Printf("Round-trip failed: %v\n", err)
				continue
			}
			fmt.Printf("delay %8.3f ms  offset %12.3f ms\n",
				float64(stats.Delay)/1e6, float64(stats.Offset)/1e6)
		case <-ctx.Done():
			return
		}
	}
}
