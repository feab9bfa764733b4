package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensorstim/capture2go/pkg/imu/transport"
)

var (
	cmdScan = &cobra.Command{
		Use:   "scan",
		Short: "Scan for IMU devices over BLE",
		Long:  ``,
		Run:   runScan,
	}
)

func init() {
	rootCmd.AddCommand(cmdScan)
}

func runScan(_ *cobra.Command, _ []string) {
	cfg, log, _ := setup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancelTimeout()

	fmt.Printf("Scanning for %v...\n", cfg.ScanTimeout)
	found := make(chan transport.Advertisement, 16)
	go func() {
		for adv := range found {
			fmt.Printf("%-16s %-20s rssi %d\n", adv.Name, adv.Address, adv.RSSI)
		}
	}()

	scanner := transport.NewScanner(log)
	if err := scanner.Scan(ctx, []string{"IMU_"}, found); err != nil && ctx.Err() == nil {
		fmt.Printf("Scan failed: %v\n", err)
	}
}
