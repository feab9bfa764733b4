package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sensorstim/capture2go/pkg/imu/device"
	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

var (
	cmdRecord = &cobra.Command{
		Use:   "record DEVICE...",
		Short: "Record sensor data on one or more devices and download the result",
		Long:  ``,
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecord,
	}
)

var recordRate int

func init() {
	rootCmd.AddCommand(cmdRecord)
	cmdRecord.Flags().IntVar(&recordRate, "rate", 200, "Sampling rate in Hz (1, 10, 25, 50, 100, 200)")
}

// recordingInfo mirrors the sidecar files written by the mobile app so
// recordings stay interchangeable.
type recordingInfo struct {
	Type               string   `json:"type"`
	Version            int      `json:"version"`
	Name               string   `json:"name"`
	UUID               string   `json:"uuid"`
	Filename           string   `json:"filename"`
	StartTimestamp     int64    `json:"startTimestamp"` // milliseconds
	StartDate          string   `json:"startDate"`
	TransferIncomplete []string `json:"transferIncomplete"`
}

func samplingModeForRate(rate int) (packets.SamplingMode, bool) {
	switch rate {
	case 1:
		return packets.Mode1Hz, true
	case 10:
		return packets.Mode10Hz, true
	case 25:
		return packets.Mode25Hz, true
	case 50:
		return packets.Mode50Hz, true
	case 100:
		return packets.Mode100Hz, true
	case 200:
		return packets.Mode200Hz, true
	}
	return packets.ModeDisabled, false
}

func runRecord(_ *cobra.Command, args []string) {
	cfg, log, met := setup()

	mode, ok := samplingModeForRate(recordRate)
	if !ok {
		fmt.Printf("Invalid rate %d\n", recordRate)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	devices, err := device.Connect(ctx, args, cfg, log, met)
	if err != nil {
		fmt.Printf("Connect failed: %v\n", err)
		return
	}
	defer func() {
		for _, dev := range devices {
			_ = dev.Disconnect()
		}
	}()

	startTime := time.Now()
	recordingID := uuid.New().String()
	baseTime := startTime.Format("2006-01-02_150405")
	filename := fmt.Sprintf("%s_%s", baseTime, recordingID)
	recordingDir := fmt.Sprintf("%s_Recording", baseTime)
	if err := os.MkdirAll(filepath.Join(recordingDir, "raw"), 0o755); err != nil {
		fmt.Printf("Could not create %s: %v\n", recordingDir, err)
		return
	}

	// Initialize all devices and set the measurement and recording config.
	// The first device becomes the sync sender and sets the absolute time.
	syncID := device.GenerateSyncID()
	g, gctx := errgroup.WithContext(ctx)
	for i, dev := range devices {
		g.Go(func() error {
			if err := dev.Init(gctx, device.InitOptions{
				SetTime: i == 0, AbortRecording: true, AbortStreaming: true,
			}); err != nil {
				return fmt.Errorf("init of %s: %w", dev.Name(), err)
			}
			syncMode := packets.SyncReceiver
			if i == 0 {
				syncMode = packets.SyncSender
			}
			if _, err := dev.SetMeasurementMode(gctx, packets.MeasurementMode{
				FullPackedMode: mode,
				StatusMode:     1,
				SyncMode:       syncMode,
				SyncID:         syncID,
			}); err != nil {
				return fmt.Errorf("setting measurement mode on %s: %w", dev.Name(), err)
			}
			if _, err := dev.SetRecordingConfig(gctx, packets.RecordingConfig{Filename: filename}); err != nil {
				return fmt.Errorf("setting recording config on %s: %w", dev.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		return
	}

	info := recordingInfo{
		Type:           "capture2go_recording",
		Version:        1,
		Name:           "Recording",
		UUID:           recordingID,
		Filename:       filename,
		StartTimestamp: startTime.UnixMilli(),
		StartDate:      startTime.Format("2006-01-02 15:04:05"),
	}
	for _, dev := range devices {
		info.TransferIncomplete = append(info.TransferIncomplete, dev.Name())
	}
	writeInfo(recordingDir, &info)

	// Start recording on all devices in parallel.
	g, gctx = errgroup.WithContext(ctx)
	for _, dev := range devices {
		g.Go(func() error { return dev.StartRecording(gctx) })
	}
	if err := g.Wait(); err != nil {
		fmt.Printf("Starting recording failed: %v\n", err)
		return
	}

	fmt.Println("Recording... Press Ctrl+C to stop.")
	<-ctx.Done()
	fmt.Println("\nRecording stopped.")

	// The signal context is done; use a fresh one for the teardown.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer stopCancel()

	for _, dev := range devices {
		if err := dev.StopRecording(stopCtx); err != nil {
			fmt.Printf("Stopping recording on %s failed: %v\n", dev.Name(), err)
		}
	}

	for _, dev := range devices {
		fmt.Printf("[%s] Downloading...\n", dev.Name())
		outPath := filepath.Join(recordingDir, "raw", fmt.Sprintf("%s_%s.bin", filename, dev.Name()))
		if err := downloadTo(stopCtx, dev, filename, outPath, true); err != nil {
			fmt.Printf("[%s] Download failed: %v\n", dev.Name(), err)
			continue
		}
		info.TransferIncomplete = remove(info.TransferIncomplete, dev.Name())
	}
	writeInfo(recordingDir, &info)

	if len(info.TransferIncomplete) == 0 {
		fmt.Println("All device recordings downloaded and deleted successfully.")
	} else {
		fmt.Printf("Warning: some recordings failed to transfer: %v\n", info.TransferIncomplete)
	}
}

func writeInfo(dir string, info *recordingInfo) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(dir, "info.json"), data, 0o644)
	}
	if err != nil {
		fmt.Printf("Could not write info.json: %v\n", err)
	}
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
