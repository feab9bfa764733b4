package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensorstim/capture2go/pkg/imu/device"
)

var (
	cmdDownload = &cobra.Command{
		Use:   "download DEVICE [FILENAME]",
		Short: "List, download, or manage files on a device",
		Long:  ``,
		Args:  cobra.RangeArgs(1, 2),
		Run:   runDownload,
	}
)

var downloadLs bool
var downloadAll bool
var downloadFormat bool
var downloadDelete bool

func init() {
	rootCmd.AddCommand(cmdDownload)
	cmdDownload.Flags().BoolVar(&downloadLs, "ls", false, "List files on the device")
	cmdDownload.Flags().BoolVar(&downloadAll, "all", false, "Download all files from the device")
	cmdDownload.Flags().BoolVar(&downloadFormat, "format", false, "Format the device storage (ERASES ALL FILES)")
	cmdDownload.Flags().BoolVar(&downloadDelete, "delete", false, "Delete the file(s) on the device after successful download")
}

func runDownload(_ *cobra.Command, args []string) {
	cfg, log, met := setup()

	if len(args) < 2 && !downloadLs && !downloadAll && !downloadFormat {
		fmt.Println("No action specified. Use --ls, --all, --format, or provide a FILENAME to download.")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	devices, err := device.Connect(ctx, args[:1], cfg, log, met)
	if err != nil {
		fmt.Printf("Connect failed: %v\n", err)
		return
	}
	dev := devices[0]
	defer dev.Disconnect()

	if err := dev.Init(ctx, device.InitOptions{SetTime: true, AbortRecording: true, AbortStreaming: true}); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		return
	}

	switch {
	case downloadLs:
		listFiles(ctx, dev)
	case downloadAll:
		files, err := dev.ListFiles(ctx)
		if err != nil {
			fmt.Printf("Listing files failed: %v\n", err)
			return
		}
		failed := 0
		for i, f := range files {
			fmt.Printf("Downloading file %d of %d: %q...\n", i+1, len(files), f.Name)
			if err := downloadTo(ctx, dev, f.Name, outName(f.Name, dev.Name()), downloadDelete); err != nil {
				fmt.Printf("Download of %q failed: %v\n", f.Name, err)
				failed++
			}
		}
		fmt.Printf("Downloaded %d/%d file(s).\n", len(files)-failed, len(files))
	case downloadFormat:
		fmt.Printf("Formatting storage on %s...\n", dev.Name())
		if err := dev.FormatFilesystem(ctx); err != nil {
			fmt.Printf("Formatting failed: %v\n", err)
			return
		}
		fmt.Println("Formatting complete.")
	default:
		filename := args[1]
		if err := downloadTo(ctx, dev, filename, outName(filename, dev.Name()), downloadDelete); err != nil {
			fmt.Printf("Download failed: %v\n", err)
		}
	}
}

func listFiles(ctx context.Context, dev *device.Device) {
	fmt.Printf("Listing files on %s...\n", dev.Name())
	files, err := dev.ListFiles(ctx)
	if err != nil {
		fmt.Printf("Listing files failed: %v\n", err)
		return
	}
	if len(files) == 0 {
		fmt.Println("No files found.")
		return
	}
	for _, f := range files {
		fmt.Printf("%3d/%d  %10d  %s\n", f.Index+1, len(files), f.Size, f.Name)
	}
}

func outName(filename, deviceName string) string {
	return fmt.Sprintf("%s_%s.bin", filename, deviceName)
}

// downloadTo transfers one file to outPath, printing progress, and
// optionally deletes it from the device afterwards.
func downloadTo(ctx context.Context, dev *device.Device, filename, outPath string, deleteAfter bool) error {
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("output file %s already exists", outPath)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	err = dev.Download(ctx, filename, f, device.DownloadOptions{
		Progress: func(received, total uint64) {
			fmt.Printf("\r%d of %d received (%.1f%%)", received, total, float64(received)/float64(total)*100)
		},
	})
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Printf("File transfer complete. Saved as %s.\n", outPath)

	if deleteAfter {
		if err := dev.DeleteFile(ctx, filename); err != nil {
			return fmt.Errorf("deleting %q: %w", filename, err)
		}
		fmt.Printf("Deleted %q from device.\n", filename)
	}
	return nil
}
