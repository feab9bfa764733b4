package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
	"github.com/sensorstim/capture2go/pkg/imu/protocol"
)

var (
	cmdDump = &cobra.Command{
		Use:   "dump FILE...",
		Short: "Print the packets of recorded binary files",
		Long:  ``,
		Args:  cobra.MinimumNArgs(1),
		Run:   runDump,
	}
)

var dumpParse bool

func init() {
	rootCmd.AddCommand(cmdDump)
	cmdDump.Flags().BoolVarP(&dumpParse, "parse", "p", false, "Convert sensor data packets to SI units")
}

func runDump(_ *cobra.Command, args []string) {
	for _, file := range args {
		fmt.Printf("%s:\n", file)
		dropped, err := protocol.ScanFile(file, func(frame protocol.Frame) error {
			pkt, decErr := packets.Decode(frame.Header, frame.Payload)
			if decErr != nil {
				fmt.Printf("  %s: %v\n", frame.Header, decErr)
				return nil
			}
			if data, ok := pkt.(packets.SensorData); ok && dumpParse {
				samples := data.Samples()
				for i, t := range samples.Timestamps {
					fmt.Printf("  %s t=%d quat=%v\n", frame.Header, t, samples.Quat[i])
				}
				return nil
			}
			fmt.Printf("  %s %+v\n", frame.Header, pkt)
			return nil
		})
		if err != nil {
			fmt.Printf("Reading %s failed: %v\n", file, err)
			continue
		}
		if dropped > 0 {
			fmt.Printf("(%d bytes skipped)\n", dropped)
		}
	}
}
