package main

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensorstim/capture2go/pkg/imu/device"
	"github.com/sensorstim/capture2go/pkg/imu/packets"
	"github.com/sensorstim/capture2go/pkg/imu/quat"
)

var (
	cmdStream = &cobra.Command{
		Use:   "stream DEVICE...",
		Short: "Print real-time orientations from one or more devices",
		Long:  ``,
		Args:  cobra.MinimumNArgs(1),
		Run:   runStream,
	}
)

var streamMag bool
var streamEuler bool
var streamRaw bool

func init() {
	rootCmd.AddCommand(cmdStream)
	cmdStream.Flags().BoolVarP(&streamMag, "mag", "m", false, "Use magnetometer data, i.e. print 9D orientations")
	cmdStream.Flags().BoolVarP(&streamEuler, "euler", "e", false, "Print intrinsic z-x'-y'' Euler angles instead of quaternions")
	cmdStream.Flags().BoolVarP(&streamRaw, "raw", "r", false, "Print full received packets")
}

func runStream(_ *cobra.Command, args []string) {
	cfg, log, met := setup()

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
	fmt.Println("Connected.")

	for i, dev := range devices {
		if err := dev.Init(ctx, device.InitOptions{SetTime: i == 0, AbortStreaming: true}); err != nil {
			fmt.Printf("Init of %s failed: %v\n", dev.Name(), err)
			return
		}
		if err := dev.StartRealTimeStreaming(ctx, packets.RealTimeDataQuat, cfg.RealTimeRateLimit); err != nil {
			fmt.Printf("Starting real-time streaming on %s failed: %v\n", dev.Name(), err)
			return
		}
		go printOrientations(dev, i)
	}
	<-ctx.Done()
}

func printOrientations(dev *device.Device, index int) {
	indent := fmt.Sprintf("%*s", 60*index, "")
	for qp := range dev.Packets() {
		data, ok := qp.Packet.(packets.SensorData)
		if streamRaw || !ok {
			fmt.Printf("%s: %v\n", dev.Name(), qp.Packet)
			continue
		}
		samples := data.Samples()
		for i, t := range samples.Timestamps {
			q := samples.Quat[i]
			if streamMag {
				q = samples.Quat9D[i]
			}
			var orientation string
			if streamEuler {
				angles, err := quat.EulerAngles(q, "zxy", true)
				if err != nil {
					continue
				}
				orientation = fmt.Sprintf("[%7.2f %7.2f %7.2f]",
					angles[0]*180/math.Pi, angles[1]*180/math.Pi, angles[2]*180/math.Pi)
			} else {
				orientation = fmt.Sprintf("[%6.3f %6.3f %6.3f %6.3f]", q[0], q[1], q[2], q[3])
			}
			fmt.Printf("%.3f %s%s\n", float64(t)/1e9, indent, orientation)
		}
	}
}
