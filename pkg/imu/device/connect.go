package device

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/loopholelabs/logging/types"
	"golang.org/x/sync/errgroup"

	"github.com/sensorstim/capture2go/pkg/imu/config"
	"github.com/sensorstim/capture2go/pkg/imu/metrics"
	"github.com/sensorstim/capture2go/pkg/imu/transport"
)

// BLE device names advertised by the sensors.
const namePrefix = "IMU_"

// Connect opens sessions to all named targets concurrently and returns them
// in input order. A target is either a BLE device name ("IMU_ab1234"), the
// literal "usb" for the single USB-attached device, a serial port path, or
// a path to a recorded file for playback. On any failure, sessions opened
// so far are closed before the error is returned.
func Connect(ctx context.Context, targets []string, cfg *config.Client, log types.Logger, met *metrics.Metrics) ([]*Device, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	transports := make([]transport.Transport, len(targets))
	var bleNames []string
	for i, target := range targets {
		switch {
		case strings.HasPrefix(target, namePrefix):
			bleNames = append(bleNames, target)
		case target == "usb":
			port, err := transport.DiscoverPort()
			if err != nil {
				return nil, err
			}
			transports[i] = transport.NewUSB(port, log)
		case isSerialPort(target):
			transports[i] = transport.NewUSB(target, log)
		default:
			if _, err := os.Stat(target); err != nil {
				return nil, fmt.Errorf("target %q is neither a device name, serial port, nor file", target)
			}
			transports[i] = transport.NewPlayback(target, log)
		}
	}

	if len(bleNames) > 0 {
		found, err := scanFor(ctx, bleNames, cfg, log)
		if err != nil {
			return nil, err
		}
		for i, target := range targets {
			if strings.HasPrefix(target, namePrefix) {
				transports[i] = transport.NewBLE(found[target], log)
			}
		}
	}

	devices := make([]*Device, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, tr := range transports {
		g.Go(func() error {
			dev := New(tr, cfg, log, met)
			if err := dev.Connect(gctx); err != nil {
				return fmt.Errorf("connecting to %s: %w", tr.Target(), err)
			}
			devices[i] = dev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, dev := range devices {
			if dev != nil {
				_ = dev.Disconnect()
			}
		}
		return nil, err
	}
	return devices, nil
}

// scanFor scans until every requested name was seen, or the scan timeout
// expires.
func scanFor(ctx context.Context, names []string, cfg *config.Client, log types.Logger) (map[string]transport.Advertisement, error) {
	scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	scanner := transport.NewScanner(log)
	found := make(chan transport.Advertisement, 16)
	errCh := make(chan error, 1)
	go func() { errCh <- scanner.Scan(scanCtx, []string{namePrefix}, found) }()

	missing := make(map[string]bool, len(names))
	for _, n := range names {
		missing[n] = true
	}
	result := make(map[string]transport.Advertisement, len(names))
	for len(missing) > 0 {
		select {
		case adv := <-found:
			if missing[adv.Name] {
				delete(missing, adv.Name)
				result[adv.Name] = adv
			}
		case <-scanCtx.Done():
			keys := make([]string, 0, len(missing))
			for n := range missing {
				keys = append(keys, n)
			}
			return nil, fmt.Errorf("scan ended before discovering: %s", strings.Join(keys, ", "))
		}
	}
	cancel()
	<-errCh
	return result, nil
}

func isSerialPort(target string) bool {
	if strings.HasPrefix(target, "/dev/") {
		return true
	}
	upper := strings.ToUpper(target)
	return strings.HasPrefix(upper, "COM") && len(upper) > 3
}

// GenerateSyncID returns a random 64-bit sync group identifier. Use the
// same ID for all devices that should be synchronised and generate a new
// one whenever the set of sensors changes.
func GenerateSyncID() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint64(buf[:])
}
