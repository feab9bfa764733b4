package device

import (
	"context"
	"time"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

// ClockStats is one clock round-trip measurement: the estimated one-way
// transmission delay and the device clock offset relative to the host
// clock, both in nanoseconds.
type ClockStats struct {
	Delay  int64
	Offset int64
}

// Clock returns the stats derived from the most recent round-trip,
// ok=false before the first one. The session does not correct timestamps;
// callers apply the offset themselves if desired.
func (d *Device) Clock() (ClockStats, bool) {
	sample, ok := d.ClockSample()
	if !ok {
		return ClockStats{}, false
	}
	return ClockStats{Delay: sample.Delay(), Offset: sample.Offset()}, true
}

// ClockRoundtrip performs one round-trip: it sends a DataClockRoundtrip
// with the current host time and derives delay and offset from the echoed
// packet. The receive path stamps the host receive time on arrival.
func (d *Device) ClockRoundtrip(ctx context.Context) (ClockStats, error) {
	resp, err := d.SendAndAwait(ctx, &packets.DataClockRoundtrip{
		HostSendTimestamp: time.Now().UnixNano(),
	}, 0, packets.HeaderDataClockRoundtrip)
	if err != nil {
		return ClockStats{}, err
	}
	rt := resp.(*packets.DataClockRoundtrip)
	return ClockStats{Delay: rt.Delay(), Offset: rt.Offset()}, nil
}

// RunClockSync performs round-trips at the configured interval until ctx is
// cancelled or the session ends. Individual failures are logged and the
// loop keeps going; the latest sample is available through Clock.
func (d *Device) RunClockSync(ctx context.Context) {
	interval := d.cfg.ClockSyncInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.ClockRoundtrip(ctx); err != nil {
				if err == ErrDisconnected {
					return
				}
				if d.log != nil {
					d.log.Warn().Err(err).Str("device", d.Name()).Msg("clock round-trip failed")
				}
			}
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}
