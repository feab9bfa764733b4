package device

import (
	"context"
	"fmt"
	"time"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

// InitOptions controls the initial handshake with a freshly connected
// device.
type InitOptions struct {
	// SetTime sets the sensor clock from the host clock. When working with
	// multiple synchronised devices, set this only on the sync sender.
	SetTime bool
	// AbortRecording stops an ongoing recording instead of failing with
	// ErrDeviceIsRecording.
	AbortRecording bool
	// AbortStreaming stops ongoing streaming and clears the send buffer
	// instead of failing with ErrDeviceIsStreaming.
	AbortStreaming bool
}

// Init performs the initial communication to bring the device into a
// consistent state: it requests the device info (which also starts
// transmission on USB), waits for the first status, and optionally aborts
// an ongoing recording or streaming.
func (d *Device) Init(ctx context.Context, opts InitOptions) error {
	if err := d.Send(packets.NewSimple(packets.HeaderCmdGetDeviceInfo)); err != nil {
		return err
	}
	if err := d.waitForStatus(ctx); err != nil {
		return err
	}

	switch d.Status().SensorState {
	case packets.StateRecording:
		if !opts.AbortRecording {
			return ErrDeviceIsRecording
		}
		if _, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStopRecording), 0,
			packets.HeaderAckStopRecording); err != nil {
			return err
		}
	case packets.StateStreaming:
		if !opts.AbortStreaming {
			return ErrDeviceIsStreaming
		}
		if _, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStopStreamingAndClearBuffer), 0,
			packets.HeaderAckStopStreamingAndClearBuffer); err != nil {
			return err
		}
		// Data packets queued before the buffer clear may still arrive;
		// they stay in the consumer stream where callers can skip them.
		if d.Info() == nil {
			if err := d.Send(packets.NewSimple(packets.HeaderCmdGetDeviceInfo)); err != nil {
				return err
			}
		}
	}

	if err := d.waitForInfo(ctx); err != nil {
		return err
	}

	if opts.SetTime {
		return d.SetAbsoluteTime(ctx, time.Now().UnixNano())
	}
	return nil
}

func (d *Device) waitForStatus(ctx context.Context) error {
	d.mu.Lock()
	if d.status != nil {
		d.mu.Unlock()
		return nil
	}
	ch := d.statusCh
	done := d.done
	d.mu.Unlock()
	if ch == nil {
		return ErrDisconnected
	}
	return awaitSignal(ctx, ch, done, d.cfg.CommandTimeout, "status")
}

func (d *Device) waitForInfo(ctx context.Context) error {
	d.mu.Lock()
	if d.info != nil {
		d.mu.Unlock()
		return nil
	}
	ch := d.infoCh
	done := d.done
	d.mu.Unlock()
	if ch == nil {
		return ErrDisconnected
	}
	return awaitSignal(ctx, ch, done, d.cfg.CommandTimeout, "device info")
}

func awaitSignal(ctx context.Context, ch <-chan struct{}, done <-chan struct{}, timeout time.Duration, what string) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return nil
	case <-t.C:
		return fmt.Errorf("waiting for initial %s: %w", what, ErrTimeout)
	case <-done:
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetAbsoluteTime sets the device clock to the given host timestamp in
// nanoseconds.
func (d *Device) SetAbsoluteTime(ctx context.Context, timestampNs int64) error {
	_, err := d.SendAndAwait(ctx, &packets.CmdSetAbsoluteTime{NewTimestamp: timestampNs}, 0,
		packets.HeaderAckSetAbsoluteTime)
	return err
}

// SetMeasurementMode configures the sensor data outputs and returns the
// echoed configuration.
func (d *Device) SetMeasurementMode(ctx context.Context, mode packets.MeasurementMode) (*packets.DataMeasurementMode, error) {
	resp, err := d.SendAndAwait(ctx, &packets.CmdSetMeasurementMode{MeasurementMode: mode}, 0,
		packets.HeaderDataMeasurementMode)
	if err != nil {
		return nil, err
	}
	return resp.(*packets.DataMeasurementMode), nil
}

// GetMeasurementMode queries the active measurement configuration.
func (d *Device) GetMeasurementMode(ctx context.Context) (*packets.DataMeasurementMode, error) {
	resp, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdGetMeasurementMode), 0,
		packets.HeaderDataMeasurementMode)
	if err != nil {
		return nil, err
	}
	return resp.(*packets.DataMeasurementMode), nil
}

// GetBurstMode queries the active burst configuration.
func (d *Device) GetBurstMode(ctx context.Context) (*packets.DataBurstMode, error) {
	resp, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdGetBurstMode), 0,
		packets.HeaderDataBurstMode)
	if err != nil {
		return nil, err
	}
	return resp.(*packets.DataBurstMode), nil
}

// GetRecordingConfig queries the active recording configuration.
func (d *Device) GetRecordingConfig(ctx context.Context) (*packets.DataRecordingConfig, error) {
	resp, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdGetRecordingConfig), 0,
		packets.HeaderDataRecordingConfig)
	if err != nil {
		return nil, err
	}
	return resp.(*packets.DataRecordingConfig), nil
}

// SetRecordingConfig sets the filename and limits for the next recording
// and returns the echoed configuration.
func (d *Device) SetRecordingConfig(ctx context.Context, cfg packets.RecordingConfig) (*packets.DataRecordingConfig, error) {
	if err := packets.ValidFilename(cfg.Filename); err != nil {
		return nil, err
	}
	resp, err := d.SendAndAwait(ctx, &packets.CmdSetRecordingConfig{RecordingConfig: cfg}, 0,
		packets.HeaderDataRecordingConfig)
	if err != nil {
		return nil, err
	}
	return resp.(*packets.DataRecordingConfig), nil
}

// SetBurstMode enables or disables the burst outputs and returns the echo.
func (d *Device) SetBurstMode(ctx context.Context, mode packets.BurstMode) (*packets.DataBurstMode, error) {
	resp, err := d.SendAndAwait(ctx, &packets.CmdSetBurstMode{BurstMode: mode}, 0,
		packets.HeaderDataBurstMode)
	if err != nil {
		return nil, err
	}
	return resp.(*packets.DataBurstMode), nil
}

// SetLed overrides the status LED.
func (d *Device) SetLed(ctx context.Context, mode packets.LedMode, r, g, b uint8) error {
	_, err := d.SendAndAwait(ctx, &packets.CmdSetLed{Mode: mode, R: r, G: g, B: b}, 0,
		packets.HeaderAckSetLed)
	return err
}

// SetSyncOutput configures the hardware sync pulse output.
func (d *Device) SetSyncOutput(ctx context.Context, enabled bool, intervalUs, pulseWidthUs uint32) error {
	_, err := d.SendAndAwait(ctx, &packets.CmdSetSyncOutput{
		Enabled: enabled, IntervalUs: intervalUs, PulseWidthUs: pulseWidthUs,
	}, 0, packets.HeaderAckSetSyncOutput)
	return err
}

// Sleep puts the device into light sleep.
func (d *Device) Sleep(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdSleep), 0, packets.HeaderAckSleep)
	return err
}

// DeepSleep puts the device into deep sleep; it will disconnect shortly
// after acknowledging.
func (d *Device) DeepSleep(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdDeepSleep), 0, packets.HeaderAckDeepSleep)
	return err
}

// StartRecording starts a recording with the previously set recording
// config. It is refused client-side with ErrDeviceIsRecording if the cached
// status already reports a recording.
func (d *Device) StartRecording(ctx context.Context) error {
	if s := d.Status(); s != nil && s.SensorState == packets.StateRecording {
		return ErrDeviceIsRecording
	}
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStartRecording), 0,
		packets.HeaderAckStartRecording)
	return err
}

// StopRecording stops the current recording.
func (d *Device) StopRecording(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStopRecording), 0,
		packets.HeaderAckStopRecording)
	return err
}

// StartStreaming starts streaming the configured sensor data over the
// send-buffer channel. It is refused client-side with ErrDeviceIsStreaming
// if the cached status already reports streaming.
func (d *Device) StartStreaming(ctx context.Context) error {
	if s := d.Status(); s != nil && s.SensorState == packets.StateStreaming {
		return ErrDeviceIsStreaming
	}
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStartStreaming), 0,
		packets.HeaderAckStartStreaming)
	return err
}

// StopStreaming stops streaming; data already in the send buffer is still
// delivered.
func (d *Device) StopStreaming(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStopStreaming), 0,
		packets.HeaderAckStopStreaming)
	return err
}

// StopStreamingAndClearBuffer stops streaming and discards the send buffer.
func (d *Device) StopStreamingAndClearBuffer(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStopStreamingAndClearBuffer), 0,
		packets.HeaderAckStopStreamingAndClearBuffer)
	return err
}

// StartRealTimeStreaming starts the latest-snapshot real-time stream.
// rateLimit of 0 selects the configured default.
func (d *Device) StartRealTimeStreaming(ctx context.Context, mode packets.RealTimeDataMode, rateLimit uint8) error {
	if rateLimit == 0 {
		rateLimit = d.cfg.RealTimeRateLimit
	}
	_, err := d.SendAndAwait(ctx, &packets.CmdStartRealTimeStreaming{Mode: mode, RateLimit: rateLimit}, 0,
		packets.HeaderAckStartRealTimeStreaming)
	return err
}

// StopRealTimeStreaming stops the real-time stream.
func (d *Device) StopRealTimeStreaming(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdStopRealTimeStreaming), 0,
		packets.HeaderAckStopRealTimeStreaming)
	return err
}

// FileSize asks for the size of a stored file.
func (d *Device) FileSize(ctx context.Context, filename string) (uint64, error) {
	if err := packets.ValidFilename(filename); err != nil {
		return 0, err
	}
	resp, err := d.SendAndAwait(ctx, &packets.CmdFsGetSize{Filename: filename}, 0,
		packets.HeaderDataFsSize)
	if err != nil {
		return 0, err
	}
	return resp.(*packets.DataFsSize).FileSize, nil
}

// DeleteFile deletes a stored file.
func (d *Device) DeleteFile(ctx context.Context, filename string) error {
	if err := packets.ValidFilename(filename); err != nil {
		return err
	}
	_, err := d.SendAndAwait(ctx, &packets.CmdFsDeleteFile{Filename: filename}, 0,
		packets.HeaderAckFsDeleteFile)
	return err
}

// FormatFilesystem erases all files on the device.
func (d *Device) FormatFilesystem(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdFsFormatFilesystem),
		d.cfg.ListFilesTimeout, packets.HeaderAckFsFormatFilesystem)
	return err
}

// FileInfo describes one stored file.
type FileInfo struct {
	Index uint32
	Size  uint64
	Name  string
}

// ListFiles lists the files stored on the device, in index order.
// Filesystem operations may run concurrently with an active recording.
func (d *Device) ListFiles(ctx context.Context) ([]FileInfo, error) {
	countPkt, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdFsListFiles),
		d.cfg.ListFilesTimeout, packets.HeaderDataFsFileCount)
	if err != nil {
		return nil, err
	}
	count := countPkt.(*packets.DataFsFileCount).FileCount

	files := make([]FileInfo, 0, count)
	deadline := time.NewTimer(d.cfg.ListFilesTimeout)
	defer deadline.Stop()
	for uint32(len(files)) < count {
		select {
		case qp, ok := <-d.Packets():
			if !ok {
				return files, ErrDisconnected
			}
			f, isFile := qp.Packet.(*packets.DataFsFile)
			if !isFile {
				continue // Unrelated traffic (e.g. DataStatus) is left alone.
			}
			files = append(files, FileInfo{Index: f.Index, Size: f.Size, Name: f.Filename})
		case <-deadline.C:
			return files, fmt.Errorf("file listing incomplete (%d of %d): %w", len(files), count, ErrTimeout)
		case <-ctx.Done():
			return files, ctx.Err()
		}
	}
	return files, nil
}
