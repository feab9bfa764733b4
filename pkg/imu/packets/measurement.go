package packets

// SamplingMode selects the rate of one sensor data output (or disables it).
type SamplingMode uint8

const (
	ModeDisabled SamplingMode = iota
	Mode1Hz
	Mode10Hz
	Mode25Hz
	Mode50Hz
	Mode100Hz
	Mode200Hz
)

// RateHz returns the sampling rate in Hz, 0 for ModeDisabled.
func (m SamplingMode) RateHz() uint16 {
	switch m {
	case Mode1Hz:
		return 1
	case Mode10Hz:
		return 10
	case Mode25Hz:
		return 25
	case Mode50Hz:
		return 50
	case Mode100Hz:
		return 100
	case Mode200Hz:
		return 200
	}
	return 0
}

// SyncMode configures the wireless sync role of a device within a group.
type SyncMode uint8

const (
	NoSync SyncMode = iota
	SyncSender
	SyncReceiver
)

// CalibrationDataMode controls streaming of calibration data packets.
type CalibrationDataMode uint8

const (
	CalibDataDisabled CalibrationDataMode = iota
	CalibDataEnabled
)

// ProcessExtensionMode selects an optional on-device processing extension.
type ProcessExtensionMode uint8

const NoExtension ProcessExtensionMode = 0

const measurementModeSize = 8 + 12 + 8 + 3

// MeasurementMode is the payload of CmdSetMeasurementMode and its
// DataMeasurementMode echo. Zero value means: everything disabled, no sync.
type MeasurementMode struct {
	Timestamp             int64
	FullFloat200HzEnabled bool
	FullFixedMode         SamplingMode
	FullPackedMode        SamplingMode
	Full6DFixedMode       SamplingMode
	Full6DPackedMode      SamplingMode
	QuatFloatMode         SamplingMode
	QuatFixedMode         SamplingMode
	QuatPackedMode        SamplingMode
	StatusMode            uint8 // status packet interval in seconds, 0 = off
	CalibDataMode         CalibrationDataMode
	ProcessExtensionMode  ProcessExtensionMode
	SyncMode              SyncMode
	SyncID                uint64
	DisableBiasEstimation bool
	DisableMagDistRejection bool
	DisableMagData        bool
}

func (m *MeasurementMode) encodePayload() []byte {
	w := newWriter(measurementModeSize)
	w.i64(m.Timestamp)
	w.bool(m.FullFloat200HzEnabled)
	w.u8(uint8(m.FullFixedMode))
	w.u8(uint8(m.FullPackedMode))
	w.u8(uint8(m.Full6DFixedMode))
	w.u8(uint8(m.Full6DPackedMode))
	w.u8(uint8(m.QuatFloatMode))
	w.u8(uint8(m.QuatFixedMode))
	w.u8(uint8(m.QuatPackedMode))
	w.u8(m.StatusMode)
	w.u8(uint8(m.CalibDataMode))
	w.u8(uint8(m.ProcessExtensionMode))
	w.u8(uint8(m.SyncMode))
	w.u64(m.SyncID)
	w.bool(m.DisableBiasEstimation)
	w.bool(m.DisableMagDistRejection)
	w.bool(m.DisableMagData)
	return w.buf
}

func decodeMeasurementMode(payload []byte) MeasurementMode {
	r := &reader{buf: payload}
	return MeasurementMode{
		Timestamp:             r.i64(),
		FullFloat200HzEnabled: r.bool(),
		FullFixedMode:         SamplingMode(r.u8()),
		FullPackedMode:        SamplingMode(r.u8()),
		Full6DFixedMode:       SamplingMode(r.u8()),
		Full6DPackedMode:      SamplingMode(r.u8()),
		QuatFloatMode:         SamplingMode(r.u8()),
		QuatFixedMode:         SamplingMode(r.u8()),
		QuatPackedMode:        SamplingMode(r.u8()),
		StatusMode:            r.u8(),
		CalibDataMode:         CalibrationDataMode(r.u8()),
		ProcessExtensionMode:  ProcessExtensionMode(r.u8()),
		SyncMode:              SyncMode(r.u8()),
		SyncID:                r.u64(),
		DisableBiasEstimation: r.bool(),
		DisableMagDistRejection: r.bool(),
		DisableMagData:        r.bool(),
	}
}

// CmdSetMeasurementMode configures the sensor data outputs. The device
// echoes the applied configuration as DataMeasurementMode.
type CmdSetMeasurementMode struct{ MeasurementMode }

func (p *CmdSetMeasurementMode) Header() Header        { return HeaderCmdSetMeasurementMode }
func (p *CmdSetMeasurementMode) EncodePayload() []byte { return p.encodePayload() }

// DataMeasurementMode echoes the active measurement configuration.
type DataMeasurementMode struct{ MeasurementMode }

func (p *DataMeasurementMode) Header() Header        { return HeaderDataMeasurementMode }
func (p *DataMeasurementMode) EncodePayload() []byte { return p.encodePayload() }

func init() {
	register(HeaderCmdSetMeasurementMode, measurementModeSize, func(_ Header, payload []byte) (Packet, error) {
		return &CmdSetMeasurementMode{decodeMeasurementMode(payload)}, nil
	})
	register(HeaderDataMeasurementMode, measurementModeSize, func(_ Header, payload []byte) (Packet, error) {
		return &DataMeasurementMode{decodeMeasurementMode(payload)}, nil
	})
}
