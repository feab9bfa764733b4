package packets

import "fmt"

// SensorState is the device-side operating mode reported by DataStatus.
type SensorState uint8

const (
	StateIdle SensorState = iota
	StateRecording
	StateStreaming
)

func (s SensorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStreaming:
		return "streaming"
	}
	return fmt.Sprintf("SensorState(%d)", uint8(s))
}

const statusSize = 8 + 1 + 1 + 1 + 2 + 2 + 4 + 4 + 1

// DataStatus is the periodic device status packet. It is sent automatically
// after connecting and at the configured status interval.
type DataStatus struct {
	Timestamp        int64 // device clock, ns
	SensorState      SensorState
	BatteryPercent   uint8
	ChargerConnected bool
	BatteryVoltage   uint16 // mV
	Temperature      int16  // 0.01 degC
	SendBufferLevel  uint32 // bytes queued in the device send buffer
	StorageFree      uint32 // KiB
	ErrorFlags       ErrorFlags
}

func (p *DataStatus) Header() Header { return HeaderDataStatus }

// TemperatureC returns the device temperature in degrees Celsius.
func (p *DataStatus) TemperatureC() float64 { return float64(p.Temperature) / 100 }

func (p *DataStatus) EncodePayload() []byte {
	w := newWriter(statusSize)
	w.i64(p.Timestamp)
	w.u8(uint8(p.SensorState))
	w.u8(p.BatteryPercent)
	w.bool(p.ChargerConnected)
	w.u16(p.BatteryVoltage)
	w.i16(p.Temperature)
	w.u32(p.SendBufferLevel)
	w.u32(p.StorageFree)
	w.u8(uint8(p.ErrorFlags))
	return w.buf
}

func decodeStatus(_ Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	return &DataStatus{
		Timestamp:        r.i64(),
		SensorState:      SensorState(r.u8()),
		BatteryPercent:   r.u8(),
		ChargerConnected: r.bool(),
		BatteryVoltage:   r.u16(),
		Temperature:      r.i16(),
		SendBufferLevel:  r.u32(),
		StorageFree:      r.u32(),
		ErrorFlags:       ErrorFlags(r.u8()),
	}, nil
}

func init() {
	register(HeaderDataStatus, statusSize, decodeStatus)
}
