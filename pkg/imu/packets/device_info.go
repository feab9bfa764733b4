package packets

import "strings"

const deviceInfoSize = 6 + 16 + 16 + 16 + 2

// DataDeviceInfo is the device identity response to CmdGetDeviceInfo.
// Version strings are null-padded ASCII on the wire.
type DataDeviceInfo struct {
	Serial            string // 6 ASCII characters
	HardwareVersion   string
	FirmwareVersion   string
	BootloaderVersion string
	ProtocolVersion   uint16
}

func (p *DataDeviceInfo) Header() Header { return HeaderDataDeviceInfo }

// Name returns the advertised device name derived from the serial,
// e.g. "IMU_ab1234".
func (p *DataDeviceInfo) Name() string { return "IMU_" + p.Serial }

func (p *DataDeviceInfo) EncodePayload() []byte {
	w := newWriter(deviceInfoSize)
	w.fixedString(p.Serial, 6)
	w.fixedString(p.HardwareVersion, 16)
	w.fixedString(p.FirmwareVersion, 16)
	w.fixedString(p.BootloaderVersion, 16)
	w.u16(p.ProtocolVersion)
	return w.buf
}

func decodeDeviceInfo(_ Header, payload []byte) (Packet, error) {
	r := &reader{buf: payload}
	return &DataDeviceInfo{
		Serial:            r.fixedString(6),
		HardwareVersion:   r.fixedString(16),
		FirmwareVersion:   r.fixedString(16),
		BootloaderVersion: r.fixedString(16),
		ProtocolVersion:   r.u16(),
	}, nil
}

func (w *writer) fixedString(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.buf = append(w.buf, field...)
}

func (r *reader) fixedString(n int) string {
	raw := r.buf[r.pos : r.pos+n]
	r.pos += n
	return strings.TrimRight(string(raw), "\x00")
}

func init() {
	register(HeaderDataDeviceInfo, deviceInfoSize, decodeDeviceInfo)
}
