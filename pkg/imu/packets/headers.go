package packets

import "fmt"

// Header identifies a packet kind on the wire. It is transmitted as a
// little-endian 16-bit value inside the frame envelope. Values not listed
// here are reserved.
type Header uint16

const (
	// Device info and power management.
	HeaderCmdGetDeviceInfo Header = 0x0110
	HeaderDataDeviceInfo   Header = 0x0111
	HeaderCmdSleep         Header = 0x0120
	HeaderAckSleep         Header = 0x0121
	HeaderCmdDeepSleep     Header = 0x0122
	HeaderAckDeepSleep     Header = 0x0123

	// Measurement, burst and recording configuration. Set commands are
	// echoed back with the corresponding Data* packet.
	HeaderCmdSetMeasurementMode Header = 0x0130
	HeaderDataMeasurementMode   Header = 0x0131
	HeaderCmdGetMeasurementMode Header = 0x0132
	HeaderCmdSetBurstMode       Header = 0x0140
	HeaderDataBurstMode         Header = 0x0141
	HeaderCmdGetBurstMode       Header = 0x0142
	HeaderCmdSetRecordingConfig Header = 0x0150
	HeaderDataRecordingConfig   Header = 0x0151
	HeaderCmdGetRecordingConfig Header = 0x0152

	// Streaming control.
	HeaderCmdStartStreaming               Header = 0x0160
	HeaderAckStartStreaming               Header = 0x0161
	HeaderCmdStopStreaming                Header = 0x0162
	HeaderAckStopStreaming                Header = 0x0163
	HeaderCmdStopStreamingAndClearBuffer  Header = 0x0164
	HeaderAckStopStreamingAndClearBuffer  Header = 0x0165
	HeaderCmdStartRealTimeStreaming       Header = 0x0168
	HeaderAckStartRealTimeStreaming       Header = 0x0169
	HeaderCmdStopRealTimeStreaming        Header = 0x016A
	HeaderAckStopRealTimeStreaming        Header = 0x016B

	// Clock, LED, sync output, status, recording control.
	HeaderCmdSetAbsoluteTime Header = 0x0170
	HeaderAckSetAbsoluteTime Header = 0x0171
	HeaderDataClockRoundtrip Header = 0x0172
	HeaderCmdSetLed          Header = 0x0180
	HeaderAckSetLed          Header = 0x0181
	HeaderCmdSetSyncOutput   Header = 0x0188
	HeaderAckSetSyncOutput   Header = 0x0189
	HeaderDataStatus         Header = 0x0190
	HeaderCmdStartRecording  Header = 0x01A0
	HeaderAckStartRecording  Header = 0x01A1
	HeaderCmdStopRecording   Header = 0x01A2
	HeaderAckStopRecording   Header = 0x01A3

	// Bursts and sync trigger.
	HeaderDataRawBurst    Header = 0x0300
	HeaderDataAccZBurst   Header = 0x0301
	HeaderDataSyncTrigger Header = 0x0310

	// Filesystem.
	HeaderCmdFsListFiles         Header = 0x0400
	HeaderDataFsFileCount        Header = 0x0401
	HeaderDataFsFile             Header = 0x0402
	HeaderCmdFsGetSize           Header = 0x0403
	HeaderDataFsSize             Header = 0x0404
	HeaderCmdFsGetBytes          Header = 0x0405
	HeaderDataFsBytes            Header = 0x0406
	HeaderCmdFsStopGetBytes      Header = 0x0407
	HeaderAckFsStopGetBytes      Header = 0x0408
	HeaderCmdFsDeleteFile        Header = 0x0409
	HeaderAckFsDeleteFile        Header = 0x040A
	HeaderCmdFsFormatFilesystem  Header = 0x040B
	HeaderAckFsFormatFilesystem  Header = 0x040C

	HeaderSensorError Header = 0x0500
)

// Sensor data headers are 0x0200 | encoding<<4 | rate. The rate nibble is
// part of the header because packed packets derive their per-sample period
// from it; the payload carries no rate field.
const (
	sensorDataBase Header = 0x0200
	sensorDataMask Header = 0xFF80

	rateNibbleRt = 0xF
)

// DataEncoding selects the payload layout of a sensor data packet.
type DataEncoding uint8

const (
	EncodingFullPacked DataEncoding = iota
	EncodingFull6DPacked
	EncodingFullFixed
	EncodingFull6DFixed
	EncodingFullFloat
	EncodingQuatPacked
	EncodingQuatFixed
	EncodingQuatFloat
)

var encodingNames = [...]string{
	"FullPacked", "Full6DPacked", "FullFixed", "Full6DFixed",
	"FullFloat", "QuatPacked", "QuatFixed", "QuatFloat",
}

func (e DataEncoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("DataEncoding(%d)", uint8(e))
}

var rateByNibble = [...]uint16{200, 100, 50, 25, 10, 1}

// SensorDataHeader builds the header for an encoding at a sampling rate.
// rateHz must be one of 200, 100, 50, 25, 10, 1.
func SensorDataHeader(enc DataEncoding, rateHz uint16) (Header, error) {
	for n, r := range rateByNibble {
		if r == rateHz {
			return sensorDataBase | Header(enc)<<4 | Header(n), nil
		}
	}
	return 0, fmt.Errorf("no sensor data header for rate %d Hz", rateHz)
}

// SensorDataHeaderRt builds the header for the real-time variant of an
// encoding.
func SensorDataHeaderRt(enc DataEncoding) Header {
	return sensorDataBase | Header(enc)<<4 | rateNibbleRt
}

// IsSensorData reports whether h is one of the sensor data headers.
func (h Header) IsSensorData() bool {
	if h&sensorDataMask != sensorDataBase {
		return false
	}
	n := h & 0xF
	return int(n) < len(rateByNibble) || n == rateNibbleRt
}

// Encoding returns the data encoding of a sensor data header.
func (h Header) Encoding() DataEncoding {
	return DataEncoding((h >> 4) & 0x7)
}

// IsRealTime reports whether h is an Rt sensor data variant.
func (h Header) IsRealTime() bool {
	return h.IsSensorData() && h&0xF == rateNibbleRt
}

// RateHz returns the sampling rate encoded in a sensor data header. Rt
// variants report the device default real-time rate of 50 Hz.
func (h Header) RateHz() uint16 {
	n := h & 0xF
	if n == rateNibbleRt {
		return 50
	}
	if int(n) < len(rateByNibble) {
		return rateByNibble[n]
	}
	return 0
}

// SamplePeriodNs returns the per-sample period of a sensor data header in
// nanoseconds.
func (h Header) SamplePeriodNs() int64 {
	rate := h.RateHz()
	if rate == 0 {
		return 0
	}
	return int64(1e9) / int64(rate)
}

var headerNames = map[Header]string{
	HeaderCmdGetDeviceInfo:               "CmdGetDeviceInfo",
	HeaderDataDeviceInfo:                 "DataDeviceInfo",
	HeaderCmdSleep:                       "CmdSleep",
	HeaderAckSleep:                       "AckSleep",
	HeaderCmdDeepSleep:                   "CmdDeepSleep",
	HeaderAckDeepSleep:                   "AckDeepSleep",
	HeaderCmdSetMeasurementMode:          "CmdSetMeasurementMode",
	HeaderDataMeasurementMode:            "DataMeasurementMode",
	HeaderCmdGetMeasurementMode:          "CmdGetMeasurementMode",
	HeaderCmdSetBurstMode:                "CmdSetBurstMode",
	HeaderDataBurstMode:                  "DataBurstMode",
	HeaderCmdGetBurstMode:                "CmdGetBurstMode",
	HeaderCmdSetRecordingConfig:          "CmdSetRecordingConfig",
	HeaderDataRecordingConfig:            "DataRecordingConfig",
	HeaderCmdGetRecordingConfig:          "CmdGetRecordingConfig",
	HeaderCmdStartStreaming:              "CmdStartStreaming",
	HeaderAckStartStreaming:              "AckStartStreaming",
	HeaderCmdStopStreaming:               "CmdStopStreaming",
	HeaderAckStopStreaming:               "AckStopStreaming",
	HeaderCmdStopStreamingAndClearBuffer: "CmdStopStreamingAndClearBuffer",
	HeaderAckStopStreamingAndClearBuffer: "AckStopStreamingAndClearBuffer",
	HeaderCmdStartRealTimeStreaming:      "CmdStartRealTimeStreaming",
	HeaderAckStartRealTimeStreaming:      "AckStartRealTimeStreaming",
	HeaderCmdStopRealTimeStreaming:       "CmdStopRealTimeStreaming",
	HeaderAckStopRealTimeStreaming:       "AckStopRealTimeStreaming",
	HeaderCmdSetAbsoluteTime:             "CmdSetAbsoluteTime",
	HeaderAckSetAbsoluteTime:             "AckSetAbsoluteTime",
	HeaderDataClockRoundtrip:             "DataClockRoundtrip",
	HeaderCmdSetLed:                      "CmdSetLed",
	HeaderAckSetLed:                      "AckSetLed",
	HeaderCmdSetSyncOutput:               "CmdSetSyncOutput",
	HeaderAckSetSyncOutput:               "AckSetSyncOutput",
	HeaderDataStatus:                     "DataStatus",
	HeaderCmdStartRecording:              "CmdStartRecording",
	HeaderAckStartRecording:              "AckStartRecording",
	HeaderCmdStopRecording:               "CmdStopRecording",
	HeaderAckStopRecording:               "AckStopRecording",
	HeaderDataRawBurst:                   "DataRawBurst",
	HeaderDataAccZBurst:                  "DataAccZBurst",
	HeaderDataSyncTrigger:                "DataSyncTrigger",
	HeaderCmdFsListFiles:                 "CmdFsListFiles",
	HeaderDataFsFileCount:                "DataFsFileCount",
	HeaderDataFsFile:                     "DataFsFile",
	HeaderCmdFsGetSize:                   "CmdFsGetSize",
	HeaderDataFsSize:                     "DataFsSize",
	HeaderCmdFsGetBytes:                  "CmdFsGetBytes",
	HeaderDataFsBytes:                    "DataFsBytes",
	HeaderCmdFsStopGetBytes:              "CmdFsStopGetBytes",
	HeaderAckFsStopGetBytes:              "AckFsStopGetBytes",
	HeaderCmdFsDeleteFile:                "CmdFsDeleteFile",
	HeaderAckFsDeleteFile:                "AckFsDeleteFile",
	HeaderCmdFsFormatFilesystem:          "CmdFsFormatFilesystem",
	HeaderAckFsFormatFilesystem:          "AckFsFormatFilesystem",
	HeaderSensorError:                    "SensorError",
}

func (h Header) String() string {
	if name, ok := headerNames[h]; ok {
		return name
	}
	if h.IsSensorData() {
		if h.IsRealTime() {
			return fmt.Sprintf("Data%sRt", h.Encoding())
		}
		return fmt.Sprintf("Data%s%dHz", h.Encoding(), h.RateHz())
	}
	return fmt.Sprintf("Header(0x%04X)", uint16(h))
}
