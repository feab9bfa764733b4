package packets

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorstim/capture2go/pkg/imu/quat"
)

func mustHeader(t *testing.T, enc DataEncoding, rate uint16) Header {
	t.Helper()
	h, err := SensorDataHeader(enc, rate)
	require.NoError(t, err)
	return h
}

func TestSensorDataHeaderProperties(t *testing.T) {
	h := mustHeader(t, EncodingFullPacked, 200)
	assert.True(t, h.IsSensorData())
	assert.False(t, h.IsRealTime())
	assert.Equal(t, uint16(200), h.RateHz())
	assert.Equal(t, int64(5_000_000), h.SamplePeriodNs())

	rt := SensorDataHeaderRt(EncodingQuatFixed)
	assert.True(t, rt.IsSensorData())
	assert.True(t, rt.IsRealTime())
	assert.Equal(t, uint16(50), rt.RateHz())

	assert.False(t, HeaderDataStatus.IsSensorData())

	_, err := SensorDataHeader(EncodingFullPacked, 123)
	assert.Error(t, err)
}

func TestFullPackedRoundtrip(t *testing.T) {
	p := &DataFullPacked{
		Hdr:       mustHeader(t, EncodingFullPacked, 100),
		Timestamp: 1_000_000,
		Quat:      quat.Encode64(quat.Identity, false, true),
		Gyr:       make([][3]int16, FullPackedSamples),
		Acc:       make([][3]int16, FullPackedSamples),
		Mag:       make([][3]int16, FullPackedSamples),
		Delta:     -200,
		Flags:     ErrorFlagGyrClipping,
	}
	for i := 0; i < FullPackedSamples; i++ {
		p.Gyr[i] = [3]int16{int16(i * 10), 0, int16(-i)}
		p.Acc[i] = [3]int16{0, 1000, int16(i)}
		p.Mag[i] = [3]int16{16, -16, 160}
	}
	roundtrip(t, p)
}

func TestFull6DPackedRoundtrip(t *testing.T) {
	p := &DataFullPacked{
		Hdr:       mustHeader(t, EncodingFull6DPacked, 200),
		Timestamp: 5,
		Quat:      quat.Encode64(quat.Identity, true, false),
		Gyr:       make([][3]int16, FullPackedSamples),
		Acc:       make([][3]int16, FullPackedSamples),
	}
	roundtrip(t, p)
}

func TestFullPackedZeroGyrReconstruction(t *testing.T) {
	anchor := quat.Quaternion{0.5, 0.5, 0.5, 0.5}
	p := &DataFullPacked{
		Hdr:       mustHeader(t, EncodingFullPacked, 200),
		Timestamp: 1_700_000_000_000_000_000,
		Quat:      quat.Encode64(anchor, false, false),
		Gyr:       make([][3]int16, FullPackedSamples),
		Acc:       make([][3]int16, FullPackedSamples),
		Mag:       make([][3]int16, FullPackedSamples),
	}
	s := p.Samples()
	require.Len(t, s.Quat, FullPackedSamples)

	// With all gyro samples zero, every reconstructed quaternion equals the
	// anchor.
	decoded, _, _ := quat.Decode64(p.Quat)
	for i, q := range s.Quat {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, decoded[j], q[j], 1e-12, "sample %d component %d", i, j)
		}
	}
	for j := 0; j < 4; j++ {
		assert.InDelta(t, anchor[j], decoded[j], 1.0/(1<<19))
	}
}

func TestFullPackedSampleTimestamps(t *testing.T) {
	p := &DataFullPacked{
		Hdr:       mustHeader(t, EncodingFullPacked, 200),
		Timestamp: 1000,
		Quat:      quat.Encode64(quat.Identity, false, false),
		Gyr:       make([][3]int16, FullPackedSamples),
		Acc:       make([][3]int16, FullPackedSamples),
		Mag:       make([][3]int16, FullPackedSamples),
	}
	s := p.Samples()
	for i, ts := range s.Timestamps {
		assert.Equal(t, int64(1000)+int64(i)*5_000_000, ts)
	}
}

func TestFullPackedGyrIntegration(t *testing.T) {
	// One strong rotation on the second sample must rotate all following
	// samples away from the anchor by the same increment.
	rawGyr := int16(math.Round(1.0 / ScaleGyr)) // about 1 rad/s around x
	p := &DataFullPacked{
		Hdr:       mustHeader(t, EncodingFullPacked, 200),
		Timestamp: 0,
		Quat:      quat.Encode64(quat.Identity, false, false),
		Gyr:       make([][3]int16, FullPackedSamples),
		Acc:       make([][3]int16, FullPackedSamples),
		Mag:       make([][3]int16, FullPackedSamples),
	}
	p.Gyr[1] = [3]int16{rawGyr, 0, 0}
	s := p.Samples()

	angle := float64(rawGyr) * ScaleGyr / 200
	step := quat.FromGyr([3]float64{float64(rawGyr) * ScaleGyr, 0, 0}, 200)
	assert.InDelta(t, math.Cos(angle/2), step[0], 1e-12)

	// The anchor is the decoded packed quaternion, which carries the
	// 20-bit quantization error of the encoding.
	anchor, _, _ := quat.Decode64(p.Quat)
	expected := quat.Mul(anchor, step).Normalized()

	for j := 0; j < 4; j++ {
		assert.InDelta(t, anchor[j], s.Quat[0][j], 1e-9)
		assert.InDelta(t, expected[j], s.Quat[1][j], 1e-9)
		// No further rotation after sample 1.
		assert.InDelta(t, expected[j], s.Quat[7][j], 1e-9)
	}
}

func TestFullFixedRoundtripAndSamples(t *testing.T) {
	n := FullFixedSamples
	p := &DataFullFixed{
		Hdr:       mustHeader(t, EncodingFullFixed, 50),
		Timestamp: 77,
		Quat:      make([]uint64, n),
		Gyr:       make([][3]int16, n),
		Acc:       make([][3]int16, n),
		Mag:       make([][3]int16, n),
		Delta:     make([]int16, n),
		Flags:     make([]ErrorFlags, n),
	}
	for i := 0; i < n; i++ {
		p.Quat[i] = quat.Encode64(quat.Identity, false, false)
		p.Delta[i] = int16(i * 100)
		p.Flags[i] = ErrorFlags(i)
	}
	roundtrip(t, p)

	s := p.Samples()
	assert.Len(t, s.Quat, n)
	for i := 0; i < n; i++ {
		assert.InDelta(t, float64(p.Delta[i])*ScaleDelta, s.Delta[i], 1e-12)
		assert.Equal(t, p.Flags[i], s.ErrorFlags[i])
	}

	sixD := &DataFullFixed{
		Hdr:       mustHeader(t, EncodingFull6DFixed, 50),
		Timestamp: 78,
		Quat:      p.Quat,
		Gyr:       p.Gyr,
		Acc:       p.Acc,
		Delta:     p.Delta,
		Flags:     p.Flags,
	}
	roundtrip(t, sixD)
	assert.Nil(t, sixD.Samples().Mag)
}

func TestFullFloatRoundtripAndSamples(t *testing.T) {
	p := &DataFullFloat{
		Hdr:             mustHeader(t, EncodingFullFloat, 200),
		Timestamp:       123,
		Quat:            [4]float32{1, 0, 0, 0},
		Gyr:             [3]float32{0.1, -0.2, 0.3},
		Acc:             [3]float32{0, 9.81, 0},
		Mag:             [3]float32{20, -5, 43},
		Delta:           0.25,
		RestDetected:    true,
		MagDistDetected: false,
		Flags:           ErrorFlagAccClipping,
	}
	roundtrip(t, p)

	s := p.Samples()
	assert.True(t, s.RestDetected)
	assert.InDelta(t, 0.25, s.Delta[0], 1e-7)
	assert.InDelta(t, 9.81, s.Acc[0][1], 1e-5)
}

func TestQuatPackedRoundtripAndSamples(t *testing.T) {
	n := QuatPackedSamples
	p := &DataQuatPacked{
		Hdr:       mustHeader(t, EncodingQuatPacked, 100),
		Timestamp: 999,
		Quat:      quat.Encode64(quat.Identity, false, false),
		Gyr:       make([][3]int16, n),
		Delta:     make([]int16, n),
		Flags:     make([]ErrorFlags, n),
	}
	for i := 0; i < n; i++ {
		p.Delta[i] = int16(-i)
		p.Flags[i] = ErrorFlags(i % 8)
	}
	roundtrip(t, p)

	// Per-sample delta and error flags, unlike DataFullPacked.
	s := p.Samples()
	assert.Len(t, s.Delta, n)
	assert.Len(t, s.ErrorFlags, n)
	assert.Len(t, s.Quat, n)
	for i := 0; i < n; i++ {
		assert.InDelta(t, float64(-i)*ScaleDelta, s.Delta[i], 1e-12)
	}
	for j := 0; j < 4; j++ {
		assert.InDelta(t, s.Quat[0][j], s.Quat[n-1][j], 1e-9)
	}
}

func TestQuatFixedRoundtripAndSamples(t *testing.T) {
	p := &DataQuatFixed{
		Hdr:       SensorDataHeaderRt(EncodingQuatFixed),
		Timestamp: 555,
		Quat:      quat.Encode64(quat.Quaternion{0, 1, 0, 0}, false, true),
		Delta:     16384,
		Flags:     0,
	}
	roundtrip(t, p)

	s := p.Samples()
	assert.True(t, s.MagDistDetected)
	assert.InDelta(t, math.Pi/2, s.Delta[0], 1e-4)
	assert.Len(t, s.Quat9D, 1)
}

func TestQuatFloatRoundtrip(t *testing.T) {
	p := &DataQuatFloat{
		Hdr:             mustHeader(t, EncodingQuatFloat, 1),
		Timestamp:       1,
		Quat:            [4]float32{0.5, 0.5, 0.5, 0.5},
		Delta:           -1.5,
		RestDetected:    false,
		MagDistDetected: true,
		Flags:           ErrorFlagProcessingIssue,
	}
	roundtrip(t, p)
}

func TestAllSensorDataHeadersRegistered(t *testing.T) {
	encodings := []DataEncoding{
		EncodingFullPacked, EncodingFull6DPacked, EncodingFullFixed, EncodingFull6DFixed,
		EncodingFullFloat, EncodingQuatPacked, EncodingQuatFixed, EncodingQuatFloat,
	}
	rates := []uint16{200, 100, 50, 25, 10, 1}
	for _, enc := range encodings {
		for _, rate := range rates {
			h := mustHeader(t, enc, rate)
			assert.True(t, Known(h), "header %s", h)
		}
		assert.True(t, Known(SensorDataHeaderRt(enc)))
	}
}
