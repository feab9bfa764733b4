package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, 2*time.Second, c.CommandTimeout)
	assert.Equal(t, 30*time.Second, c.ListFilesTimeout)
	assert.Equal(t, OverflowDropOldest, c.QueueOverflowPolicy)
	assert.False(t, c.ClockSyncEnabled)
	assert.Equal(t, uint8(0), c.RealTimeRateLimit)
}

func TestDecode(t *testing.T) {
	src := `
scan_timeout_ms       = 5000
command_timeout_ms    = 1500
queue_capacity        = 128
queue_overflow_policy = "error"
clock_sync_enabled    = true
clock_sync_interval_ms = 500
realtime_rate_limit   = 100
`
	c, err := Decode("test.hcl", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.ScanTimeout)
	assert.Equal(t, 1500*time.Millisecond, c.CommandTimeout)
	assert.Equal(t, 128, c.QueueCapacity)
	assert.Equal(t, OverflowError, c.QueueOverflowPolicy)
	assert.True(t, c.ClockSyncEnabled)
	assert.Equal(t, 500*time.Millisecond, c.ClockSyncInterval)
	assert.Equal(t, uint8(100), c.RealTimeRateLimit)
	// Untouched fields keep their defaults.
	assert.Equal(t, 10*time.Second, c.ConnectTimeout)
}

func TestDecodeInvalidPolicy(t *testing.T) {
	_, err := Decode("test.hcl", []byte(`queue_overflow_policy = "random"`))
	assert.Error(t, err)
}

func TestDecodeSyntaxError(t *testing.T) {
	_, err := Decode("test.hcl", []byte(`queue_capacity = `))
	assert.Error(t, err)
}
