// Package config holds the client configuration, loadable from an HCL file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// OverflowPolicy selects what happens when the consumer queue is full.
type OverflowPolicy string

const (
	// OverflowDropOldest discards the oldest queued packet and counts the
	// drop.
	OverflowDropOldest OverflowPolicy = "drop-oldest"
	// OverflowError poisons the stream with ErrQueueOverflow.
	OverflowError OverflowPolicy = "error"
)

// Schema is the HCL representation of the client configuration. Durations
// are given in milliseconds.
type Schema struct {
	ScanTimeoutMs       int    `hcl:"scan_timeout_ms,optional"`
	ConnectTimeoutMs    int    `hcl:"connect_timeout_ms,optional"`
	CommandTimeoutMs    int    `hcl:"command_timeout_ms,optional"`
	ListFilesTimeoutMs  int    `hcl:"list_files_timeout_ms,optional"`
	QueueCapacity       int    `hcl:"queue_capacity,optional"`
	QueueOverflowPolicy string `hcl:"queue_overflow_policy,optional"`
	ClockSyncIntervalMs int    `hcl:"clock_sync_interval_ms,optional"`
	ClockSyncEnabled    bool   `hcl:"clock_sync_enabled,optional"`
	RealTimeRateLimit   int    `hcl:"realtime_rate_limit,optional"`
}

// Client is the resolved client configuration.
type Client struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	// CommandTimeout bounds simple echo commands; ListFilesTimeout bounds
	// the filesystem listing. Downloads use a progress watchdog instead.
	CommandTimeout      time.Duration
	ListFilesTimeout    time.Duration
	QueueCapacity       int
	QueueOverflowPolicy OverflowPolicy
	ClockSyncInterval   time.Duration
	ClockSyncEnabled    bool
	// RealTimeRateLimit is the rate limit passed to
	// CmdStartRealTimeStreaming; 0 selects the device default of 50 Hz.
	RealTimeRateLimit uint8
}

// Default returns the configuration used when no file is given.
func Default() *Client {
	return &Client{
		ScanTimeout:         30 * time.Second,
		ConnectTimeout:      10 * time.Second,
		CommandTimeout:      2 * time.Second,
		ListFilesTimeout:    30 * time.Second,
		QueueCapacity:       4096,
		QueueOverflowPolicy: OverflowDropOldest,
		ClockSyncInterval:   time.Second,
		ClockSyncEnabled:    false,
		RealTimeRateLimit:   0,
	}
}

// Load reads an HCL configuration file and applies it on top of the
// defaults.
func Load(path string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(path, data)
}

// Decode parses HCL source and applies it on top of the defaults.
func Decode(filename string, data []byte) (*Client, error) {
	file, diag := hclsyntax.ParseConfig(data, filename, hcl.InitialPos)
	if diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}
	schema := &Schema{}
	diag = gohcl.DecodeBody(file.Body, nil, schema)
	if diag.HasErrors() {
		return nil, errors.New(diag.Error())
	}

	c := Default()
	if schema.ScanTimeoutMs > 0 {
		c.ScanTimeout = time.Duration(schema.ScanTimeoutMs) * time.Millisecond
	}
	if schema.ConnectTimeoutMs > 0 {
		c.ConnectTimeout = time.Duration(schema.ConnectTimeoutMs) * time.Millisecond
	}
	if schema.CommandTimeoutMs > 0 {
		c.CommandTimeout = time.Duration(schema.CommandTimeoutMs) * time.Millisecond
	}
	if schema.ListFilesTimeoutMs > 0 {
		c.ListFilesTimeout = time.Duration(schema.ListFilesTimeoutMs) * time.Millisecond
	}
	if schema.QueueCapacity > 0 {
		c.QueueCapacity = schema.QueueCapacity
	}
	if schema.QueueOverflowPolicy != "" {
		switch OverflowPolicy(schema.QueueOverflowPolicy) {
		case OverflowDropOldest, OverflowError:
			c.QueueOverflowPolicy = OverflowPolicy(schema.QueueOverflowPolicy)
		default:
			return nil, fmt.Errorf("invalid queue_overflow_policy %q", schema.QueueOverflowPolicy)
		}
	}
	if schema.ClockSyncIntervalMs > 0 {
		c.ClockSyncInterval = time.Duration(schema.ClockSyncIntervalMs) * time.Millisecond
	}
	c.ClockSyncEnabled = schema.ClockSyncEnabled
	if schema.RealTimeRateLimit > 0 {
		if schema.RealTimeRateLimit > 255 {
			return nil, fmt.Errorf("invalid realtime_rate_limit %d", schema.RealTimeRateLimit)
		}
		c.RealTimeRateLimit = uint8(schema.RealTimeRateLimit)
	}
	return c, nil
}
