package device

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

func waitForWritten(t *testing.T, tr *mockTransport, n int) []packets.Header {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(tr.writtenHeaders()) >= n
	}, time.Second, time.Millisecond)
	return tr.writtenHeaders()
}

func TestListFiles(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan []FileInfo, 1)
	go func() {
		files, err := dev.ListFiles(context.Background())
		assert.NoError(t, err)
		done <- files
	}()

	waitForWritten(t, tr, 1)
	tr.inject(t, &packets.DataFsFileCount{FileCount: 2}, 0)
	// A status in between must not confuse the listing.
	tr.inject(t, &packets.DataStatus{}, 0)
	tr.inject(t, &packets.DataFsFile{Index: 0, Size: 100, Filename: "rec0"}, 0)
	tr.inject(t, &packets.DataFsFile{Index: 1, Size: 200, Filename: "rec1"}, 0)

	files := <-done
	require.Len(t, files, 2)
	assert.Equal(t, "rec0", files[0].Name)
	assert.Equal(t, uint64(200), files[1].Size)
}

func TestListFilesEmpty(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	done := make(chan []FileInfo, 1)
	go func() {
		files, err := dev.ListFiles(context.Background())
		assert.NoError(t, err)
		done <- files
	}()

	waitForWritten(t, tr, 1)
	tr.inject(t, &packets.DataFsFileCount{FileCount: 0}, 0)
	assert.Empty(t, <-done)
}

func TestDownload(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	var sink bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- dev.Download(context.Background(), "rec0", &sink, DownloadOptions{})
	}()

	// Size request first.
	headers := waitForWritten(t, tr, 1)
	assert.Equal(t, packets.HeaderCmdFsGetSize, headers[0])
	tr.inject(t, &packets.DataFsSize{Filename: "rec0", FileSize: 5}, 0)

	headers = waitForWritten(t, tr, 2)
	assert.Equal(t, packets.HeaderCmdFsGetBytes, headers[1])
	tr.inject(t, &packets.DataFsBytes{Offset: 0, Payload: []byte{1, 2, 3}}, 0)
	tr.inject(t, &packets.DataFsBytes{Offset: 3, Payload: []byte{4, 5}}, 0)

	require.NoError(t, <-done)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, sink.Bytes())
}

// A gap in the chunk offsets triggers a stop and a new request for the
// missing range.
func TestDownloadGapRetry(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	var sink bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- dev.Download(context.Background(), "rec0", &sink, DownloadOptions{})
	}()

	waitForWritten(t, tr, 1)
	tr.inject(t, &packets.DataFsSize{Filename: "rec0", FileSize: 6}, 0)
	waitForWritten(t, tr, 2)
	tr.inject(t, &packets.DataFsBytes{Offset: 0, Payload: []byte{1, 2, 3}}, 0)
	// Chunk at offset 3 goes missing; the device continues at 5.
	tr.inject(t, &packets.DataFsBytes{Offset: 5, Payload: []byte{6}}, 0)

	// The client stops the transfer and requests the missing range.
	headers := waitForWritten(t, tr, 3)
	assert.Equal(t, packets.HeaderCmdFsStopGetBytes, headers[2])
	tr.inject(t, packets.NewSimple(packets.HeaderAckFsStopGetBytes), 0)

	headers = waitForWritten(t, tr, 4)
	assert.Equal(t, packets.HeaderCmdFsGetBytes, headers[3])
	tr.inject(t, &packets.DataFsBytes{Offset: 3, Payload: []byte{4, 5, 6}}, 0)

	require.NoError(t, <-done)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, sink.Bytes())
}

func TestDownloadInvalidFilename(t *testing.T) {
	dev, _ := newTestDevice(t, false)
	err := dev.Download(context.Background(), string(make([]byte, 80)), &bytes.Buffer{}, DownloadOptions{})
	assert.ErrorIs(t, err, packets.ErrFilename)
}

func TestSetMeasurementModeEcho(t *testing.T) {
	dev, tr := newTestDevice(t, false)

	mode := packets.MeasurementMode{FullPackedMode: packets.Mode200Hz, StatusMode: 1}
	done := make(chan *packets.DataMeasurementMode, 1)
	go func() {
		echo, err := dev.SetMeasurementMode(context.Background(), mode)
		assert.NoError(t, err)
		done <- echo
	}()

	waitForWritten(t, tr, 1)
	tr.inject(t, &packets.DataMeasurementMode{MeasurementMode: mode}, 0)

	echo := <-done
	assert.Equal(t, packets.Mode200Hz, echo.FullPackedMode)
}

func TestGenerateSyncID(t *testing.T) {
	a := GenerateSyncID()
	b := GenerateSyncID()
	assert.NotEqual(t, a, b)
}
