package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sensorstim/capture2go/pkg/imu/packets"
)

// downloadGrace is how long a download waits without progress before
// considering the transfer stalled. Long downloads have no overall deadline;
// this watchdog bounds them instead.
const downloadGrace = 5 * time.Second

// DownloadOptions controls a file download.
type DownloadOptions struct {
	// StartPos and EndPos select a byte range; EndPos of 0 means the end of
	// the file.
	StartPos uint32
	EndPos   uint32
	// Progress, if set, is called after every received chunk with the byte
	// counts so far.
	Progress func(received, total uint64)
}

// Download transfers a stored file into sink. Chunks must advance the
// offset monotonically; on a gap the missing range is requested again. When
// the device stops sending for the grace period, the transfer is aborted
// with CmdFsStopGetBytes.
func (d *Device) Download(ctx context.Context, filename string, sink io.Writer, opts DownloadOptions) error {
	if err := packets.ValidFilename(filename); err != nil {
		return err
	}

	size, err := d.FileSize(ctx, filename)
	if err != nil {
		return fmt.Errorf("getting size of %q: %w", filename, err)
	}

	start := uint64(opts.StartPos)
	end := size
	if opts.EndPos != 0 && uint64(opts.EndPos) < size {
		end = uint64(opts.EndPos)
	}
	if start >= end {
		return fmt.Errorf("empty range %d..%d for %q", start, end, filename)
	}

	if err := d.Send(&packets.CmdFsGetBytes{
		Filename: filename, StartPos: uint32(start), EndPos: opts.EndPos,
	}); err != nil {
		return err
	}

	received := start
	retried := false
	watchdog := time.NewTimer(downloadGrace)
	defer watchdog.Stop()

	for received < end {
		select {
		case qp, ok := <-d.Packets():
			if !ok {
				return ErrDisconnected
			}
			chunk, isChunk := qp.Packet.(*packets.DataFsBytes)
			if !isChunk {
				continue // Unrelated traffic while downloading is left alone.
			}

			if uint64(chunk.Offset) != received {
				// A chunk went missing; request the remaining range once.
				if retried {
					_ = d.stopGetBytes(ctx)
					return fmt.Errorf("offset %d does not match expected %d for %q",
						chunk.Offset, received, filename)
				}
				retried = true
				if d.log != nil {
					d.log.Warn().Str("device", d.Name()).Str("file", filename).
						Int64("expected", int64(received)).Int64("offset", int64(chunk.Offset)).
						Msg("chunk gap, requesting missing range")
				}
				if err := d.stopGetBytes(ctx); err != nil {
					return err
				}
				if err := d.Send(&packets.CmdFsGetBytes{
					Filename: filename, StartPos: uint32(received), EndPos: opts.EndPos,
				}); err != nil {
					return err
				}
				continue
			}

			if _, err := sink.Write(chunk.Payload); err != nil {
				_ = d.stopGetBytes(ctx)
				return fmt.Errorf("writing %q: %w", filename, err)
			}
			received += uint64(len(chunk.Payload))
			retried = false
			if opts.Progress != nil {
				opts.Progress(received, end)
			}
			if !watchdog.Stop() {
				<-watchdog.C
			}
			watchdog.Reset(downloadGrace)

		case <-watchdog.C:
			_ = d.stopGetBytes(ctx)
			return fmt.Errorf("download of %q stalled at %d of %d bytes: %w",
				filename, received, end, ErrTimeout)

		case <-ctx.Done():
			_ = d.stopGetBytes(ctx)
			return ctx.Err()
		}
	}
	return nil
}

func (d *Device) stopGetBytes(ctx context.Context) error {
	_, err := d.SendAndAwait(ctx, packets.NewSimple(packets.HeaderCmdFsStopGetBytes), 0,
		packets.HeaderAckFsStopGetBytes)
	return err
}
