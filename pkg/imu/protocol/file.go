package protocol

import (
	"io"
	"os"
)

// ScanReader feeds a recorded byte stream through an Unpacker and calls fn
// for every recovered frame. Persisted recordings are direct concatenations
// of wire frames, so this reads both device downloads and captured streams.
// Leading garbage (e.g. a capture started mid-stream) is skipped.
func ScanReader(r io.Reader, fn func(Frame) error) (dropped uint64, err error) {
	u := NewUnpacker()
	buf := make([]byte, 64*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			u.Feed(buf[:n])
			for {
				frame, ok := u.Next()
				if !ok {
					break
				}
				if err := fn(frame); err != nil {
					return u.DroppedBytes(), err
				}
			}
		}
		if readErr == io.EOF {
			return u.DroppedBytes(), nil
		}
		if readErr != nil {
			return u.DroppedBytes(), readErr
		}
	}
}

// ScanFile is ScanReader over a file on disk.
func ScanFile(path string, fn func(Frame) error) (dropped uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ScanReader(f, fn)
}
