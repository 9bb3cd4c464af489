package camera

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// frameCallback receives each complete JPEG frame.
type frameCallback func(frame []byte) error

// scanJPEGFrames reads a stream of concatenated JPEG images (ffmpeg
// image2pipe output) and invokes the callback per frame. It tolerates an
// initial EOF while ffmpeg is still opening the device, up to 5 seconds.
func scanJPEGFrames(ctx context.Context, r io.Reader, callback frameCallback) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50 // 50 * 100ms
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// JPEG start marker: FF D8
		if err := findJPEGStart(reader); err != nil {
			if err == io.EOF {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil
				}
				return fmt.Errorf("no frames received from camera (waited %.1fs)", float64(startupRetries)*0.1)
			}
			return err
		}

		frame, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF && framesRead > 0 {
				return nil // stream ended mid-frame
			}
			return err
		}

		if len(frame) > 0 {
			framesRead++
			if err := callback(frame); err != nil {
				slog.Warn("frame callback error", "error", err)
			}
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		// Safety: max 10MB per frame
		if len(data) > 10*1024*1024 {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
