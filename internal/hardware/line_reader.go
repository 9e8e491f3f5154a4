// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package hardware

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"
)

// LineReader adapts line-oriented reader hardware to the TagReader
// interface. Most USB proximity readers enumerate as a character device
// that emits the tag id followed by a newline on each scan.
type LineReader struct {
	readerID string
	scanner  *bufio.Scanner
}

// NewLineReader wraps an open device stream. The caller owns closing
// the underlying reader; closing it ends Next with io.EOF.
func NewLineReader(r io.Reader, readerID string) *LineReader {
	return &LineReader{readerID: readerID, scanner: bufio.NewScanner(r)}
}

// Next blocks until the device emits a non-empty line. The underlying
// Scan does not observe ctx; cancellation is only noticed between
// lines, which matches how the pump shuts down (the device file is
// closed alongside the context).
func (r *LineReader) Next(ctx context.Context) (TagDetected, error) {
	for {
		if err := ctx.Err(); err != nil {
			return TagDetected{}, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return TagDetected{}, err
			}
			return TagDetected{}, io.EOF
		}
		tagID := strings.TrimSpace(r.scanner.Text())
		if tagID == "" {
			continue
		}
		return TagDetected{
			TagID:      tagID,
			ReaderID:   r.readerID,
			DetectedAt: time.Now(),
		}, nil
	}
}
