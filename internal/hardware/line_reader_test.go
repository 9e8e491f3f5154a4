// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package hardware

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLineReaderYieldsTrimmedTags(t *testing.T) {
	r := NewLineReader(strings.NewReader("tag-1\n  tag-2  \n\ntag-3\n"), "reader-0")
	ctx := context.Background()

	for _, want := range []string{"tag-1", "tag-2", "tag-3"} {
		ev, err := r.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.TagID != want {
			t.Errorf("tag = %q, want %q", ev.TagID, want)
		}
		if ev.ReaderID != "reader-0" {
			t.Errorf("reader id = %q", ev.ReaderID)
		}
	}

	if _, err := r.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Next after stream end = %v, want io.EOF", err)
	}
}

func TestLineReaderHonorsCanceledContext(t *testing.T) {
	r := NewLineReader(strings.NewReader("tag-1\n"), "reader-0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next with canceled ctx = %v, want context.Canceled", err)
	}
}
