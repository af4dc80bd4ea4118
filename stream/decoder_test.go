package stream

import (
	"context"
	"errors"
	"io"
	"testing"
)

// segmentReader hands out its segments one Read at a time, mimicking a
// transport that frames its deliveries however it pleases.
type segmentReader struct {
	segments [][]byte
	closed   bool
}

func newSegmentReader(segments ...string) *segmentReader {
	r := &segmentReader{}
	for _, s := range segments {
		r.segments = append(r.segments, []byte(s))
	}
	return r
}

func (r *segmentReader) Read(p []byte) (int, error) {
	if len(r.segments) == 0 {
		return 0, io.EOF
	}
	seg := r.segments[0]
	n := copy(p, seg)
	if n == len(seg) {
		r.segments = r.segments[1:]
	} else {
		r.segments[0] = seg[n:]
	}
	return n, nil
}

func (r *segmentReader) Close() error {
	r.closed = true
	return nil
}

type errReader struct{ err error }

func (r *errReader) Read(p []byte) (int, error) { return 0, r.err }
func (r *errReader) Close() error               { return nil }

func drain(t *testing.T, d *Decoder) []*Event {
	t.Helper()
	var events []*Event
	for d.Next() {
		events = append(events, d.Current())
	}
	return events
}

func TestDecoderSplitAcrossChunks(t *testing.T) {
	// A frame boundary inside one chunk and a frame split across two: the
	// decoder must dispatch exactly the two events, in order.
	r := newSegmentReader(
		"data: {\"type\":\"token\",\"text\":\"a\"}\n\n",
		"data: {\"typ",
		"e\":\"done\",\"reason\":\"max_tokens\"}\n\n",
	)
	d := NewDecoder(context.Background(), r)
	defer d.Close()

	events := drain(t, d)
	if err := d.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].Type != EventToken || events[0].Text != "a" {
		t.Errorf("events[0] = %+v, want token with text %q", events[0], "a")
	}
	if events[1].Type != EventDone || events[1].Reason != ReasonMaxTokens {
		t.Errorf("events[1] = %+v, want done with reason %q", events[1], ReasonMaxTokens)
	}
}

func TestDecoderChunkSizeInvariance(t *testing.T) {
	raw := "data: {\"type\":\"status\",\"message\":\"starting\"}\n\n" +
		"data: {\"type\":\"token\",\"text\":\"1\",\"full_text\":\"1\",\"step\":0}\n\n" +
		"data: {\"type\":\"token\",\"text\":\"+2\",\"full_text\":\"1+2\",\"step\":1}\n\n" +
		"data: {\"type\":\"done\",\"reason\":\"complete\",\"is_complete\":true}\n\n"

	for _, size := range []int{1, 3, 8, 4096} {
		d := NewDecoder(context.Background(), newSegmentReader(raw), WithChunkSize(size))
		events := drain(t, d)
		d.Close()
		if err := d.Err(); err != nil {
			t.Fatalf("chunk size %d: Err() = %v, want nil", size, err)
		}
		if len(events) != 4 {
			t.Fatalf("chunk size %d: event count = %d, want 4", size, len(events))
		}
		if events[3].IsComplete == nil || !*events[3].IsComplete {
			t.Errorf("chunk size %d: final event IsComplete = %v, want true", size, events[3].IsComplete)
		}
	}
}

func TestDecoderDropsMalformedFrames(t *testing.T) {
	r := newSegmentReader(
		"data: {\"type\":\"token\",\"text\":\"a\"}\n\n",
		"data: {not json at all\n\n",
		"data: {\"type\":\"token\",\"text\":\"b\"}\n\n",
	)
	d := NewDecoder(context.Background(), r)
	defer d.Close()

	events := drain(t, d)
	if err := d.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil (malformed frames are not errors)", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].Text != "a" || events[1].Text != "b" {
		t.Errorf("event texts = %q, %q, want %q, %q", events[0].Text, events[1].Text, "a", "b")
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", d.Dropped())
	}
}

func TestDecoderContextCancellation(t *testing.T) {
	// Both frames arrive in one chunk, but the context is cancelled after
	// the first dispatch: the buffered done event must never surface.
	ctx, cancel := context.WithCancel(context.Background())
	r := newSegmentReader(
		"data: {\"type\":\"token\",\"text\":\"a\"}\n\ndata: {\"type\":\"done\",\"reason\":\"complete\"}\n\n",
	)
	d := NewDecoder(ctx, r)
	defer d.Close()

	if !d.Next() {
		t.Fatalf("Next() = false on first event, Err() = %v", d.Err())
	}
	cancel()
	if d.Next() {
		t.Fatalf("Next() = true after cancellation, got %+v", d.Current())
	}
	if !errors.Is(d.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", d.Err())
	}
}

func TestDecoderDiscardsUnterminatedTail(t *testing.T) {
	r := newSegmentReader(
		"data: {\"type\":\"token\",\"text\":\"a\"}\n\n",
		"data: {\"type\":\"done\",\"reason\":\"complete\"}", // no separator before EOF
	)
	d := NewDecoder(context.Background(), r)
	defer d.Close()

	events := drain(t, d)
	if err := d.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	if len(events) != 1 {
		t.Fatalf("event count = %d, want 1 (unterminated tail is discarded)", len(events))
	}
	if events[0].Type != EventToken {
		t.Errorf("events[0].Type = %q, want %q", events[0].Type, EventToken)
	}
}

func TestDecoderTransportError(t *testing.T) {
	readErr := errors.New("connection reset")
	d := NewDecoder(context.Background(), &errReader{err: readErr})
	defer d.Close()

	if d.Next() {
		t.Fatalf("Next() = true, want false on transport failure")
	}
	if !errors.Is(d.Err(), readErr) {
		t.Errorf("Err() = %v, want %v", d.Err(), readErr)
	}
}

func TestDecoderCloseReleasesReader(t *testing.T) {
	r := newSegmentReader("data: {\"type\":\"status\",\"message\":\"x\"}\n\n")
	d := NewDecoder(context.Background(), r)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !r.closed {
		t.Errorf("underlying reader not closed")
	}
	if d.Next() {
		t.Errorf("Next() = true after Close, want false")
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}
