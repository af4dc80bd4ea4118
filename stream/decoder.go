package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/sweetpotato0/gramflow/pkg/logging"
)

const defaultChunkSize = 4096

// DecoderOption customises a Decoder.
type DecoderOption func(*Decoder)

// WithChunkSize sets the transport read size. Mainly useful in tests that
// exercise frame reassembly across adversarial chunk boundaries.
func WithChunkSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.chunk = make([]byte, n)
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// Decoder pulls typed events out of a raw generation stream. Usage follows
// the same loop shape as the provider SDK streams:
//
//	dec := stream.NewDecoder(ctx, resp.Body)
//	defer dec.Close()
//	for dec.Next() {
//	    ev := dec.Current()
//	    ...
//	}
//	if err := dec.Err(); err != nil { ... }
//
// Malformed frames are counted and dropped, never surfaced as errors. The
// context is observed at every chunk boundary and before every event
// hand-off, so a cancelled session stops dispatching promptly.
type Decoder struct {
	ctx     context.Context
	r       io.ReadCloser
	re      Reassembler
	chunk   []byte
	pending [][]byte
	cur     *Event
	err     error
	eof     bool
	done    bool
	closed  bool
	dropped int
	logger  *slog.Logger
}

// NewDecoder wraps a transport stream. The caller owns Close.
func NewDecoder(ctx context.Context, r io.ReadCloser, opts ...DecoderOption) *Decoder {
	if ctx == nil {
		ctx = context.Background()
	}
	d := &Decoder{
		ctx:    ctx,
		r:      r,
		chunk:  make([]byte, defaultChunkSize),
		logger: logging.WithComponent("stream"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next advances to the next event. It returns false at stream end, on
// transport failure, or once the context is done; Err distinguishes the
// failure cases from a clean end.
func (d *Decoder) Next() bool {
	if d.done {
		return false
	}
	for {
		if err := d.ctx.Err(); err != nil {
			d.fail(err)
			return false
		}

		for len(d.pending) > 0 {
			payload := d.pending[0]
			d.pending = d.pending[1:]
			ev, err := ParseEvent(payload)
			if err != nil {
				d.dropped++
				d.logger.Debug("dropping malformed frame", "error", err, "dropped_total", d.dropped)
				continue
			}
			if err := d.ctx.Err(); err != nil {
				d.fail(err)
				return false
			}
			d.cur = ev
			return true
		}

		if d.eof {
			if residue := d.re.Flush(); len(residue) > 0 {
				d.logger.Debug("discarding unterminated trailing bytes at stream end", "bytes", len(residue))
			}
			d.done = true
			return false
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.pending = append(d.pending, d.re.Push(d.chunk[:n])...)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			d.eof = true
		default:
			d.fail(err)
			return false
		}
	}
}

// Current returns the event produced by the last successful Next.
func (d *Decoder) Current() *Event {
	return d.cur
}

// Err returns the terminal error, nil after a clean stream end.
func (d *Decoder) Err() error {
	return d.err
}

// Dropped reports how many malformed frames were discarded.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Close releases the underlying transport stream. Safe to call more than
// once and safe to call while a read-loop is still draining; subsequent
// Next calls return false.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.done = true
	if d.r == nil {
		return nil
	}
	return d.r.Close()
}

func (d *Decoder) fail(err error) {
	d.err = err
	d.done = true
}
