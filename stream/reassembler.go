package stream

import (
	"bytes"
)

var (
	frameSep    = []byte("\n\n")
	dataMarker  = []byte("data:")
	lineBreak   = []byte("\n")
	carriageRet = []byte("\r")
)

// Reassembler turns a sequence of raw transport chunks into complete frame
// payloads. The transport gives no alignment guarantee, so a chunk may end
// mid-frame, mid-line, or even mid-rune; the reassembler keeps exactly one
// pending buffer and only releases payloads whose terminating blank line
// has arrived. It holds no parsing state beyond that buffer, which is what
// makes its output invariant under re-chunking of the same bytes.
type Reassembler struct {
	buf []byte
}

// Push appends one chunk and returns the payloads of every frame completed
// by it, in order. A frame's payload is the marker-prefixed lines with the
// marker stripped, joined with newlines, so multi-line JSON bodies survive.
// Frames containing no marker lines (comments, keep-alives) produce nothing.
func (r *Reassembler) Push(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var payloads [][]byte
	start := 0
	for {
		idx := bytes.Index(r.buf[start:], frameSep)
		if idx < 0 {
			break
		}
		frame := r.buf[start : start+idx]
		if payload := joinMarkerLines(frame); payload != nil {
			payloads = append(payloads, payload)
		}
		start += idx + len(frameSep)
	}
	if start > 0 {
		r.buf = append(r.buf[:0], r.buf[start:]...)
	}
	return payloads
}

// Pending reports how many bytes are buffered awaiting a frame separator.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Flush discards and returns whatever is buffered. Called at stream end: a
// final frame the far side never terminated with a separator is dropped by
// contract, and the caller may log the residue it gets back.
func (r *Reassembler) Flush() []byte {
	residue := r.buf
	r.buf = nil
	return residue
}

// joinMarkerLines extracts the payload from one complete frame. Returns nil
// when the frame carries no marker lines at all; the result is always a
// fresh allocation, never a view into the pending buffer.
func joinMarkerLines(frame []byte) []byte {
	var parts [][]byte
	for _, line := range bytes.Split(frame, lineBreak) {
		line = bytes.TrimSuffix(line, carriageRet)
		if !bytes.HasPrefix(line, dataMarker) {
			continue
		}
		rest := line[len(dataMarker):]
		if len(rest) > 0 && rest[0] == ' ' {
			rest = rest[1:]
		}
		parts = append(parts, rest)
	}
	if parts == nil {
		return nil
	}
	return bytes.Join(parts, lineBreak)
}
