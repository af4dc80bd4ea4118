package stream

import "iter"

// Stream is the pull-shaped view of a decoded event sequence shared by
// everything that feeds a compare session: the Decoder over a live HTTP
// response, the Iter adapter over synthesised events, and test doubles.
type Stream interface {
	// Next advances to the next event, returning false at end of stream
	// or on failure.
	Next() bool
	// Current returns the event produced by the last successful Next.
	Current() *Event
	// Err returns the terminal error, nil after a clean end.
	Err() error
	// Close releases the underlying resources.
	Close() error
}

var (
	_ Stream = (*Decoder)(nil)
	_ Stream = (*IterStream)(nil)
)

// Iter adapts a push sequence of events into the pull Stream shape. A
// yielded non-nil error ends the stream and is surfaced through Err.
// Direct model backends use this to speak the same event protocol as the
// grammar server without a wire format in between.
func Iter(seq iter.Seq2[*Event, error]) *IterStream {
	next, stop := iter.Pull2(seq)
	return &IterStream{next: next, stop: stop}
}

// IterStream is the Stream returned by Iter.
type IterStream struct {
	next func() (*Event, error, bool)
	stop func()
	cur  *Event
	err  error
	done bool
}

func (s *IterStream) Next() bool {
	if s.done {
		return false
	}
	for {
		ev, err, ok := s.next()
		if !ok {
			s.done = true
			return false
		}
		if err != nil {
			s.err = err
			s.done = true
			s.stop()
			return false
		}
		if ev == nil {
			continue
		}
		s.cur = ev
		return true
	}
}

func (s *IterStream) Current() *Event {
	return s.cur
}

func (s *IterStream) Err() error {
	return s.err
}

// Close stops the producer. Safe to call more than once.
func (s *IterStream) Close() error {
	s.done = true
	s.stop()
	return nil
}
