package compare

import (
	"context"
	"iter"
)

// updateBuffer bounds how far a run can get ahead of a ranging consumer
// before publishing blocks on it.
const updateBuffer = 256

// Updates runs one comparison and yields a Snapshot per state change, in
// dispatch order, ending after the terminal snapshot and any trailing
// diagnostic. A failure to start yields a single error pair; cancelling
// ctx cancels the run and yields ctx's error last. Breaking out of the
// range cancels the run. Updates takes the observer seat, so combine it
// with WithObserver on the same session rather than passing both.
func Updates(ctx context.Context, backend Backend, req StartRequest, opts ...Option) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		updates := make(chan Snapshot, updateBuffer)
		stopped := make(chan struct{})
		opts = append(opts, WithObserver(func(snap Snapshot) {
			select {
			case updates <- snap:
			case <-stopped:
			}
		}))
		sess := NewSession(backend, opts...)
		if err := sess.Start(ctx, req); err != nil {
			yield(Snapshot{}, err)
			return
		}
		defer close(stopped)

		runDone := sess.Done()
		for {
			select {
			case snap := <-updates:
				if !yield(snap, nil) {
					sess.Cancel()
					return
				}
			case <-runDone:
				// Everything is published before the run unwinds; drain
				// what is still buffered.
				for {
					select {
					case snap := <-updates:
						if !yield(snap, nil) {
							return
						}
					default:
						return
					}
				}
			case <-ctx.Done():
				sess.Cancel()
				yield(sess.Snapshot(), ctx.Err())
				return
			}
		}
	}
}

// Collect runs one comparison to completion and returns the terminal
// snapshot. A run that ends Errored returns the failure alongside the
// snapshot it stopped at; a cancelled run returns its Stopped snapshot
// with no error.
func Collect(ctx context.Context, backend Backend, req StartRequest, opts ...Option) (Snapshot, error) {
	sess := NewSession(backend, opts...)
	if err := sess.Start(ctx, req); err != nil {
		return Snapshot{}, err
	}
	snap, err := sess.Wait(ctx)
	if err != nil {
		sess.Cancel()
		return snap, err
	}
	if ferr := sess.Err(); ferr != nil {
		return snap, ferr
	}
	return snap, nil
}
