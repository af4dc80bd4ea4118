package compare

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/pkg/logging"
	"github.com/sweetpotato0/gramflow/store"
	"github.com/sweetpotato0/gramflow/stream"
	"github.com/sweetpotato0/gramflow/tokenizer"
)

// Option configures a Session.
type Option func(*Session)

// WithStore persists a record of every finished run. Persistence failures
// are logged, never surfaced to the run.
func WithStore(st store.Store) Option {
	return func(s *Session) {
		s.st = st
	}
}

// WithSource replaces the unconstrained pass's stream with one produced
// elsewhere, typically a hosted-model adapter from contrib/backend. The
// constrained pass always runs on the grammar server.
func WithSource(src Source) Option {
	return func(s *Session) {
		s.source = src
	}
}

// WithObserver registers the callback that receives one Snapshot per state
// change, in dispatch order. The callback runs on the goroutine applying
// the change and should hand off quickly.
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTokenizer enables token-count estimates for finished runs in the
// debug log, useful when tuning budgets.
func WithTokenizer(tok tokenizer.Tokenizer) Option {
	return func(s *Session) {
		s.tok = tok
	}
}

// Session runs one comparison at a time: an unconstrained pass and a
// grammar-constrained pass over the same prompt, with a diagnostic of the
// free output in between. All methods are safe for concurrent use; state
// transitions happen under one mutex, so a cancellation always beats a
// done event racing in behind it.
type Session struct {
	backend  Backend
	source   Source
	st       store.Store
	tok      tokenizer.Tokenizer
	logger   *slog.Logger
	observer func(Snapshot)

	mu            sync.Mutex
	id            string
	req           StartRequest
	phase         Phase
	status        string
	unconstrained string
	constrained   string
	stopReason    stream.StopReason
	isComplete    bool
	diag          *Diagnostic
	failure       error
	startedAt     time.Time
	finishedAt    time.Time
	starting      bool
	gen           uint64
	cancel        context.CancelFunc
	runDone       chan struct{}
}

// NewSession creates an idle session against backend.
func NewSession(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend: backend,
		phase:   PhaseIdle,
		logger:  logging.WithComponent("compare"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a run. It is only legal from Idle: a session that is
// running, or finished but not cleared, returns ErrNotIdle. The grammar is
// validated server-side first and an invalid one refuses the run with
// ErrInvalidGrammar before any generation starts. The run inherits ctx, so
// cancelling ctx stops it the same way Cancel does.
func (s *Session) Start(ctx context.Context, req StartRequest) error {
	req = req.withDefaults()

	s.mu.Lock()
	if s.phase != PhaseIdle || s.starting {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: phase %s", gferrors.ErrNotIdle, phase)
	}
	s.starting = true
	s.mu.Unlock()

	v, err := s.backend.ValidateGrammar(ctx, req.Grammar)
	if err != nil {
		s.abortStart()
		return fmt.Errorf("validate grammar: %w", err)
	}
	if !v.Valid {
		s.abortStart()
		if len(v.Errors) > 0 {
			return fmt.Errorf("%w: %s", gferrors.ErrInvalidGrammar, strings.Join(v.Errors, "; "))
		}
		return gferrors.ErrInvalidGrammar
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.starting = false
	s.gen++
	gen := s.gen
	s.id = uuid.NewString()
	s.req = req
	s.phase = PhaseRunningUnconstrained
	s.status = ""
	s.unconstrained = ""
	s.constrained = ""
	s.stopReason = ""
	s.isComplete = false
	s.diag = nil
	s.failure = nil
	s.startedAt = time.Now().UTC()
	s.finishedAt = time.Time{}
	s.cancel = cancel
	s.runDone = make(chan struct{})
	id := s.id
	done := s.runDone
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	go s.run(runCtx, gen, id, req, done)
	return nil
}

func (s *Session) abortStart() {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

// Cancel aborts the run in flight. The session becomes Stopped with
// reason cancelled, the shared token aborts whichever stream is open, and
// any done event still in the pipe is ignored: once cancelled, the
// constrained phase is never entered and the run never turns Done.
// Cancelling a session that is not running is a no-op, so the call is
// idempotent.
func (s *Session) Cancel() {
	s.mu.Lock()
	if !s.phase.Running() {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.phase = PhaseStopped
	s.status = ""
	s.stopReason = stream.ReasonCancelled
	s.finishedAt = time.Now().UTC()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("run cancelled", "run_id", snap.ID)
	s.notify(snap)
}

// Clear resets the session to Idle from any state, cancelling in-flight
// work and discarding accumulated text, diagnostic and failure. A run
// still unwinding keeps draining in the background but can no longer
// touch the session.
func (s *Session) Clear() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.gen++
	s.id = ""
	s.req = StartRequest{}
	s.phase = PhaseIdle
	s.status = ""
	s.unconstrained = ""
	s.constrained = ""
	s.stopReason = ""
	s.isComplete = false
	s.diag = nil
	s.failure = nil
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.notify(snap)
}

// ID returns the run identifier allocated by the last Start, empty before
// the first run or after Clear.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the failure that moved the session to Errored, nil in every
// other phase. Cancellation is not a failure.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Snapshot returns a copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Wait blocks until the run in flight has fully unwound, including the
// diagnostic call and record persistence, then returns the snapshot at
// that moment. It returns immediately when nothing was ever started.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.runDone
	s.mu.Unlock()
	if done == nil {
		return s.Snapshot(), nil
	}
	select {
	case <-done:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Done returns a channel closed when the last started run has fully
// unwound, nil when nothing was ever started. Selecting on it alongside
// an observer channel is how relays know no further snapshots can come.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runDone
}

// busy reports whether the session holds or is about to hold a run.
func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.Running() || s.starting
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Phase:         s.phase,
		Status:        s.status,
		Unconstrained: s.unconstrained,
		Constrained:   s.constrained,
		StopReason:    s.stopReason,
		IsComplete:    s.isComplete,
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
	}
	if s.diag != nil {
		d := *s.diag
		snap.Diagnostic = &d
	}
	if s.failure != nil {
		snap.Err = s.failure.Error()
	}
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.observer != nil {
		s.observer(snap)
	}
}
