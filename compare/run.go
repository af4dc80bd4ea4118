package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sweetpotato0/gramflow/client"
	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/pkg/logging"
	"github.com/sweetpotato0/gramflow/pkg/telemetry"
	"github.com/sweetpotato0/gramflow/store"
	"github.com/sweetpotato0/gramflow/stream"
	"go.opentelemetry.io/otel/attribute"
)

// run drives one comparison: the unconstrained pass, the diagnostic, the
// constrained pass, then persistence. It is the only goroutine advancing
// its generation of the session; Cancel and Clear interleave through the
// mutex and turn every later dispatch into a no-op.
func (s *Session) run(ctx context.Context, gen uint64, id string, req StartRequest, done chan struct{}) {
	defer close(done)

	logger := logging.WithRun("compare", id)
	ctx, span := telemetry.Start(ctx, "compare.run",
		attribute.String("run.id", id),
		attribute.String("model", req.Model),
	)
	var runErr error
	defer func() { telemetry.End(span, runErr) }()

	var diagDone chan struct{}
	defer func() {
		if diagDone != nil {
			<-diagDone
		}
		rec, current := s.record(gen, req)
		if !current {
			logger.Debug("run superseded before it finished")
			return
		}
		s.persistRecord(ctx, rec, logger)
		logger.Info("run finished",
			"phase", rec.Phase,
			"stop_reason", rec.StopReason,
			"is_complete", rec.IsComplete,
			"duration_ms", rec.DurationMS,
		)
		if s.tok != nil {
			logger.Debug("output token estimate",
				"unconstrained", s.tok.CountTokens(rec.Unconstrained),
				"constrained", s.tok.CountTokens(rec.Constrained),
			)
		}
	}()

	uncReq := client.UnconstrainedRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		TopK:        req.TopK,
		Temperature: req.Temperature,
	}
	doneEv, err := s.runPhase(ctx, gen, PhaseRunningUnconstrained, func(ctx context.Context) (EventStream, error) {
		if s.source != nil {
			return s.source.Stream(ctx, uncReq)
		}
		return s.backend.GenerateUnconstrained(ctx, uncReq)
	})
	if err != nil {
		runErr = err
		s.fail(gen, err)
		return
	}
	if doneEv == nil {
		return
	}
	logger.Debug("unconstrained phase done", "reason", string(doneEv.Reason))

	// The dispatch of the unconstrained done already moved the session to
	// RunningConstrained; anything else here means it was cancelled or
	// cleared in the gap.
	uncText, current := s.unconstrainedText(gen)
	if !current {
		return
	}
	if uncText != "" {
		diagDone = make(chan struct{})
		go s.diagnose(ctx, gen, req.Grammar, uncText, diagDone)
	}

	conReq := client.ConstrainedRequest{
		Spec:           req.Grammar,
		Prompt:         req.Prompt,
		Initial:        req.Initial,
		Model:          req.Model,
		MaxTokens:      req.MaxTokens,
		GrammarTokens:  req.GrammarTokens,
		StopOnComplete: req.StopOnComplete,
		MaskWhitespace: req.MaskWhitespace,
	}
	doneEv, err = s.runPhase(ctx, gen, PhaseRunningConstrained, func(ctx context.Context) (EventStream, error) {
		return s.backend.GenerateConstrained(ctx, conReq)
	})
	if err != nil {
		runErr = err
		s.fail(gen, err)
		return
	}
	if doneEv != nil {
		logger.Debug("constrained phase done", "reason", string(doneEv.Reason))
	}
}

// runPhase opens one phase's stream and drains it. It returns the done
// event that ended the phase, (nil, nil) when the session went terminal
// underneath it, or the failure to open or read the stream.
func (s *Session) runPhase(ctx context.Context, gen uint64, phase Phase, open func(context.Context) (EventStream, error)) (*stream.Event, error) {
	ctx, span := telemetry.Start(ctx, "compare.phase",
		attribute.String("phase", phaseNoun(phase)),
	)
	var err error
	defer func() { telemetry.End(span, err) }()

	var es EventStream
	es, err = open(ctx)
	if err != nil {
		err = fmt.Errorf("open %s stream: %w", phaseNoun(phase), err)
		return nil, err
	}
	var doneEv *stream.Event
	doneEv, err = s.consume(gen, es, phase)
	return doneEv, err
}

// consume drains one phase's event stream, applying each event in arrival
// order.
func (s *Session) consume(gen uint64, es EventStream, phase Phase) (*stream.Event, error) {
	defer es.Close()
	for es.Next() {
		ev := es.Current()
		switch s.dispatch(gen, phase, ev) {
		case dispatchApplied, dispatchIgnored:
		case dispatchDone:
			return ev, nil
		case dispatchHalt:
			return nil, nil
		}
	}
	if err := es.Err(); err != nil {
		return nil, fmt.Errorf("%s stream: %w", phaseNoun(phase), err)
	}
	return nil, fmt.Errorf("%w: %s stream ended without a done event", gferrors.ErrTransport, phaseNoun(phase))
}

type dispatchResult int

const (
	dispatchApplied dispatchResult = iota
	dispatchIgnored
	dispatchDone
	dispatchHalt
)

// dispatch applies one event under the session lock. The generation and
// phase guards make events harmless once the run was cancelled, cleared
// or superseded, which is what gives cancellation precedence over a done
// event racing in behind it.
func (s *Session) dispatch(gen uint64, phase Phase, ev *stream.Event) dispatchResult {
	s.mu.Lock()
	if s.gen != gen || s.phase != phase {
		s.mu.Unlock()
		return dispatchHalt
	}

	var res dispatchResult
	switch ev.Type {
	case stream.EventStatus:
		s.status = ev.Message
		res = dispatchApplied
	case stream.EventToken:
		s.applyTokenLocked(phase, ev)
		res = dispatchApplied
	case stream.EventDone:
		s.applyDoneLocked(phase, ev)
		res = dispatchDone
	case stream.EventError:
		s.phase = PhaseErrored
		s.failure = fmt.Errorf("%w: %s", gferrors.ErrProtocol, ev.Message)
		s.status = ""
		s.finishedAt = time.Now().UTC()
		res = dispatchHalt
	default:
		// Unknown event types are skipped so newer servers keep working.
		s.mu.Unlock()
		return dispatchIgnored
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return res
}

func (s *Session) applyTokenLocked(phase Phase, ev *stream.Event) {
	switch phase {
	case PhaseRunningUnconstrained:
		if ev.FullText != nil {
			s.unconstrained = *ev.FullText
		} else {
			s.unconstrained += ev.Text
		}
	case PhaseRunningConstrained:
		if ev.FullText != nil {
			s.constrained = *ev.FullText
		} else {
			s.constrained += ev.Text
		}
	}
}

func (s *Session) applyDoneLocked(phase Phase, ev *stream.Event) {
	if ev.FullText != nil {
		// The terminal snapshot is authoritative over accumulated deltas.
		if phase == PhaseRunningUnconstrained {
			s.unconstrained = *ev.FullText
		} else {
			s.constrained = *ev.FullText
		}
	}
	if ev.Reason != "" {
		s.stopReason = ev.Reason
	}
	s.status = ""
	switch phase {
	case PhaseRunningUnconstrained:
		s.phase = PhaseRunningConstrained
	case PhaseRunningConstrained:
		s.phase = PhaseDone
		if ev.IsComplete != nil {
			s.isComplete = *ev.IsComplete
		}
		s.finishedAt = time.Now().UTC()
	}
}

// fail moves a still-running generation to its terminal failure state. A
// context cancellation is folded into Stopped, so tearing down the parent
// context behaves exactly like Cancel.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen || !s.phase.Running() {
		s.mu.Unlock()
		return
	}
	if errors.Is(err, context.Canceled) {
		s.phase = PhaseStopped
		s.stopReason = stream.ReasonCancelled
	} else {
		if !errors.Is(err, gferrors.ErrTransport) && !errors.Is(err, gferrors.ErrProtocol) {
			err = fmt.Errorf("%w: %v", gferrors.ErrTransport, err)
		}
		s.phase = PhaseErrored
		s.failure = err
	}
	s.status = ""
	s.finishedAt = time.Now().UTC()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// unconstrainedText returns the accumulated free output, and whether the
// run still owns the session in RunningConstrained.
func (s *Session) unconstrainedText(gen uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unconstrained, s.gen == gen && s.phase == PhaseRunningConstrained
}

// diagnose feeds the unconstrained output back through the grammar. It
// runs beside the constrained phase on the same cancellation token, and a
// failed call degrades to a diagnostic that found nothing rather than an
// error on the session.
func (s *Session) diagnose(ctx context.Context, gen uint64, spec, text string, done chan struct{}) {
	defer close(done)
	ctx, span := telemetry.Start(ctx, "compare.diagnostic")
	res, err := s.backend.DebugGrammar(ctx, spec, text)
	telemetry.End(span, err)

	var d Diagnostic
	switch {
	case errors.Is(err, context.Canceled):
		// The run was cancelled under the call; a degraded entry would
		// only repeat that, so cancelled runs carry no diagnostic.
		return
	case err != nil:
		d = Diagnostic{Error: err.Error()}
	default:
		d = Diagnostic{
			Valid:              res.Valid,
			IsComplete:         res.IsComplete,
			WellTypedTreeCount: res.WellTypedTreeCount,
			TypeError:          res.TypeError,
		}
		if !res.Valid && len(res.Errors) > 0 {
			d.Error = strings.Join(res.Errors, "; ")
		}
	}

	s.mu.Lock()
	if s.gen != gen || s.diag != nil {
		s.mu.Unlock()
		return
	}
	s.diag = &d
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// record materialises the run's terminal state for the store; current is
// false when the run was cleared or superseded before finishing.
func (s *Session) record(gen uint64, req StartRequest) (*store.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !s.phase.Terminal() {
		return nil, false
	}
	rec := &store.Record{
		ID:            s.id,
		GrammarName:   req.GrammarName,
		GrammarSpec:   req.Grammar,
		Prompt:        req.Prompt,
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		GrammarTokens: req.GrammarTokens,
		Phase:         string(s.phase),
		Unconstrained: s.unconstrained,
		Constrained:   s.constrained,
		StopReason:    string(s.stopReason),
		IsComplete:    s.isComplete,
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
		DurationMS:    s.finishedAt.Sub(s.startedAt).Milliseconds(),
	}
	if s.failure != nil {
		rec.Error = s.failure.Error()
	}
	if s.diag != nil {
		rec.Diagnostic = &store.Diagnostic{
			Valid:              s.diag.Valid,
			IsComplete:         s.diag.IsComplete,
			WellTypedTreeCount: s.diag.WellTypedTreeCount,
			TypeError:          s.diag.TypeError,
			Error:              s.diag.Error,
		}
	}
	return rec, true
}

// persistRecord writes the finished run to the store on a fresh deadline,
// detached from the run's own cancellation.
func (s *Session) persistRecord(ctx context.Context, rec *store.Record, logger *slog.Logger) {
	if s.st == nil || rec == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.st.Save(pctx, rec); err != nil {
		logger.Warn("persist run record", "error", err)
	}
}

func phaseNoun(p Phase) string {
	switch p {
	case PhaseRunningUnconstrained:
		return "unconstrained"
	case PhaseRunningConstrained:
		return "constrained"
	default:
		return string(p)
	}
}
