package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/gramflow/client"
	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/stream"
)

func TestUpdatesDeliversUntilTerminal(t *testing.T) {
	backend := &fakeBackend{
		unconstrained: func(ctx context.Context) (EventStream, error) {
			return script(tokenEv("a"), tokenEv("b"), doneEvent(stream.ReasonMaxTokens)), nil
		},
		constrained: func(ctx context.Context) (EventStream, error) {
			return script(tokenEv("c"), doneCompleteEv(stream.ReasonComplete, true)), nil
		},
	}

	var snaps []Snapshot
	for snap, err := range Updates(context.Background(), backend, startReq()) {
		if err != nil {
			t.Fatalf("unexpected error mid-stream: %v", err)
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots delivered")
	}
	last := snaps[len(snaps)-1]
	if !last.Terminal() {
		t.Fatalf("last snapshot phase = %s, want terminal", last.Phase)
	}
	if last.Unconstrained != "ab" || last.Constrained != "c" {
		t.Errorf("final text = %q/%q", last.Unconstrained, last.Constrained)
	}
	if snaps[0].Phase != PhaseRunningUnconstrained {
		t.Errorf("first snapshot phase = %s, want the start transition", snaps[0].Phase)
	}
}

func TestUpdatesStartFailure(t *testing.T) {
	backend := &fakeBackend{
		validation: &client.GrammarValidation{Valid: false, Errors: []string{"bad"}},
	}
	var got error
	n := 0
	for _, err := range Updates(context.Background(), backend, startReq()) {
		n++
		got = err
	}
	if n != 1 {
		t.Fatalf("yields = %d, want a single error pair", n)
	}
	if !errors.Is(got, gferrors.ErrInvalidGrammar) {
		t.Fatalf("err = %v, want ErrInvalidGrammar", got)
	}
}

// stuckStream ignores its context entirely, the shape of a server that
// has stopped talking on a connection that will not die.
type stuckStream struct {
	release chan struct{}
}

func (s stuckStream) Next() bool {
	<-s.release
	return false
}

func (s stuckStream) Current() *stream.Event { return nil }
func (s stuckStream) Err() error             { return nil }
func (s stuckStream) Close() error           { return nil }

func TestUpdatesContextCancelEndsIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	defer close(release)
	backend := &fakeBackend{
		unconstrained: func(ctx context.Context) (EventStream, error) {
			return stuckStream{release: release}, nil
		},
	}

	var lastErr error
	clean := 0
	for snap, err := range Updates(ctx, backend, startReq()) {
		if err != nil {
			lastErr = err
			continue
		}
		clean++
		if snap.Phase == PhaseRunningUnconstrained {
			cancel()
		}
	}
	if clean == 0 {
		t.Fatal("no snapshots before cancellation")
	}
	if !errors.Is(lastErr, context.Canceled) {
		t.Fatalf("final err = %v, want context.Canceled", lastErr)
	}
}

func TestCollectReturnsTerminalSnapshot(t *testing.T) {
	backend := &fakeBackend{}
	snap, err := Collect(context.Background(), backend, startReq())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.Phase != PhaseDone {
		t.Fatalf("phase = %s, want done", snap.Phase)
	}
	if snap.Constrained == "" {
		t.Error("constrained text missing")
	}
}

func TestCollectSurfacesRunFailure(t *testing.T) {
	backend := &fakeBackend{
		unconstrained: func(ctx context.Context) (EventStream, error) {
			return script(errorEv("model exploded")), nil
		},
	}
	snap, err := Collect(context.Background(), backend, startReq())
	if !errors.Is(err, gferrors.ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
	if snap.Phase != PhaseErrored {
		t.Fatalf("phase = %s", snap.Phase)
	}
}

func TestCollectRefusesInvalidGrammar(t *testing.T) {
	backend := &fakeBackend{
		validation: &client.GrammarValidation{Valid: false},
	}
	if _, err := Collect(context.Background(), backend, startReq()); !errors.Is(err, gferrors.ErrInvalidGrammar) {
		t.Fatalf("err = %v, want ErrInvalidGrammar", err)
	}
}
