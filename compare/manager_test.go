package compare

import (
	"context"
	"errors"
	"testing"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/store"
	"github.com/sweetpotato0/gramflow/stream"
)

func TestManagerOneActiveSessionPerKey(t *testing.T) {
	unc := newGatedStream()
	backend := &fakeBackend{
		unconstrained: func(ctx context.Context) (EventStream, error) { return unc, nil },
	}
	mgr := NewManager(backend, nil)

	sess, err := mgr.Open("tab-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Start(context.Background(), startReq()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := mgr.Open("tab-1"); !errors.Is(err, gferrors.ErrSessionActive) {
		t.Fatalf("Open while running err = %v, want ErrSessionActive", err)
	}
	if _, err := mgr.Open("tab-2"); err != nil {
		t.Fatalf("a second key must not be blocked: %v", err)
	}

	sess.Cancel()
	unc.Feed(doneEvent(stream.ReasonMaxTokens))
	waitDone(t, sess)

	// A finished session is replaced, not refused.
	fresh, err := mgr.Open("tab-1")
	if err != nil {
		t.Fatalf("Open after finish: %v", err)
	}
	if fresh == sess {
		t.Error("Open returned the finished session instead of a fresh one")
	}
}

func TestManagerGetCancelClear(t *testing.T) {
	unc := newGatedStream()
	backend := &fakeBackend{
		unconstrained: func(ctx context.Context) (EventStream, error) { return unc, nil },
	}
	mgr := NewManager(backend, nil)

	if _, err := mgr.Get("nope"); !errors.Is(err, gferrors.ErrSessionNotFound) {
		t.Fatalf("Get unknown err = %v, want ErrSessionNotFound", err)
	}
	if err := mgr.Cancel("nope"); !errors.Is(err, gferrors.ErrSessionNotFound) {
		t.Fatalf("Cancel unknown err = %v", err)
	}

	sess, err := mgr.Open("tab")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := mgr.Get("tab")
	if err != nil || got != sess {
		t.Fatalf("Get = %v, %v; want the open session", got, err)
	}

	if err := sess.Start(context.Background(), startReq()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Cancel("tab"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	unc.Feed(doneEvent(stream.ReasonMaxTokens))
	snap := waitDone(t, sess)
	if snap.Phase != PhaseStopped {
		t.Fatalf("phase after manager Cancel = %s", snap.Phase)
	}

	if err := mgr.Clear("tab"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := sess.Phase(); got != PhaseIdle {
		t.Errorf("phase after manager Clear = %s", got)
	}
}

func TestManagerPruneKeepsRunning(t *testing.T) {
	unc := newGatedStream()
	backend := &fakeBackend{
		unconstrained: func(ctx context.Context) (EventStream, error) { return unc, nil },
	}
	mgr := NewManager(backend, nil)

	running, err := mgr.Open("busy")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := running.Start(context.Background(), startReq()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := mgr.Open("idle"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := mgr.Prune(); got != 1 {
		t.Fatalf("Prune = %d, want only the idle session dropped", got)
	}
	if got := mgr.Len(); got != 1 {
		t.Fatalf("Len = %d after prune", got)
	}

	running.Cancel()
	unc.Feed(doneEvent(stream.ReasonMaxTokens))
	waitDone(t, running)
	if got := mgr.Prune(); got != 1 {
		t.Fatalf("Prune after finish = %d", got)
	}
}

func TestManagerRunHistory(t *testing.T) {
	st := store.NewInMemory()
	backend := &fakeBackend{}
	mgr := NewManager(backend, st)

	sess, err := mgr.Open("tab")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Start(context.Background(), startReq()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap := waitDone(t, sess)

	recs, err := mgr.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != snap.ID {
		t.Fatalf("Runs = %+v, want the finished run", recs)
	}

	rec, err := mgr.Run(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Constrained != snap.Constrained {
		t.Errorf("loaded record text = %q, want %q", rec.Constrained, snap.Constrained)
	}

	if err := mgr.DeleteRun(context.Background(), snap.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := mgr.Run(context.Background(), snap.ID); !errors.Is(err, gferrors.ErrRecordNotFound) {
		t.Fatalf("Run after delete err = %v, want ErrRecordNotFound", err)
	}
}

func TestManagerWithoutStore(t *testing.T) {
	mgr := NewManager(&fakeBackend{}, nil)
	if recs, err := mgr.Runs(context.Background(), 0); err != nil || recs != nil {
		t.Errorf("Runs = %v, %v; want empty and no error", recs, err)
	}
	if _, err := mgr.Run(context.Background(), "x"); !errors.Is(err, gferrors.ErrRecordNotFound) {
		t.Errorf("Run err = %v, want ErrRecordNotFound", err)
	}
	if err := mgr.DeleteRun(context.Background(), "x"); !errors.Is(err, gferrors.ErrRecordNotFound) {
		t.Errorf("DeleteRun err = %v, want ErrRecordNotFound", err)
	}
}
