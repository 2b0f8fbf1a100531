package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"campus-library/internal/models"
	"campus-library/internal/services"
)

type fakeLibrary struct {
	services.LibraryService
	calls atomic.Int32
	err   error
}

func (f *fakeLibrary) ReconcileOverdue(_ context.Context, actor models.Actor) (int64, error) {
	f.calls.Add(1)
	if !actor.IsAdmin() {
		return 0, services.ErrForbidden
	}
	return 3, f.err
}

func TestCheck(t *testing.T) {
	lib := &fakeLibrary{}
	r := NewOverdueReconciler(lib, time.Hour)
	if n := r.Check(context.Background()); n != 3 {
		t.Fatalf("Check = %d, want 3", n)
	}

	lib.err = errors.New("store down")
	if n := r.Check(context.Background()); n != 0 {
		t.Fatalf("Check on failure = %d, want 0", n)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	lib := &fakeLibrary{}
	r := NewOverdueReconciler(lib, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for lib.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d passes ran", lib.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
