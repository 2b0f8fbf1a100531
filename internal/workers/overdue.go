package workers

import (
	"context"
	"log"
	"time"

	"campus-library/internal/models"
	"campus-library/internal/services"
)

// OverdueReconciler periodically writes the derived overdue status back to
// the loans table so reports that read the column stay current.
type OverdueReconciler struct {
	Library  services.LibraryService
	Interval time.Duration
}

func NewOverdueReconciler(lib services.LibraryService, interval time.Duration) *OverdueReconciler {
	return &OverdueReconciler{Library: lib, Interval: interval}
}

// Run checks once immediately and then every Interval until ctx is done.
func (r *OverdueReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}

// Check runs a single reconciliation pass and reports how many loans changed.
func (r *OverdueReconciler) Check(ctx context.Context) int64 {
	n, err := r.Library.ReconcileOverdue(ctx, models.SystemActor)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[ERROR] OverdueReconciler: %v", err)
		}
		return 0
	}
	if n > 0 {
		log.Printf("[INFO] OverdueReconciler: marked %d loan(s) overdue", n)
	}
	return n
}
