package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"campus-library/internal/models"
)

// DashboardStats is the admin overview of the collection.
type DashboardStats struct {
	TotalBooks      int64           `json:"total_books"`
	TotalUsers      int64           `json:"total_users"`
	BooksIssued     int64           `json:"books_issued"`
	OverdueBooks    int             `json:"overdue_books"`
	AvailableCopies int64           `json:"available_copies"`
	PendingFines    decimal.Decimal `json:"pending_fines"`
	AsOf            time.Time       `json:"as_of"`
}

func (s *libraryService) DashboardStats(ctx context.Context, actor models.Actor) (*DashboardStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	stats := &DashboardStats{PendingFines: decimal.Zero, AsOf: s.now()}

	var err error
	if stats.TotalBooks, err = s.repos.Books.Count(db); err != nil {
		return nil, storeErr("DashboardStats", err)
	}
	if stats.TotalUsers, err = s.repos.Users.Count(db); err != nil {
		return nil, storeErr("DashboardStats", err)
	}
	if stats.BooksIssued, err = s.repos.Loans.CountActive(db); err != nil {
		return nil, storeErr("DashboardStats", err)
	}
	if stats.AvailableCopies, err = s.repos.Books.SumAvailable(db); err != nil {
		return nil, storeErr("DashboardStats", err)
	}

	overdue, err := s.repos.Loans.ListOverdue(db, stats.AsOf)
	if err != nil {
		return nil, storeErr("DashboardStats", err)
	}
	stats.OverdueBooks = len(overdue)

	// Summed here rather than in SQL so the numeric type stays exact on every dialect.
	fines, err := s.repos.Fines.List(db, models.FineStatusPending)
	if err != nil {
		return nil, storeErr("DashboardStats", err)
	}
	for _, f := range fines {
		stats.PendingFines = stats.PendingFines.Add(f.Amount)
	}
	return stats, nil
}
