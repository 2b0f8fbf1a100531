package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"campus-library/internal/events"
	"campus-library/internal/models"
	"campus-library/internal/rules"
)

// LoanView is a loan as a reader sees it: status derived at read time, the
// fine accrued so far and whether it may be renewed right now.
type LoanView struct {
	models.Loan
	BookTitle   string          `json:"book_title,omitempty"`
	DaysOverdue int             `json:"days_overdue"`
	AccruedFine decimal.Decimal `json:"accrued_fine"`
	CanRenew    bool            `json:"can_renew"`
}

func (s *libraryService) view(loan models.Loan, now time.Time) LoanView {
	v := LoanView{
		Loan:        loan,
		BookTitle:   loan.Book.Title,
		AccruedFine: rules.AccruedFine(loan, now, s.policy.FineDailyRate),
		CanRenew:    rules.CanRenew(loan, now),
	}
	v.Status = rules.EffectiveStatus(loan, now)
	if v.Status == models.LoanStatusOverdue {
		v.DaysOverdue = rules.OverdueDays(loan.DueDate, now)
	}
	return v
}

// ─── Issue ────────────────────────────────────────────────────────────────────

// IssueLoan lends one copy of bookID to borrowerID.
//
// In one transaction: the borrower is checked (exists, active, under the
// active loan cap), the book row is locked, the copy is claimed with a
// conditional decrement and the loan row is written. A pending reservation the
// borrower holds for the book is fulfilled by the same transaction.
func (s *libraryService) IssueLoan(ctx context.Context, actor models.Actor, bookID, borrowerID uuid.UUID) (*models.Loan, error) {
	if err := requireSelfOrAdmin(actor, borrowerID); err != nil {
		return nil, err
	}

	var loan *models.Loan
	var book *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		loan, book, err = s.issueTx(tx, bookID, borrowerID, s.now())
		return err
	})
	if err != nil {
		if errors.Is(err, rules.ErrOutOfStock) {
			log.Printf("[WARN] IssueLoan: book %s has no available copy for user %s", bookID, borrowerID)
		}
		return nil, txErr("IssueLoan", err)
	}

	log.Printf("[INFO] IssueLoan: loan %s issued to user %s for book %s, due %s", loan.ID, borrowerID, bookID, loan.DueDate.Format("2006-01-02"))
	s.publisher.Publish(events.Event{
		Type:            events.TypeLoanIssued,
		BookID:          bookID.String(),
		AvailableCopies: book.AvailableCopies,
		At:              loan.IssueDate,
	})
	return loan, nil
}

func (s *libraryService) issueTx(tx *gorm.DB, bookID, borrowerID uuid.UUID, now time.Time) (*models.Loan, *models.Book, error) {
	borrower, err := s.repos.Users.GetByID(tx, borrowerID)
	if err != nil {
		return nil, nil, lookupErr("IssueLoan", err, ErrUserNotFound)
	}
	if !borrower.IsActive {
		return nil, nil, ErrUserInactive
	}
	if s.policy.MaxActiveLoans > 0 {
		active, err := s.repos.Loans.CountActiveByUser(tx, borrowerID)
		if err != nil {
			return nil, nil, storeErr("IssueLoan", err)
		}
		if active >= int64(s.policy.MaxActiveLoans) {
			return nil, nil, ErrLoanLimitReached
		}
	}

	current, err := s.repos.Books.GetByIDForUpdate(tx, bookID)
	if err != nil {
		return nil, nil, lookupErr("IssueLoan", err, ErrBookNotFound)
	}
	updated, loan, err := rules.IssueLoan(*current, borrowerID, now, s.policy.IssuePolicy())
	if err != nil {
		return nil, nil, err
	}

	claimed, err := s.repos.Books.ClaimCopy(tx, bookID)
	if err != nil {
		return nil, nil, storeErr("IssueLoan", err)
	}
	if !claimed {
		// Another transaction took the last copy after the read.
		return nil, nil, rules.ErrOutOfStock
	}
	if err := s.repos.Loans.Create(tx, &loan); err != nil {
		return nil, nil, storeErr("IssueLoan", err)
	}

	res, err := s.repos.Reservations.GetPendingByBookAndUser(tx, bookID, borrowerID)
	switch {
	case err == nil:
		if _, err := s.repos.Reservations.UpdateStatus(tx, res.ID, models.ReservationStatusPending, models.ReservationStatusFulfilled); err != nil {
			return nil, nil, storeErr("IssueLoan", err)
		}
		log.Printf("[INFO] IssueLoan: reservation %s fulfilled by loan %s", res.ID, loan.ID)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil, storeErr("IssueLoan", err)
	}
	return &loan, &updated, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnLoan closes a loan at returnDate (now when nil), puts the copy back on
// the shelf and records a pending fine when the loan came back late.
func (s *libraryService) ReturnLoan(ctx context.Context, actor models.Actor, loanID uuid.UUID, returnDate *time.Time) (*models.Loan, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := s.now()
	at := now
	if returnDate != nil {
		at = returnDate.UTC()
		if at.After(now) {
			return nil, rules.ErrReturnInFuture
		}
	}

	var returned models.Loan
	var available int
	var pending int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.repos.Loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			return lookupErr("ReturnLoan", err, ErrLoanNotFound)
		}
		if returned, err = rules.ReturnLoan(*loan, at, s.policy.FineDailyRate); err != nil {
			return err
		}

		ok, err := s.repos.Loans.MarkReturned(tx, loanID, at, returned.FineAmount)
		if err != nil {
			return storeErr("ReturnLoan", err)
		}
		if !ok {
			return rules.ErrAlreadyReturned
		}

		book, err := s.repos.Books.GetByIDForUpdate(tx, loan.BookID)
		if err != nil {
			return storeErr("ReturnLoan", err)
		}
		shelved, err := rules.ReleaseCopy(*book)
		if err != nil {
			log.Printf("[ERROR] ReturnLoan: book %s already has %d/%d copies on the shelf", book.ID, book.AvailableCopies, book.TotalCopies)
			return err
		}
		if ok, err = s.repos.Books.ReleaseCopy(tx, book.ID); err != nil {
			return storeErr("ReturnLoan", err)
		}
		if !ok {
			return rules.ErrCopyAccounting
		}
		available = shelved.AvailableCopies

		if returned.FineAmount.IsPositive() {
			days := rules.OverdueDays(loan.DueDate, at)
			fine := &models.Fine{
				LoanID: loanID,
				UserID: loan.UserID,
				Amount: returned.FineAmount,
				Reason: fmt.Sprintf("returned %d day(s) late", days),
				Status: models.FineStatusPending,
			}
			if err := s.repos.Fines.Create(tx, fine); err != nil {
				return storeErr("ReturnLoan", err)
			}
		}

		if pending, err = s.repos.Reservations.CountPendingByBook(tx, book.ID); err != nil {
			return storeErr("ReturnLoan", err)
		}
		return nil
	})
	if err != nil {
		return nil, txErr("ReturnLoan", err)
	}

	log.Printf("[INFO] ReturnLoan: loan %s returned, fine=%s, %d pending reservation(s)", loanID, returned.FineAmount.StringFixed(2), pending)
	s.publisher.Publish(events.Event{
		Type:   events.TypeLoanReturned,
		BookID: returned.BookID.String(),
		At:     at,
	})
	s.publisher.Publish(events.Event{
		Type:                events.TypeCopyAvailable,
		BookID:              returned.BookID.String(),
		AvailableCopies:     available,
		PendingReservations: pending,
		At:                  at,
	})
	return &returned, nil
}

// ─── Renewal ──────────────────────────────────────────────────────────────────

func (s *libraryService) loadOwnLoan(db *gorm.DB, actor models.Actor, loanID uuid.UUID, op string) (*models.Loan, error) {
	loan, err := s.repos.Loans.GetByID(db, loanID)
	if err != nil {
		return nil, lookupErr(op, err, ErrLoanNotFound)
	}
	if err := requireSelfOrAdmin(actor, loan.UserID); err != nil {
		return nil, err
	}
	return loan, nil
}

// CanRenewBook reports whether the loan may be renewed now. It never changes anything.
func (s *libraryService) CanRenewBook(ctx context.Context, actor models.Actor, loanID uuid.UUID) (bool, error) {
	loan, err := s.loadOwnLoan(s.db.WithContext(ctx), actor, loanID, "CanRenewBook")
	if err != nil {
		return false, err
	}
	return rules.CanRenew(*loan, s.now()), nil
}

// Renew extends a loan by days (the configured default when days is zero).
// Rule rejections come back as *rules.NotEligibleError or rules.ErrAlreadyReturned.
func (s *libraryService) Renew(ctx context.Context, actor models.Actor, loanID uuid.UUID, days int) (*models.Loan, error) {
	if days == 0 {
		days = s.policy.RenewalDays
	}
	now := s.now()

	var renewed models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.repos.Loans.GetByIDForUpdate(tx, loanID)
		if err != nil {
			return lookupErr("Renew", err, ErrLoanNotFound)
		}
		if err := requireSelfOrAdmin(actor, loan.UserID); err != nil {
			return err
		}
		if renewed, err = rules.Renew(*loan, now, days, s.policy.RenewalBasis); err != nil {
			return err
		}

		ok, err := s.repos.Loans.ApplyRenewal(tx, loanID, loan.RenewalCount, renewed.DueDate)
		if err != nil {
			return storeErr("Renew", err)
		}
		if ok {
			return nil
		}

		// Lost the race: report what the loan looks like now.
		fresh, err := s.repos.Loans.GetByID(tx, loanID)
		if err != nil {
			return storeErr("Renew", err)
		}
		if _, err := rules.Renew(*fresh, now, days, s.policy.RenewalBasis); err != nil {
			return err
		}
		return rules.NotEligible(rules.ReasonConcurrent)
	})
	if err != nil {
		if reason := rules.Reason(err); reason != "" {
			log.Printf("[WARN] Renew: loan %s not renewed: %s", loanID, reason)
		}
		return nil, txErr("Renew", err)
	}

	log.Printf("[INFO] Renew: loan %s renewed (%d/%d), due %s", loanID, renewed.RenewalCount, renewed.MaxRenewals, renewed.DueDate.Format("2006-01-02"))
	s.publisher.Publish(events.Event{
		Type:   events.TypeLoanRenewed,
		BookID: renewed.BookID.String(),
		At:     now,
	})
	return &renewed, nil
}

// RenewBook is Renew reporting rule rejections as an unsuccessful outcome
// instead of an error. Lookup, permission and store failures are still errors.
func (s *libraryService) RenewBook(ctx context.Context, actor models.Actor, loanID uuid.UUID, days int) (rules.RenewalOutcome, error) {
	loan, err := s.Renew(ctx, actor, loanID, days)
	if err != nil {
		if out, ok := rules.Rejected(err); ok {
			return out, nil
		}
		return rules.RenewalOutcome{}, err
	}
	return rules.Succeeded(*loan), nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func (s *libraryService) GetLoan(ctx context.Context, actor models.Actor, loanID uuid.UUID) (*LoanView, error) {
	loan, err := s.loadOwnLoan(s.db.WithContext(ctx).Preload("Book"), actor, loanID, "GetLoan")
	if err != nil {
		return nil, err
	}
	v := s.view(*loan, s.now())
	return &v, nil
}

// ListBorrowerLoans returns every loan of userID, newest first.
func (s *libraryService) ListBorrowerLoans(ctx context.Context, actor models.Actor, userID uuid.UUID) ([]LoanView, error) {
	if err := requireSelfOrAdmin(actor, userID); err != nil {
		return nil, err
	}
	loans, err := s.repos.Loans.ListByUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, storeErr("ListBorrowerLoans", err)
	}
	now := s.now()
	views := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, s.view(l, now))
	}
	return views, nil
}

// ListOverdueLoans returns every unreturned loan past due now, oldest due first.
func (s *libraryService) ListOverdueLoans(ctx context.Context, actor models.Actor) ([]LoanView, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	now := s.now()
	loans, err := s.repos.Loans.ListOverdue(s.db.WithContext(ctx), now)
	if err != nil {
		return nil, storeErr("ListOverdueLoans", err)
	}
	views := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		views = append(views, s.view(l, now))
	}
	return views, nil
}

// OutstandingFines totals what userID owes now, or the whole library when an
// admin passes uuid.Nil.
func (s *libraryService) OutstandingFines(ctx context.Context, actor models.Actor, userID uuid.UUID) (*FineSummary, error) {
	if userID == uuid.Nil {
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
	} else if err := requireSelfOrAdmin(actor, userID); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	now := s.now()
	summary := &FineSummary{Assessed: decimal.Zero, Accruing: decimal.Zero, AsOf: now}
	if userID != uuid.Nil {
		id := userID
		summary.UserID = &id
	}

	var fines []models.Fine
	var err error
	if userID == uuid.Nil {
		fines, err = s.repos.Fines.List(db, models.FineStatusPending)
	} else {
		fines, err = s.repos.Fines.ListByUser(db, userID)
	}
	if err != nil {
		return nil, storeErr("OutstandingFines", err)
	}
	for _, f := range fines {
		if f.Status == models.FineStatusPending {
			summary.Assessed = summary.Assessed.Add(f.Amount)
		}
	}

	overdue, err := s.repos.Loans.ListOverdue(db, now)
	if err != nil {
		return nil, storeErr("OutstandingFines", err)
	}
	for _, l := range overdue {
		if userID != uuid.Nil && l.UserID != userID {
			continue
		}
		summary.OverdueLoans++
		summary.Accruing = summary.Accruing.Add(rules.AccruedFine(l, now, s.policy.FineDailyRate))
	}
	summary.Total = summary.Assessed.Add(summary.Accruing)
	return summary, nil
}

// ReconcileOverdue stores the overdue status on every issued loan past due now
// and reports how many rows changed. Reads never depend on it having run.
func (s *libraryService) ReconcileOverdue(ctx context.Context, actor models.Actor) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	n, err := s.repos.Loans.MarkOverdue(s.db.WithContext(ctx), s.now())
	if err != nil {
		return 0, storeErr("ReconcileOverdue", err)
	}
	log.Printf("[INFO] ReconcileOverdue: %d loan(s) marked overdue", n)
	return n, nil
}
