package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-library/internal/config"
	"campus-library/internal/events"
	"campus-library/internal/repositories"
	"campus-library/internal/rules"
)

// rivalBooks takes the copy inside the caller's transaction right before the
// caller's own claim, as a concurrent borrower committing first would.
type rivalBooks struct {
	repositories.BookRepository
}

func (r rivalBooks) ClaimCopy(db *gorm.DB, id uuid.UUID) (bool, error) {
	if _, err := r.BookRepository.ClaimCopy(db, id); err != nil {
		return false, err
	}
	return r.BookRepository.ClaimCopy(db, id)
}

// rivalLoans applies a competing renewal with the same expected count right
// before the caller's.
type rivalLoans struct {
	repositories.LoanRepository
}

func (r rivalLoans) ApplyRenewal(db *gorm.DB, id uuid.UUID, expectedCount int, dueDate time.Time) (bool, error) {
	if _, err := r.LoanRepository.ApplyRenewal(db, id, expectedCount, dueDate); err != nil {
		return false, err
	}
	return r.LoanRepository.ApplyRenewal(db, id, expectedCount, dueDate)
}

func (e *testEnv) serviceWith(repos repositories.Set) LibraryService {
	return NewLibraryService(e.db, repos, Options{
		Policy:    config.Default().Circulation,
		Publisher: e.events,
		Clock:     e.clock.Now,
	})
}

func TestClaimCopyOnEmptyShelf(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 1)
	env.issue(t, book, env.student(t))

	ok, err := env.repos.Books.ClaimCopy(nil, book.ID)
	if err != nil || ok {
		t.Fatalf("ClaimCopy on empty shelf = %v, %v", ok, err)
	}
	got := env.reloadBook(t, book.ID)
	if got.AvailableCopies != 0 || got.BorrowCount != 1 {
		t.Fatalf("row changed by refused claim: available=%d borrows=%d", got.AvailableCopies, got.BorrowCount)
	}
}

func TestApplyRenewalStaleCount(t *testing.T) {
	env := newTestEnv(t)
	loan := env.issue(t, env.book(t, 1), env.student(t))
	due := loan.DueDate.AddDate(0, 0, 7)

	ok, err := env.repos.Loans.ApplyRenewal(nil, loan.ID, loan.RenewalCount+1, due)
	if err != nil || ok {
		t.Fatalf("stale count applied: %v, %v", ok, err)
	}
	if got := env.reloadLoan(t, loan.ID); got.RenewalCount != 0 || !got.DueDate.Equal(loan.DueDate) {
		t.Fatalf("loan changed by stale renewal: %+v", got)
	}

	if ok, err := env.repos.Loans.ApplyRenewal(nil, loan.ID, 0, due); err != nil || !ok {
		t.Fatalf("fresh count refused: %v, %v", ok, err)
	}
	if ok, err := env.repos.Loans.ApplyRenewal(nil, loan.ID, 0, due); err != nil || ok {
		t.Fatalf("same count applied twice: %v, %v", ok, err)
	}
	if got := env.reloadLoan(t, loan.ID); got.RenewalCount != 1 || !got.DueDate.Equal(due) {
		t.Fatalf("renewed loan = %+v", got)
	}
}

func TestIssueLosesLastCopy(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 1)
	reader := env.student(t)

	repos := env.repos
	repos.Books = rivalBooks{env.repos.Books}
	svc := env.serviceWith(repos)

	if _, err := svc.IssueLoan(env.ctx, env.admin, book.ID, reader.UserID); !errors.Is(err, rules.ErrOutOfStock) {
		t.Fatalf("err = %v, want ErrOutOfStock", err)
	}
	// The transaction rolled back with the rival claim in it.
	if got := env.reloadBook(t, book.ID); got.AvailableCopies != 1 {
		t.Fatalf("available = %d, want 1", got.AvailableCopies)
	}
	if n, err := env.repos.Loans.CountByBook(nil, book.ID, false); err != nil || n != 0 {
		t.Fatalf("loans = %d, %v", n, err)
	}
	if evs := env.events.ofType(events.TypeLoanIssued); len(evs) != 0 {
		t.Fatalf("published %d issue events for a refused loan", len(evs))
	}
}

func TestRenewLosesRace(t *testing.T) {
	env := newTestEnv(t)
	reader := env.student(t)
	loan := env.issue(t, env.book(t, 1), reader)

	repos := env.repos
	repos.Loans = rivalLoans{env.repos.Loans}
	svc := env.serviceWith(repos)

	_, err := svc.Renew(env.ctx, reader, loan.ID, 7)
	if reason := rules.Reason(err); reason != rules.ReasonConcurrent {
		t.Fatalf("err = %v, want reason %q", err, rules.ReasonConcurrent)
	}
	if got := env.reloadLoan(t, loan.ID); got.RenewalCount != 0 || !got.DueDate.Equal(loan.DueDate) {
		t.Fatalf("loan changed by refused renewal: %+v", got)
	}
	if evs := env.events.ofType(events.TypeLoanRenewed); len(evs) != 0 {
		t.Fatalf("published %d renewal events for a refused renewal", len(evs))
	}
}

func TestRenewLosesRaceOnLastRenewal(t *testing.T) {
	env := newTestEnv(t)
	reader := env.student(t)
	loan := env.issue(t, env.book(t, 1), reader)
	if _, err := env.svc.Renew(env.ctx, reader, loan.ID, 7); err != nil {
		t.Fatalf("first renewal: %v", err)
	}

	repos := env.repos
	repos.Loans = rivalLoans{env.repos.Loans}
	svc := env.serviceWith(repos)

	// The rival used up the last renewal, so the refusal names the limit.
	_, err := svc.Renew(env.ctx, reader, loan.ID, 7)
	if reason := rules.Reason(err); reason != rules.ReasonLimitReached {
		t.Fatalf("err = %v, want reason %q", err, rules.ReasonLimitReached)
	}
	if got := env.reloadLoan(t, loan.ID); got.RenewalCount != 1 {
		t.Fatalf("renewal_count = %d, want 1", got.RenewalCount)
	}
}
