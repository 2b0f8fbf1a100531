// Package rules holds the circulation rules of the library: when a loan may be
// renewed, what a renewal or a return does to it, and how overdue fines accrue.
//
// Every function here is pure. Callers pass the current record state and the
// reference time; nothing reads the clock or touches storage, so the same rules
// back both the enforced ledger operations and client-side previews. The ledger
// is expected to call these inside a transaction that has already locked the
// rows involved.
package rules

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"campus-library/internal/models"
)

const (
	DefaultLoanPeriodDays = 14
	DefaultRenewalDays    = 14
	DefaultMaxRenewals    = 2

	day = 24 * time.Hour
)

// RenewalBasis selects the date a renewal extends from.
type RenewalBasis string

const (
	// BasisNow extends the due date from the moment of renewal.
	BasisNow RenewalBasis = "now"
	// BasisDueDate extends from the later of the current due date and now.
	BasisDueDate RenewalBasis = "due_date"
)

func (b RenewalBasis) Valid() bool {
	return b == BasisNow || b == BasisDueDate
}

// IssuePolicy carries the configured parameters of a new loan.
type IssuePolicy struct {
	LoanPeriodDays int
	MaxRenewals    int
}

// DefaultIssuePolicy is the 14 day, two renewal policy.
func DefaultIssuePolicy() IssuePolicy {
	return IssuePolicy{LoanPeriodDays: DefaultLoanPeriodDays, MaxRenewals: DefaultMaxRenewals}
}

// ─── Status ───────────────────────────────────────────────────────────────────

// IsOverdue reports whether an unreturned loan is past due at now. A loan whose
// stored status is already overdue stays overdue regardless of now.
func IsOverdue(loan models.Loan, now time.Time) bool {
	if loan.ReturnDate != nil || loan.Status == models.LoanStatusReturned {
		return false
	}
	return loan.Status == models.LoanStatusOverdue || now.After(loan.DueDate)
}

// EffectiveStatus derives the status of loan at now. The stored column may lag
// behind between reconciliation passes; this never does.
func EffectiveStatus(loan models.Loan, now time.Time) models.LoanStatus {
	switch {
	case loan.ReturnDate != nil || loan.Status == models.LoanStatusReturned:
		return models.LoanStatusReturned
	case IsOverdue(loan, now):
		return models.LoanStatusOverdue
	default:
		return models.LoanStatusIssued
	}
}

// ─── Renewal ──────────────────────────────────────────────────────────────────

// CanRenew reports whether loan may be renewed at now: it must be unreturned,
// not overdue (now == due date still counts as on time) and below its renewal
// ceiling.
func CanRenew(loan models.Loan, now time.Time) bool {
	return renewalRejection(loan, now) == nil
}

func renewalRejection(loan models.Loan, now time.Time) error {
	if EffectiveStatus(loan, now) == models.LoanStatusReturned {
		return ErrAlreadyReturned
	}
	if loan.RenewalCount >= loan.MaxRenewals {
		return NotEligible(ReasonLimitReached)
	}
	if IsOverdue(loan, now) {
		return NotEligible(ReasonOverdue)
	}
	return nil
}

// Renew returns loan extended by renewalDays. The renewal counter goes up by
// one, the status is left alone and the due date never moves earlier. A
// returned loan yields ErrAlreadyReturned; an ineligible one yields a
// *NotEligibleError naming the reason.
func Renew(loan models.Loan, now time.Time, renewalDays int, basis RenewalBasis) (models.Loan, error) {
	if renewalDays <= 0 {
		return loan, ErrInvalidRenewalDays
	}
	if err := renewalRejection(loan, now); err != nil {
		return loan, err
	}

	from := now
	if basis == BasisDueDate && loan.DueDate.After(now) {
		from = loan.DueDate
	}
	due := from.AddDate(0, 0, renewalDays)
	// A renewal never shortens the loan.
	if due.Before(loan.DueDate) {
		due = loan.DueDate
	}

	renewed := loan
	renewed.DueDate = due
	renewed.RenewalCount++
	return renewed, nil
}

// ─── Fines ────────────────────────────────────────────────────────────────────

// OverdueDays counts started days between due and asOf. Any part of a day past
// due counts as a whole day; asOf on or before due is zero.
func OverdueDays(due, asOf time.Time) int {
	if !asOf.After(due) {
		return 0
	}
	d := asOf.Sub(due)
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n
}

// ComputeFine is overdueDays × dailyRate rounded to cents.
func ComputeFine(overdueDays int, dailyRate decimal.Decimal) decimal.Decimal {
	if overdueDays <= 0 {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(overdueDays))).Round(2)
}

// AccruedFine is the fine loan would carry if it were returned at asOf.
func AccruedFine(loan models.Loan, asOf time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	if loan.ReturnDate != nil {
		return loan.FineAmount
	}
	return ComputeFine(OverdueDays(loan.DueDate, asOf), dailyRate)
}

// ─── Issue / Return ───────────────────────────────────────────────────────────

// IssueLoan takes one copy of book for borrowerID. It returns the book with its
// counters moved and the new loan; neither is persisted.
func IssueLoan(book models.Book, borrowerID uuid.UUID, now time.Time, policy IssuePolicy) (models.Book, models.Loan, error) {
	if policy.LoanPeriodDays <= 0 {
		return book, models.Loan{}, ErrInvalidLoanPeriod
	}
	if book.AvailableCopies <= 0 {
		return book, models.Loan{}, ErrOutOfStock
	}

	updated := book
	updated.AvailableCopies--
	updated.BorrowCount++

	loan := models.Loan{
		BookID:       book.ID,
		UserID:       borrowerID,
		IssueDate:    now,
		DueDate:      now.AddDate(0, 0, policy.LoanPeriodDays),
		Status:       models.LoanStatusIssued,
		RenewalCount: 0,
		MaxRenewals:  policy.MaxRenewals,
		FineAmount:   decimal.Zero,
	}
	return updated, loan, nil
}

// ReturnLoan closes loan at returnDate and settles its fine.
func ReturnLoan(loan models.Loan, returnDate time.Time, dailyRate decimal.Decimal) (models.Loan, error) {
	if loan.ReturnDate != nil || loan.Status == models.LoanStatusReturned {
		return loan, ErrAlreadyReturned
	}
	if returnDate.Before(loan.IssueDate) {
		return loan, ErrReturnBeforeIssue
	}

	returned := loan
	rd := returnDate
	returned.ReturnDate = &rd
	returned.Status = models.LoanStatusReturned
	returned.FineAmount = ComputeFine(OverdueDays(loan.DueDate, returnDate), dailyRate)
	return returned, nil
}

// ReleaseCopy puts one copy of book back on the shelf.
func ReleaseCopy(book models.Book) (models.Book, error) {
	if book.AvailableCopies >= book.TotalCopies {
		return book, ErrCopyAccounting
	}
	updated := book
	updated.AvailableCopies++
	return updated, nil
}

// ─── Outcome ──────────────────────────────────────────────────────────────────

// RenewalOutcome is the tagged result reported to callers of renew_book.
type RenewalOutcome struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	NewDueDate *time.Time `json:"new_due_date,omitempty"`
}

// Succeeded builds the outcome of a successful renewal.
func Succeeded(loan models.Loan) RenewalOutcome {
	due := loan.DueDate
	return RenewalOutcome{
		Success:    true,
		Message:    "book renewed until " + due.Format("2006-01-02"),
		NewDueDate: &due,
	}
}

// Rejected builds the outcome of a refused renewal. It reports false when err
// is not a rule rejection, so callers can surface store failures separately.
func Rejected(err error) (RenewalOutcome, bool) {
	reason := Reason(err)
	if reason == "" {
		return RenewalOutcome{}, false
	}
	return RenewalOutcome{Success: false, Message: reason}, true
}
