package services

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"campus-library/internal/rules"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrStoreUnavailable wraps every failure of the underlying database. Rule
	// and domain errors never match it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("operation not permitted for this user")

	ErrBookNotFound        = errors.New("book not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrFineNotFound        = errors.New("fine not found")
	ErrFavoriteNotFound    = errors.New("book is not in favourites")
	ErrGoalNotFound        = errors.New("reading goal not found")

	// ErrUserInactive is returned when a deactivated account borrows or logs in.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrLoanLimitReached is returned when the borrower already holds the
	// configured maximum of active loans.
	ErrLoanLimitReached = errors.New("borrower has reached the active loan limit")

	// ErrDuplicateReservation is returned when the user already has a pending
	// reservation for the same book.
	ErrDuplicateReservation = errors.New("user already has a pending reservation for this book")

	// ErrCopiesAvailable is returned when a reservation is requested for a book
	// that can be borrowed right away.
	ErrCopiesAvailable = errors.New("book has available copies, borrow it instead")

	// ErrReservationClosed is returned when a fulfilled or cancelled
	// reservation is cancelled or fulfilled again.
	ErrReservationClosed = errors.New("reservation is no longer pending")

	ErrInvalidBook         = errors.New("call number, title and author are required and copies cannot be negative")
	ErrDuplicateCallNumber = errors.New("a book with this call number already exists")
	ErrBookHasActiveLoans  = errors.New("book has active loans")
	ErrBookHasLoanHistory  = errors.New("book has loan history and cannot be deleted")

	// ErrInvalidCopies is returned when a copy adjustment is zero or would take
	// more copies off the shelf than are available.
	ErrInvalidCopies = errors.New("copy adjustment would leave available copies negative")

	ErrFinePaid = errors.New("fine is already paid")

	ErrAlreadyFavorite = errors.New("book is already in favourites")

	ErrInvalidGoal = errors.New("reading goal target must be positive")
	ErrGoalExists  = errors.New("an active reading goal already covers this month")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUser        = errors.New("username, email, names, a valid role and a password of 8 to 72 bytes are required")
	ErrDuplicateUser      = errors.New("username or email is already taken")
)

// domainErrors are the failures produced on purpose inside a transaction.
var domainErrors = []error{
	ErrForbidden,
	ErrBookNotFound, ErrUserNotFound, ErrLoanNotFound, ErrReservationNotFound,
	ErrFineNotFound, ErrFavoriteNotFound, ErrGoalNotFound,
	ErrUserInactive, ErrLoanLimitReached,
	ErrDuplicateReservation, ErrCopiesAvailable, ErrReservationClosed,
	ErrInvalidBook, ErrDuplicateCallNumber, ErrBookHasActiveLoans, ErrBookHasLoanHistory,
	ErrInvalidCopies, ErrFinePaid, ErrAlreadyFavorite, ErrInvalidGoal, ErrGoalExists,
	ErrInvalidCredentials, ErrInvalidUser, ErrDuplicateUser,
	rules.ErrOutOfStock, rules.ErrNotEligible, rules.ErrAlreadyReturned,
	rules.ErrReturnBeforeIssue, rules.ErrReturnInFuture, rules.ErrInvalidRenewalDays, rules.ErrInvalidLoanPeriod,
	rules.ErrCopyAccounting,
}

func isDomain(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storeErr logs err and wraps it as ErrStoreUnavailable.
func storeErr(op string, err error) error {
	log.Printf("[ERROR] %s: %v", op, err)
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// lookupErr turns a missing row into notFound and anything else into a store failure.
func lookupErr(op string, err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return storeErr(op, err)
}

// txErr classifies what db.Transaction returned. Errors raised inside the
// closure are already classified; the rest come from begin or commit.
func txErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) || isDomain(err) {
		return err
	}
	return storeErr(op, err)
}
