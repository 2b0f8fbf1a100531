package rules

import "errors"

// Renewal rejection reasons. They are shown to end users verbatim.
const (
	ReasonLimitReached    = "renewal limit reached"
	ReasonOverdue         = "loan is overdue"
	ReasonAlreadyReturned = "loan already returned"
	ReasonConcurrent      = "loan was changed by another request"
)

var (
	// ErrOutOfStock is returned when a book has no available copy to issue.
	// Callers should offer a reservation instead of retrying.
	ErrOutOfStock = errors.New("book is out of stock")

	// ErrNotEligible matches every *NotEligibleError via errors.Is.
	ErrNotEligible = errors.New("loan is not eligible for renewal")

	// ErrAlreadyReturned is returned when a return or renewal targets a loan
	// that is already returned.
	ErrAlreadyReturned = errors.New("loan already returned")

	// ErrReturnBeforeIssue is returned when the return date precedes the issue date.
	ErrReturnBeforeIssue = errors.New("return date is before issue date")

	// ErrReturnInFuture is returned when the return date is later than now.
	ErrReturnInFuture = errors.New("return date is in the future")

	// ErrInvalidRenewalDays is returned when a renewal asks for a non-positive extension.
	ErrInvalidRenewalDays = errors.New("renewal days must be positive")

	// ErrInvalidLoanPeriod is returned when a loan is issued with a non-positive period.
	ErrInvalidLoanPeriod = errors.New("loan period must be positive")

	// ErrCopyAccounting is returned when releasing a copy would push
	// available_copies above total_copies.
	ErrCopyAccounting = errors.New("available copies would exceed total copies")
)

// NotEligibleError carries the human-readable reason a renewal was refused.
type NotEligibleError struct {
	Reason string
}

func (e *NotEligibleError) Error() string {
	return "renewal not allowed: " + e.Reason
}

func (e *NotEligibleError) Is(target error) bool {
	return target == ErrNotEligible
}

// NotEligible builds a *NotEligibleError for reason.
func NotEligible(reason string) error {
	return &NotEligibleError{Reason: reason}
}

// Reason extracts the user-facing reason from a rule error, or "" when err is
// not a renewal rejection.
func Reason(err error) string {
	var ne *NotEligibleError
	if errors.As(err, &ne) {
		return ne.Reason
	}
	if errors.Is(err, ErrAlreadyReturned) {
		return ReasonAlreadyReturned
	}
	return ""
}
