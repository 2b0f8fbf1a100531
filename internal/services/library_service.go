package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"campus-library/internal/config"
	"campus-library/internal/events"
	"campus-library/internal/models"
	"campus-library/internal/repositories"
	"campus-library/internal/rules"
)

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService is the circulation desk: the catalogue, the loan ledger, the
// reservation list and fines. Every call names the actor it runs for.
type LibraryService interface {
	CreateBook(ctx context.Context, actor models.Actor, in BookInput) (*models.Book, error)
	UpdateBook(ctx context.Context, actor models.Actor, id uuid.UUID, in BookUpdate) (*models.Book, error)
	DeleteBook(ctx context.Context, actor models.Actor, id uuid.UUID) error
	AdjustCopies(ctx context.Context, actor models.Actor, id uuid.UUID, delta int) (*models.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	ListBooks(ctx context.Context, filter repositories.BookFilter) ([]models.Book, error)

	IssueLoan(ctx context.Context, actor models.Actor, bookID, borrowerID uuid.UUID) (*models.Loan, error)
	ReturnLoan(ctx context.Context, actor models.Actor, loanID uuid.UUID, returnDate *time.Time) (*models.Loan, error)
	CanRenewBook(ctx context.Context, actor models.Actor, loanID uuid.UUID) (bool, error)
	Renew(ctx context.Context, actor models.Actor, loanID uuid.UUID, days int) (*models.Loan, error)
	RenewBook(ctx context.Context, actor models.Actor, loanID uuid.UUID, days int) (rules.RenewalOutcome, error)
	GetLoan(ctx context.Context, actor models.Actor, loanID uuid.UUID) (*LoanView, error)
	ListBorrowerLoans(ctx context.Context, actor models.Actor, userID uuid.UUID) ([]LoanView, error)
	ListOverdueLoans(ctx context.Context, actor models.Actor) ([]LoanView, error)
	OutstandingFines(ctx context.Context, actor models.Actor, userID uuid.UUID) (*FineSummary, error)
	ReconcileOverdue(ctx context.Context, actor models.Actor) (int64, error)

	Reserve(ctx context.Context, actor models.Actor, bookID uuid.UUID) (*models.Reservation, error)
	CancelReservation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Reservation, error)
	FulfillReservation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Loan, error)
	ListReservationsForBook(ctx context.Context, actor models.Actor, bookID uuid.UUID) ([]models.Reservation, error)
	ListMyReservations(ctx context.Context, actor models.Actor) ([]models.Reservation, error)

	ListFines(ctx context.Context, actor models.Actor, userID uuid.UUID) ([]models.Fine, error)
	PayFine(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Fine, error)
	DashboardStats(ctx context.Context, actor models.Actor) (*DashboardStats, error)
}

// Options tunes a LibraryService. Zero fields take the defaults.
type Options struct {
	Policy    config.CirculationConfig
	Publisher events.Publisher
	Clock     func() time.Time
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db        *gorm.DB
	repos     repositories.Set
	policy    config.CirculationConfig
	publisher events.Publisher
	clock     func() time.Time
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(db *gorm.DB, repos repositories.Set, opts Options) LibraryService {
	if opts.Policy.LoanPeriodDays == 0 {
		opts.Policy = config.Default().Circulation
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Discard{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &libraryService{
		db:        db,
		repos:     repos,
		policy:    opts.Policy,
		publisher: opts.Publisher,
		clock:     opts.Clock,
	}
}

func (s *libraryService) now() time.Time {
	return s.clock().UTC()
}

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// requireSelfOrAdmin lets admins act for anyone and everyone else for themselves.
func requireSelfOrAdmin(actor models.Actor, userID uuid.UUID) error {
	if actor.IsAdmin() || (actor.UserID != uuid.Nil && actor.UserID == userID) {
		return nil
	}
	return ErrForbidden
}

// ─── Book Management ──────────────────────────────────────────────────────────

type BookInput struct {
	CallNumber      string
	Title           string
	Author          string
	Publisher       string
	Genre           string
	ISBN            *string
	PublicationYear *int
	Description     *string
	TotalCopies     int
}

// BookUpdate changes catalogue metadata. Nil fields are left alone; copy
// counts only move through AdjustCopies and circulation.
type BookUpdate struct {
	CallNumber      *string
	Title           *string
	Author          *string
	Publisher       *string
	Genre           *string
	ISBN            *string
	PublicationYear *int
	Description     *string
}

// CreateBook adds a title to the catalogue with every copy on the shelf.
func (s *libraryService) CreateBook(ctx context.Context, actor models.Actor, in BookInput) (*models.Book, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	book := &models.Book{
		CallNumber:      strings.TrimSpace(in.CallNumber),
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		Publisher:       strings.TrimSpace(in.Publisher),
		Genre:           strings.TrimSpace(in.Genre),
		ISBN:            in.ISBN,
		PublicationYear: in.PublicationYear,
		Description:     in.Description,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
	}
	if book.CallNumber == "" || book.Title == "" || book.Author == "" || book.TotalCopies < 0 {
		return nil, ErrInvalidBook
	}

	if err := s.repos.Books.Create(s.db.WithContext(ctx), book); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateCallNumber
		}
		return nil, storeErr("CreateBook", err)
	}
	log.Printf("[INFO] CreateBook: created book %q (id=%s) with %d copies", book.Title, book.ID, book.TotalCopies)
	return book, nil
}

func (s *libraryService) UpdateBook(ctx context.Context, actor models.Actor, id uuid.UUID, in BookUpdate) (*models.Book, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	fields := map[string]interface{}{}
	for column, v := range map[string]*string{
		"call_number": in.CallNumber,
		"title":       in.Title,
		"author":      in.Author,
		"publisher":   in.Publisher,
		"genre":       in.Genre,
	} {
		if v == nil {
			continue
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" && (column == "call_number" || column == "title" || column == "author") {
			return nil, ErrInvalidBook
		}
		fields[column] = trimmed
	}
	if in.ISBN != nil {
		fields["isbn"] = *in.ISBN
	}
	if in.PublicationYear != nil {
		fields["publication_year"] = *in.PublicationYear
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}

	db := s.db.WithContext(ctx)
	if len(fields) > 0 {
		found, err := s.repos.Books.Update(db, id, fields)
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrDuplicateCallNumber
			}
			return nil, storeErr("UpdateBook", err)
		}
		if !found {
			return nil, ErrBookNotFound
		}
	}
	book, err := s.repos.Books.GetByID(db, id)
	if err != nil {
		return nil, lookupErr("UpdateBook", err, ErrBookNotFound)
	}
	log.Printf("[INFO] UpdateBook: updated book %s (%d fields)", id, len(fields))
	return book, nil
}

// DeleteBook removes a title that has never been lent out.
func (s *libraryService) DeleteBook(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repos.Books.GetByIDForUpdate(tx, id); err != nil {
			return lookupErr("DeleteBook", err, ErrBookNotFound)
		}
		active, err := s.repos.Loans.CountByBook(tx, id, true)
		if err != nil {
			return storeErr("DeleteBook", err)
		}
		if active > 0 {
			return ErrBookHasActiveLoans
		}
		total, err := s.repos.Loans.CountByBook(tx, id, false)
		if err != nil {
			return storeErr("DeleteBook", err)
		}
		if total > 0 {
			return ErrBookHasLoanHistory
		}
		if _, err := s.repos.Books.Delete(tx, id); err != nil {
			return storeErr("DeleteBook", err)
		}
		return nil
	})
	if err != nil {
		return txErr("DeleteBook", err)
	}
	log.Printf("[INFO] DeleteBook: deleted book %s", id)
	return nil
}

// AdjustCopies adds (delta > 0) or withdraws (delta < 0) physical copies. Only
// copies on the shelf can be withdrawn, so loans out never exceed the total.
func (s *libraryService) AdjustCopies(ctx context.Context, actor models.Actor, id uuid.UUID, delta int) (*models.Book, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, ErrInvalidCopies
	}

	var book *models.Book
	var pending int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repos.Books.GetByIDForUpdate(tx, id); err != nil {
			return lookupErr("AdjustCopies", err, ErrBookNotFound)
		}
		ok, err := s.repos.Books.AdjustCopies(tx, id, delta)
		if err != nil {
			return storeErr("AdjustCopies", err)
		}
		if !ok {
			return ErrInvalidCopies
		}
		if book, err = s.repos.Books.GetByID(tx, id); err != nil {
			return storeErr("AdjustCopies", err)
		}
		if delta > 0 {
			if pending, err = s.repos.Reservations.CountPendingByBook(tx, id); err != nil {
				return storeErr("AdjustCopies", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, txErr("AdjustCopies", err)
	}

	log.Printf("[INFO] AdjustCopies: book %s moved by %d, now %d/%d available", id, delta, book.AvailableCopies, book.TotalCopies)
	if delta > 0 {
		s.publisher.Publish(events.Event{
			Type:                events.TypeCopyAvailable,
			BookID:              id.String(),
			AvailableCopies:     book.AvailableCopies,
			PendingReservations: pending,
			At:                  s.now(),
		})
	}
	return book, nil
}

func (s *libraryService) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	book, err := s.repos.Books.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, lookupErr("GetBook", err, ErrBookNotFound)
	}
	return book, nil
}

// ListBooks returns the catalogue, narrowed by filter.
func (s *libraryService) ListBooks(ctx context.Context, filter repositories.BookFilter) ([]models.Book, error) {
	books, err := s.repos.Books.List(s.db.WithContext(ctx), filter)
	if err != nil {
		return nil, storeErr("ListBooks", err)
	}
	return books, nil
}

// ─── Fines ────────────────────────────────────────────────────────────────────

// ListFines returns the fines of userID, or every fine when an admin passes uuid.Nil.
func (s *libraryService) ListFines(ctx context.Context, actor models.Actor, userID uuid.UUID) ([]models.Fine, error) {
	db := s.db.WithContext(ctx)
	if userID == uuid.Nil {
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		fines, err := s.repos.Fines.List(db, "")
		if err != nil {
			return nil, storeErr("ListFines", err)
		}
		return fines, nil
	}
	if err := requireSelfOrAdmin(actor, userID); err != nil {
		return nil, err
	}
	fines, err := s.repos.Fines.ListByUser(db, userID)
	if err != nil {
		return nil, storeErr("ListFines", err)
	}
	return fines, nil
}

// PayFine settles a pending fine.
func (s *libraryService) PayFine(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Fine, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var fine *models.Fine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paid, err := s.repos.Fines.MarkPaid(tx, id, s.now())
		if err != nil {
			return storeErr("PayFine", err)
		}
		if fine, err = s.repos.Fines.GetByID(tx, id); err != nil {
			return lookupErr("PayFine", err, ErrFineNotFound)
		}
		if !paid {
			return ErrFinePaid
		}
		return nil
	})
	if err != nil {
		return nil, txErr("PayFine", err)
	}
	log.Printf("[INFO] PayFine: fine %s of %s paid by user %s", fine.ID, fine.Amount.StringFixed(2), fine.UserID)
	return fine, nil
}

// FineSummary is what a borrower (or, for uuid.Nil, the whole library) owes at
// a point in time: fines already assessed on returns plus what unreturned
// overdue loans have accrued so far.
type FineSummary struct {
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	Assessed     decimal.Decimal `json:"assessed"`
	Accruing     decimal.Decimal `json:"accruing"`
	Total        decimal.Decimal `json:"total"`
	OverdueLoans int             `json:"overdue_loans"`
	AsOf         time.Time       `json:"as_of"`
}
