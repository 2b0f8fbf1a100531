package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-library/internal/events"
	"campus-library/internal/models"
)

// ─── Reservations ─────────────────────────────────────────────────────────────

// Reserve records the actor's interest in a book that is out of stock. A user
// holds at most one pending reservation per book; no queue order is kept.
func (s *libraryService) Reserve(ctx context.Context, actor models.Actor, bookID uuid.UUID) (*models.Reservation, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}

	res := &models.Reservation{
		BookID:      bookID,
		RequestDate: s.now(),
		Status:      models.ReservationStatusPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.repos.Books.GetByIDForUpdate(tx, bookID)
		if err != nil {
			return lookupErr("Reserve", err, ErrBookNotFound)
		}
		if book.AvailableCopies > 0 {
			return ErrCopiesAvailable
		}

		existing, err := s.repos.Reservations.GetPendingByBookAndUser(tx, bookID, actor.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return storeErr("Reserve", err)
		}
		if existing != nil {
			log.Printf("[WARN] Reserve: user %s already has reservation %s for book %s", actor.UserID, existing.ID, bookID)
			return ErrDuplicateReservation
		}

		if err := s.repos.Reservations.Create(tx, res); err != nil {
			return storeErr("Reserve", err)
		}
		return nil
	})
	if err != nil {
		return nil, txErr("Reserve", err)
	}
	log.Printf("[INFO] Reserve: reservation %s created for user %s / book %s", res.ID, actor.UserID, bookID)
	return res, nil
}

// CancelReservation withdraws a pending reservation. Owners and admins only.
func (s *libraryService) CancelReservation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Reservation, error) {
	var res *models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if res, err = s.repos.Reservations.GetByIDForUpdate(tx, id); err != nil {
			return lookupErr("CancelReservation", err, ErrReservationNotFound)
		}
		if err := requireSelfOrAdmin(actor, res.UserID); err != nil {
			return err
		}
		ok, err := s.repos.Reservations.UpdateStatus(tx, id, models.ReservationStatusPending, models.ReservationStatusCancelled)
		if err != nil {
			return storeErr("CancelReservation", err)
		}
		if !ok {
			return ErrReservationClosed
		}
		res.Status = models.ReservationStatusCancelled
		return nil
	})
	if err != nil {
		return nil, txErr("CancelReservation", err)
	}
	log.Printf("[INFO] CancelReservation: reservation %s cancelled", id)
	return res, nil
}

// FulfillReservation lends the book to the requester of a pending reservation.
// The loan and the status change commit together.
func (s *libraryService) FulfillReservation(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Loan, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var loan *models.Loan
	var book *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.repos.Reservations.GetByIDForUpdate(tx, id)
		if err != nil {
			return lookupErr("FulfillReservation", err, ErrReservationNotFound)
		}
		if res.Status != models.ReservationStatusPending {
			return ErrReservationClosed
		}
		// issueTx fulfils the requester's pending reservation for the book.
		loan, book, err = s.issueTx(tx, res.BookID, res.UserID, s.now())
		return err
	})
	if err != nil {
		return nil, txErr("FulfillReservation", err)
	}

	log.Printf("[INFO] FulfillReservation: reservation %s fulfilled by loan %s", id, loan.ID)
	s.publisher.Publish(events.Event{
		Type:            events.TypeLoanIssued,
		BookID:          loan.BookID.String(),
		AvailableCopies: book.AvailableCopies,
		At:              loan.IssueDate,
	})
	return loan, nil
}

// ListReservationsForBook returns every reservation of a book, oldest first.
func (s *libraryService) ListReservationsForBook(ctx context.Context, actor models.Actor, bookID uuid.UUID) ([]models.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	res, err := s.repos.Reservations.ListByBook(s.db.WithContext(ctx), bookID)
	if err != nil {
		return nil, storeErr("ListReservationsForBook", err)
	}
	return res, nil
}

func (s *libraryService) ListMyReservations(ctx context.Context, actor models.Actor) ([]models.Reservation, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	res, err := s.repos.Reservations.ListByUser(s.db.WithContext(ctx), actor.UserID)
	if err != nil {
		return nil, storeErr("ListMyReservations", err)
	}
	return res, nil
}
