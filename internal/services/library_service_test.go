package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"campus-library/internal/events"
	"campus-library/internal/models"
	"campus-library/internal/repositories"
	"campus-library/internal/rules"
)

func TestCreateBookValidation(t *testing.T) {
	env := newTestEnv(t)
	reader := env.student(t)

	if _, err := env.svc.CreateBook(env.ctx, reader, BookInput{CallNumber: "X1", Title: "T", Author: "A"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student create: err = %v", err)
	}
	for name, in := range map[string]BookInput{
		"no call number":  {Title: "T", Author: "A"},
		"no title":        {CallNumber: "X1", Author: "A"},
		"negative copies": {CallNumber: "X1", Title: "T", Author: "A", TotalCopies: -1},
	} {
		if _, err := env.svc.CreateBook(env.ctx, env.admin, in); !errors.Is(err, ErrInvalidBook) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}

	b, err := env.svc.CreateBook(env.ctx, env.admin, BookInput{CallNumber: " X1 ", Title: "T", Author: "A", TotalCopies: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.CallNumber != "X1" || b.AvailableCopies != 3 || b.BorrowCount != 0 {
		t.Fatalf("book = %+v", b)
	}
	if _, err := env.svc.CreateBook(env.ctx, env.admin, BookInput{CallNumber: "X1", Title: "Other", Author: "B"}); !errors.Is(err, ErrDuplicateCallNumber) {
		t.Fatalf("duplicate: err = %v", err)
	}
}

func TestUpdateBookKeepsCounters(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 2)
	env.issue(t, book, env.student(t))

	title := "Structure and Interpretation"
	updated, err := env.svc.UpdateBook(env.ctx, env.admin, book.ID, BookUpdate{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.AvailableCopies != 1 || updated.TotalCopies != 2 {
		t.Fatalf("updated = %+v", updated)
	}

	blank := "  "
	if _, err := env.svc.UpdateBook(env.ctx, env.admin, book.ID, BookUpdate{Author: &blank}); !errors.Is(err, ErrInvalidBook) {
		t.Fatalf("blank author: err = %v", err)
	}
	if _, err := env.svc.UpdateBook(env.ctx, env.admin, uuid.New(), BookUpdate{Title: &title}); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("unknown: err = %v", err)
	}
}

func TestDeleteBook(t *testing.T) {
	env := newTestEnv(t)
	unused := env.book(t, 1)
	lent := env.book(t, 1)
	loan := env.issue(t, lent, env.student(t))

	if err := env.svc.DeleteBook(env.ctx, env.admin, lent.ID); !errors.Is(err, ErrBookHasActiveLoans) {
		t.Fatalf("active loan: err = %v", err)
	}
	if _, err := env.svc.ReturnLoan(env.ctx, env.admin, loan.ID, nil); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.DeleteBook(env.ctx, env.admin, lent.ID); !errors.Is(err, ErrBookHasLoanHistory) {
		t.Fatalf("history: err = %v", err)
	}

	if err := env.svc.DeleteBook(env.ctx, env.admin, unused.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.GetBook(env.ctx, unused.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("after delete: err = %v", err)
	}
	if err := env.svc.DeleteBook(env.ctx, env.admin, unused.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestAdjustCopiesConservesLoans(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 2)
	env.issue(t, book, env.student(t))

	if _, err := env.svc.AdjustCopies(env.ctx, env.admin, book.ID, -2); !errors.Is(err, ErrInvalidCopies) {
		t.Fatalf("withdraw lent copy: err = %v", err)
	}
	if _, err := env.svc.AdjustCopies(env.ctx, env.admin, book.ID, 0); !errors.Is(err, ErrInvalidCopies) {
		t.Fatalf("zero delta: err = %v", err)
	}

	got, err := env.svc.AdjustCopies(env.ctx, env.admin, book.ID, -1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got.TotalCopies != 1 || got.AvailableCopies != 0 {
		t.Fatalf("after withdraw = %d/%d", got.AvailableCopies, got.TotalCopies)
	}

	got, err = env.svc.AdjustCopies(env.ctx, env.admin, book.ID, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got.TotalCopies != 4 || got.AvailableCopies != 3 {
		t.Fatalf("after add = %d/%d", got.AvailableCopies, got.TotalCopies)
	}
	if n := len(env.events.ofType(events.TypeCopyAvailable)); n != 1 {
		t.Fatalf("copy.available events = %d", n)
	}
}

func TestListBooksFilters(t *testing.T) {
	env := newTestEnv(t)
	b1, err := env.svc.CreateBook(env.ctx, env.admin, BookInput{CallNumber: "A1", Title: "Go in Practice", Author: "Butcher", Genre: "Computing", TotalCopies: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.CreateBook(env.ctx, env.admin, BookInput{CallNumber: "B1", Title: "Middlemarch", Author: "Eliot", Genre: "Fiction", TotalCopies: 1}); err != nil {
		t.Fatal(err)
	}
	env.issue(t, b1, env.student(t))

	cases := []struct {
		filter repositories.BookFilter
		want   int
	}{
		{repositories.BookFilter{}, 2},
		{repositories.BookFilter{Query: "middle"}, 1},
		{repositories.BookFilter{Query: "BUTCHER"}, 1},
		{repositories.BookFilter{Genre: "fiction"}, 1},
		{repositories.BookFilter{AvailableOnly: true}, 1},
		{repositories.BookFilter{Query: "nothing"}, 0},
	}
	for _, c := range cases {
		books, err := env.svc.ListBooks(env.ctx, c.filter)
		if err != nil {
			t.Fatal(err)
		}
		if len(books) != c.want {
			t.Fatalf("%+v: got %d books, want %d", c.filter, len(books), c.want)
		}
	}
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	reader := env.student(t)
	book := env.book(t, 3)
	env.issue(t, book, reader)

	if _, err := env.svc.DashboardStats(env.ctx, reader); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student: err = %v", err)
	}
	stats, err := env.svc.DashboardStats(env.ctx, env.admin)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalBooks != 1 || stats.TotalUsers != 2 || stats.BooksIssued != 1 ||
		stats.AvailableCopies != 2 || stats.OverdueBooks != 0 || !stats.PendingFines.IsZero() {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestReserveRules(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 1)
	reader := env.student(t)

	if _, err := env.svc.Reserve(env.ctx, reader, book.ID); !errors.Is(err, ErrCopiesAvailable) {
		t.Fatalf("available book: err = %v", err)
	}
	env.issue(t, book, env.student(t))

	res, err := env.svc.Reserve(env.ctx, reader, book.ID)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Status != models.ReservationStatusPending || res.UserID != reader.UserID {
		t.Fatalf("reservation = %+v", res)
	}
	if _, err := env.svc.Reserve(env.ctx, reader, book.ID); !errors.Is(err, ErrDuplicateReservation) {
		t.Fatalf("duplicate: err = %v", err)
	}
	if _, err := env.svc.Reserve(env.ctx, reader, uuid.New()); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("unknown book: err = %v", err)
	}

	list, err := env.svc.ListReservationsForBook(env.ctx, env.admin, book.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("for book = %v err=%v", list, err)
	}
	if _, err := env.svc.ListReservationsForBook(env.ctx, reader, book.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student listing: err = %v", err)
	}
	mine, err := env.svc.ListMyReservations(env.ctx, reader)
	if err != nil || len(mine) != 1 {
		t.Fatalf("mine = %v err=%v", mine, err)
	}
}

func TestCancelReservation(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 1)
	env.issue(t, book, env.student(t))
	reader := env.student(t)
	res, err := env.svc.Reserve(env.ctx, reader, book.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.CancelReservation(env.ctx, env.student(t), res.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: err = %v", err)
	}
	cancelled, err := env.svc.CancelReservation(env.ctx, reader, res.ID)
	if err != nil || cancelled.Status != models.ReservationStatusCancelled {
		t.Fatalf("cancel = %+v err=%v", cancelled, err)
	}
	if _, err := env.svc.CancelReservation(env.ctx, reader, res.ID); !errors.Is(err, ErrReservationClosed) {
		t.Fatalf("second cancel: err = %v", err)
	}
	// a cancelled reservation no longer blocks a new one
	if _, err := env.svc.Reserve(env.ctx, reader, book.ID); err != nil {
		t.Fatalf("reserve again: %v", err)
	}
}

func TestReturnThenFulfillReservation(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 1)
	first := env.issue(t, book, env.student(t))
	waiting := env.student(t)
	res, err := env.svc.Reserve(env.ctx, waiting, book.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.FulfillReservation(env.ctx, env.admin, res.ID); !errors.Is(err, rules.ErrOutOfStock) {
		t.Fatalf("fulfil with no copy: err = %v", err)
	}

	if _, err := env.svc.ReturnLoan(env.ctx, env.admin, first.ID, nil); err != nil {
		t.Fatal(err)
	}
	avail := env.events.ofType(events.TypeCopyAvailable)
	if len(avail) != 1 || avail[0].PendingReservations != 1 {
		t.Fatalf("copy.available = %+v", avail)
	}

	loan, err := env.svc.FulfillReservation(env.ctx, env.admin, res.ID)
	if err != nil {
		t.Fatalf("fulfil: %v", err)
	}
	if loan.UserID != waiting.UserID {
		t.Fatalf("loan went to %s", loan.UserID)
	}
	mine, err := env.svc.ListMyReservations(env.ctx, waiting)
	if err != nil || len(mine) != 1 || mine[0].Status != models.ReservationStatusFulfilled {
		t.Fatalf("reservations = %+v err=%v", mine, err)
	}
	if _, err := env.svc.FulfillReservation(env.ctx, env.admin, res.ID); !errors.Is(err, ErrReservationClosed) {
		t.Fatalf("second fulfil: err = %v", err)
	}
}

func TestIssueFulfilsOwnReservation(t *testing.T) {
	env := newTestEnv(t)
	book := env.book(t, 1)
	first := env.issue(t, book, env.student(t))
	waiting := env.student(t)
	if _, err := env.svc.Reserve(env.ctx, waiting, book.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.ReturnLoan(env.ctx, env.admin, first.ID, nil); err != nil {
		t.Fatal(err)
	}

	env.issue(t, book, waiting)
	mine, err := env.svc.ListMyReservations(env.ctx, waiting)
	if err != nil || len(mine) != 1 || mine[0].Status != models.ReservationStatusFulfilled {
		t.Fatalf("reservations = %+v err=%v", mine, err)
	}
}
