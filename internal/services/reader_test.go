package services

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"campus-library/internal/models"
)

func newReader(env *testEnv) ReaderService {
	return NewReaderService(env.db, env.repos, env.clock.Now)
}

func TestFavorites(t *testing.T) {
	env := newTestEnv(t)
	reader := newReader(env)
	me := env.student(t)
	book := env.book(t, 1)

	fav, err := reader.AddFavorite(env.ctx, me, book.ID)
	if err != nil || fav.Book.ID != book.ID {
		t.Fatalf("add: fav=%+v err=%v", fav, err)
	}
	if _, err := reader.AddFavorite(env.ctx, me, book.ID); !errors.Is(err, ErrAlreadyFavorite) {
		t.Fatalf("twice: err = %v", err)
	}
	if _, err := reader.AddFavorite(env.ctx, me, uuid.New()); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("unknown book: err = %v", err)
	}

	favs, err := reader.ListFavorites(env.ctx, me)
	if err != nil || len(favs) != 1 || favs[0].Book.Title != book.Title {
		t.Fatalf("list = %+v err=%v", favs, err)
	}
	if err := reader.RemoveFavorite(env.ctx, me, book.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := reader.RemoveFavorite(env.ctx, me, book.ID); !errors.Is(err, ErrFavoriteNotFound) {
		t.Fatalf("remove twice: err = %v", err)
	}
}

func TestReadingGoalProgress(t *testing.T) {
	env := newTestEnv(t)
	reader := newReader(env)
	me := env.student(t)

	if _, err := reader.CreateGoal(env.ctx, me, 0); !errors.Is(err, ErrInvalidGoal) {
		t.Fatalf("zero target: err = %v", err)
	}
	goal, err := reader.CreateGoal(env.ctx, me, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !goal.StartDate.Equal(want) || !goal.EndDate.Equal(want.AddDate(0, 1, 0)) {
		t.Fatalf("window = %v..%v", goal.StartDate, goal.EndDate)
	}
	if _, err := reader.CreateGoal(env.ctx, me, 3); !errors.Is(err, ErrGoalExists) {
		t.Fatalf("second goal: err = %v", err)
	}

	for i := 0; i < 2; i++ {
		loan := env.issue(t, env.book(t, 1), me)
		at := t0.AddDate(0, 0, 5+i)
		if _, err := env.svc.ReturnLoan(env.ctx, env.admin, loan.ID, &at); err != nil {
			t.Fatal(err)
		}
		goals, err := reader.ListGoals(env.ctx, me)
		if err != nil || len(goals) != 1 {
			t.Fatalf("goals = %+v err=%v", goals, err)
		}
		if goals[0].CurrentValue != i+1 {
			t.Fatalf("progress = %d, want %d", goals[0].CurrentValue, i+1)
		}
	}

	// the completed goal is no longer listed as active
	goals, err := reader.ListGoals(env.ctx, me)
	if err != nil || len(goals) != 0 {
		t.Fatalf("after completion = %+v err=%v", goals, err)
	}
}

func TestReadingStats(t *testing.T) {
	env := newTestEnv(t)
	reader := newReader(env)
	me := env.student(t)

	fiction := func(call string) *models.Book {
		b, err := env.svc.CreateBook(env.ctx, env.admin, BookInput{CallNumber: call, Title: call, Author: "A", Genre: "Fiction", TotalCopies: 1})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	done := env.issue(t, fiction("F1"), me)
	if _, err := env.svc.ReturnLoan(env.ctx, env.admin, done.ID, nil); err != nil {
		t.Fatal(err)
	}
	env.issue(t, fiction("F2"), me)
	env.clock.Set(t0.AddDate(0, 0, 1))
	env.issue(t, env.book(t, 1), me)

	env.clock.Set(t0.AddDate(0, 0, 14).Add(time.Hour))
	stats, err := reader.ReadingStats(env.ctx, me, me.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalBooksRead != 1 || stats.CurrentlyReading != 2 || stats.OverdueBooks != 1 || stats.FavoriteGenre != "Fiction" {
		t.Fatalf("stats = %+v", stats)
	}
	if _, err := reader.ReadingStats(env.ctx, env.student(t), me.UserID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("other student: err = %v", err)
	}
}
