package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campus-library/internal/config"
	"campus-library/internal/database"
	"campus-library/internal/events"
	"campus-library/internal/models"
	"campus-library/internal/repositories"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func init() {
	bcryptCost = bcrypt.MinCost
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) ofType(typ string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	db      *gorm.DB
	repos   repositories.Set
	clock   *fakeClock
	events  *recorder
	svc     LibraryService
	admin   models.Actor
	ctx     context.Context
	counter int
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    "file::memory:?_foreign_keys=1",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	env := &testEnv{
		db:     db,
		repos:  repositories.NewSet(db),
		clock:  &fakeClock{now: t0},
		events: &recorder{},
		ctx:    context.Background(),
	}
	env.svc = NewLibraryService(db, env.repos, Options{
		Policy:    config.Default().Circulation,
		Publisher: env.events,
		Clock:     env.clock.Now,
	})
	admin := env.user(t, models.UserRoleAdmin)
	env.admin = models.Actor{UserID: admin.ID, Role: models.UserRoleAdmin}
	return env
}

// user inserts an active member directly through the repository.
func (e *testEnv) user(t *testing.T, role models.UserRole) *models.User {
	t.Helper()
	e.counter++
	u := &models.User{
		Username:     fmt.Sprintf("user%d", e.counter),
		Email:        fmt.Sprintf("user%d@campus.test", e.counter),
		FirstName:    "Test",
		LastName:     fmt.Sprintf("User%d", e.counter),
		Role:         role,
		IsActive:     true,
		PasswordHash: "unused",
	}
	if err := e.repos.Users.Create(nil, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *testEnv) student(t *testing.T) models.Actor {
	t.Helper()
	u := e.user(t, models.UserRoleStudent)
	return models.Actor{UserID: u.ID, Role: u.Role}
}

func (e *testEnv) book(t *testing.T, copies int) *models.Book {
	t.Helper()
	e.counter++
	b, err := e.svc.CreateBook(e.ctx, e.admin, BookInput{
		CallNumber:  fmt.Sprintf("QA76.%d", e.counter),
		Title:       fmt.Sprintf("Book %d", e.counter),
		Author:      "Author",
		Publisher:   "Press",
		Genre:       "Computing",
		TotalCopies: copies,
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func (e *testEnv) reloadBook(t *testing.T, id uuid.UUID) *models.Book {
	t.Helper()
	b, err := e.repos.Books.GetByID(nil, id)
	if err != nil {
		t.Fatalf("reload book: %v", err)
	}
	return b
}

func (e *testEnv) reloadLoan(t *testing.T, id uuid.UUID) *models.Loan {
	t.Helper()
	l, err := e.repos.Loans.GetByID(nil, id)
	if err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	return l
}

func (e *testEnv) issue(t *testing.T, book *models.Book, borrower models.Actor) *models.Loan {
	t.Helper()
	loan, err := e.svc.IssueLoan(e.ctx, e.admin, book.ID, borrower.UserID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return loan
}
