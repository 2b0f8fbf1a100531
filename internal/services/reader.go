package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campus-library/internal/models"
	"campus-library/internal/repositories"
	"campus-library/internal/rules"
)

// ReaderService holds the personal side of a membership: favourites, reading
// goals and reading statistics.
type ReaderService interface {
	AddFavorite(ctx context.Context, actor models.Actor, bookID uuid.UUID) (*models.Favorite, error)
	RemoveFavorite(ctx context.Context, actor models.Actor, bookID uuid.UUID) error
	ListFavorites(ctx context.Context, actor models.Actor) ([]models.Favorite, error)

	CreateGoal(ctx context.Context, actor models.Actor, target int) (*models.ReadingGoal, error)
	ListGoals(ctx context.Context, actor models.Actor) ([]models.ReadingGoal, error)

	ReadingStats(ctx context.Context, actor models.Actor, userID uuid.UUID) (*ReadingStats, error)
}

type ReadingStats struct {
	TotalBooksRead   int    `json:"total_books_read"`
	CurrentlyReading int    `json:"currently_reading"`
	OverdueBooks     int    `json:"overdue_books"`
	FavoriteGenre    string `json:"favorite_genre,omitempty"`
}

type readerService struct {
	db    *gorm.DB
	repos repositories.Set
	clock func() time.Time
}

// NewReaderService returns a ReaderService. A nil clock means time.Now.
func NewReaderService(db *gorm.DB, repos repositories.Set, clock func() time.Time) ReaderService {
	if clock == nil {
		clock = time.Now
	}
	return &readerService{db: db, repos: repos, clock: clock}
}

func (s *readerService) now() time.Time {
	return s.clock().UTC()
}

// ─── Favourites ───────────────────────────────────────────────────────────────

func (s *readerService) AddFavorite(ctx context.Context, actor models.Actor, bookID uuid.UUID) (*models.Favorite, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	db := s.db.WithContext(ctx)
	book, err := s.repos.Books.GetByID(db, bookID)
	if err != nil {
		return nil, lookupErr("AddFavorite", err, ErrBookNotFound)
	}
	exists, err := s.repos.Favorites.Exists(db, actor.UserID, bookID)
	if err != nil {
		return nil, storeErr("AddFavorite", err)
	}
	if exists {
		return nil, ErrAlreadyFavorite
	}

	fav := &models.Favorite{UserID: actor.UserID, BookID: bookID}
	if err := s.repos.Favorites.Create(db, fav); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyFavorite
		}
		return nil, storeErr("AddFavorite", err)
	}
	fav.Book = *book
	log.Printf("[INFO] AddFavorite: user %s added book %s", actor.UserID, bookID)
	return fav, nil
}

func (s *readerService) RemoveFavorite(ctx context.Context, actor models.Actor, bookID uuid.UUID) error {
	if actor.UserID == uuid.Nil {
		return ErrForbidden
	}
	found, err := s.repos.Favorites.Delete(s.db.WithContext(ctx), actor.UserID, bookID)
	if err != nil {
		return storeErr("RemoveFavorite", err)
	}
	if !found {
		return ErrFavoriteNotFound
	}
	return nil
}

func (s *readerService) ListFavorites(ctx context.Context, actor models.Actor) ([]models.Favorite, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	favs, err := s.repos.Favorites.ListByUser(s.db.WithContext(ctx), actor.UserID)
	if err != nil {
		return nil, storeErr("ListFavorites", err)
	}
	return favs, nil
}

// ─── Reading Goals ────────────────────────────────────────────────────────────

func monthWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// CreateGoal sets a books-per-month target for the current calendar month (UTC).
func (s *readerService) CreateGoal(ctx context.Context, actor models.Actor, target int) (*models.ReadingGoal, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	if target <= 0 {
		return nil, ErrInvalidGoal
	}
	start, end := monthWindow(s.now())

	db := s.db.WithContext(ctx)
	active, err := s.repos.Goals.ListByUser(db, actor.UserID, models.GoalStatusActive)
	if err != nil {
		return nil, storeErr("CreateGoal", err)
	}
	for _, g := range active {
		if g.GoalType == models.GoalTypeBooksPerMonth && g.StartDate.Equal(start) {
			return nil, ErrGoalExists
		}
	}

	goal := &models.ReadingGoal{
		UserID:      actor.UserID,
		GoalType:    models.GoalTypeBooksPerMonth,
		TargetValue: target,
		StartDate:   start,
		EndDate:     end,
		Status:      models.GoalStatusActive,
	}
	if err := s.repos.Goals.Create(db, goal); err != nil {
		return nil, storeErr("CreateGoal", err)
	}
	log.Printf("[INFO] CreateGoal: user %s aims for %d book(s) in %s", actor.UserID, target, start.Format("2006-01"))
	return goal, nil
}

// ListGoals returns the actor's active goals with their progress. A goal whose
// target has been met is marked completed and still returned this once.
func (s *readerService) ListGoals(ctx context.Context, actor models.Actor) ([]models.ReadingGoal, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	db := s.db.WithContext(ctx)
	goals, err := s.repos.Goals.ListByUser(db, actor.UserID, models.GoalStatusActive)
	if err != nil {
		return nil, storeErr("ListGoals", err)
	}
	for i := range goals {
		g := &goals[i]
		read, err := s.repos.Loans.ListReturnedBetween(db, actor.UserID, g.StartDate, g.EndDate)
		if err != nil {
			return nil, storeErr("ListGoals", err)
		}
		g.CurrentValue = len(read)
		if g.CurrentValue >= g.TargetValue {
			if _, err := s.repos.Goals.UpdateStatus(db, g.ID, models.GoalStatusCompleted); err != nil {
				return nil, storeErr("ListGoals", err)
			}
			g.Status = models.GoalStatusCompleted
		}
	}
	return goals, nil
}

// ─── Statistics ───────────────────────────────────────────────────────────────

// ReadingStats summarises a member's loan history. The favourite genre is the
// one borrowed most often, ties broken alphabetically.
func (s *readerService) ReadingStats(ctx context.Context, actor models.Actor, userID uuid.UUID) (*ReadingStats, error) {
	if err := requireSelfOrAdmin(actor, userID); err != nil {
		return nil, err
	}
	loans, err := s.repos.Loans.ListByUser(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, storeErr("ReadingStats", err)
	}

	now := s.now()
	stats := &ReadingStats{}
	genres := map[string]int{}
	for _, l := range loans {
		switch rules.EffectiveStatus(l, now) {
		case models.LoanStatusReturned:
			stats.TotalBooksRead++
		case models.LoanStatusOverdue:
			stats.CurrentlyReading++
			stats.OverdueBooks++
		default:
			stats.CurrentlyReading++
		}
		if l.Book.Genre != "" {
			genres[l.Book.Genre]++
		}
	}

	names := make([]string, 0, len(genres))
	for g := range genres {
		names = append(names, g)
	}
	sort.Strings(names)
	best := 0
	for _, g := range names {
		if genres[g] > best {
			best = genres[g]
			stats.FavoriteGenre = g
		}
	}
	return stats, nil
}
