package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-library/internal/models"
)

type FineRepository interface {
	Create(db *gorm.DB, fine *models.Fine) error
	List(db *gorm.DB, status models.FineStatus) ([]models.Fine, error)
	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Fine, error)
	MarkPaid(db *gorm.DB, id uuid.UUID, paidAt time.Time) (bool, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Fine, error)
}

type FavoriteRepository interface {
	Create(db *gorm.DB, fav *models.Favorite) error
	Delete(db *gorm.DB, userID, bookID uuid.UUID) (bool, error)
	Exists(db *gorm.DB, userID, bookID uuid.UUID) (bool, error)
	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Favorite, error)
}

type GoalRepository interface {
	Create(db *gorm.DB, goal *models.ReadingGoal) error
	ListByUser(db *gorm.DB, userID uuid.UUID, status models.GoalStatus) ([]models.ReadingGoal, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, status models.GoalStatus) (bool, error)
}

type fineRepository struct {
	db *gorm.DB
}

func NewFineRepository(db *gorm.DB) FineRepository {
	return &fineRepository{db: db}
}

func (r *fineRepository) Create(db *gorm.DB, fine *models.Fine) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(fine).Error
}

// List returns fines with status, or all fines when status is empty.
func (r *fineRepository) List(db *gorm.DB, status models.FineStatus) ([]models.Fine, error) {
	if db == nil {
		db = r.db
	}
	q := db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var fines []models.Fine
	if err := q.Find(&fines).Error; err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *fineRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fines []models.Fine
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&fines).Error; err != nil {
		return nil, err
	}
	return fines, nil
}

func (r *fineRepository) MarkPaid(db *gorm.DB, id uuid.UUID, paidAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Fine{}).
		Where("id = ? AND status = ?", id, models.FineStatusPending).
		Updates(map[string]interface{}{
			"status":    models.FineStatusPaid,
			"paid_date": paidAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *fineRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Fine, error) {
	if db == nil {
		db = r.db
	}
	var fine models.Fine
	if err := db.First(&fine, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &fine, nil
}

type favoriteRepository struct {
	db *gorm.DB
}

func NewFavoriteRepository(db *gorm.DB) FavoriteRepository {
	return &favoriteRepository{db: db}
}

func (r *favoriteRepository) Create(db *gorm.DB, fav *models.Favorite) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(fav).Error
}

func (r *favoriteRepository) Delete(db *gorm.DB, userID, bookID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Favorite{}, "user_id = ? AND book_id = ?", userID, bookID)
	return res.RowsAffected > 0, res.Error
}

func (r *favoriteRepository) Exists(db *gorm.DB, userID, bookID uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Favorite{}).Where("user_id = ? AND book_id = ?", userID, bookID).Count(&n).Error
	return n > 0, err
}

func (r *favoriteRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Favorite, error) {
	if db == nil {
		db = r.db
	}
	var favs []models.Favorite
	if err := db.Preload("Book").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&favs).Error; err != nil {
		return nil, err
	}
	return favs, nil
}

type goalRepository struct {
	db *gorm.DB
}

func NewGoalRepository(db *gorm.DB) GoalRepository {
	return &goalRepository{db: db}
}

func (r *goalRepository) Create(db *gorm.DB, goal *models.ReadingGoal) error {
	if db == nil {
		db = r.db
	}
	return db.Create(goal).Error
}

// ListByUser returns the user's goals with status, or all of them when status is empty.
func (r *goalRepository) ListByUser(db *gorm.DB, userID uuid.UUID, status models.GoalStatus) ([]models.ReadingGoal, error) {
	if db == nil {
		db = r.db
	}
	q := db.Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var goals []models.ReadingGoal
	if err := q.Order("start_date DESC").Find(&goals).Error; err != nil {
		return nil, err
	}
	return goals, nil
}

func (r *goalRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, status models.GoalStatus) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.ReadingGoal{}).Where("id = ?", id).Update("status", status)
	return res.RowsAffected > 0, res.Error
}
