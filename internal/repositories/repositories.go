package repositories

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-library/internal/models"
)

// Every method takes the *gorm.DB to run on: pass the transaction handle inside
// db.Transaction, or nil to use the repository's own connection.

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByUsername(db *gorm.DB, username string) (*models.User, error)
	List(db *gorm.DB) ([]models.User, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error)
	UpdateRole(db *gorm.DB, id uuid.UUID, role models.UserRole) (bool, error)
	SetActive(db *gorm.DB, id uuid.UUID, active bool) (bool, error)
	Count(db *gorm.DB) (int64, error)
}

// BookFilter narrows a catalogue listing. Zero values match everything.
type BookFilter struct {
	Query         string
	Genre         string
	AvailableOnly bool
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error)
	Delete(db *gorm.DB, id uuid.UUID) (bool, error)
	List(db *gorm.DB, filter BookFilter) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	ClaimCopy(db *gorm.DB, id uuid.UUID) (bool, error)
	ReleaseCopy(db *gorm.DB, id uuid.UUID) (bool, error)
	AdjustCopies(db *gorm.DB, id uuid.UUID, delta int) (bool, error)
	Count(db *gorm.DB) (int64, error)
	SumAvailable(db *gorm.DB) (int64, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time, fine decimal.Decimal) (bool, error)
	ApplyRenewal(db *gorm.DB, id uuid.UUID, expectedCount int, dueDate time.Time) (bool, error)
	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error)
	ListOverdue(db *gorm.DB, now time.Time) ([]models.Loan, error)
	ListReturnedBetween(db *gorm.DB, userID uuid.UUID, from, to time.Time) ([]models.Loan, error)
	CountActiveByUser(db *gorm.DB, userID uuid.UUID) (int64, error)
	CountByBook(db *gorm.DB, bookID uuid.UUID, activeOnly bool) (int64, error)
	CountActive(db *gorm.DB) (int64, error)
	MarkOverdue(db *gorm.DB, now time.Time) (int64, error)
}

type ReservationRepository interface {
	Create(db *gorm.DB, reservation *models.Reservation) error
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Reservation, error)
	GetPendingByBookAndUser(db *gorm.DB, bookID, userID uuid.UUID) (*models.Reservation, error)
	UpdateStatus(db *gorm.DB, id uuid.UUID, from, to models.ReservationStatus) (bool, error)
	ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.Reservation, error)
	ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Reservation, error)
	CountPendingByBook(db *gorm.DB, bookID uuid.UUID) (int64, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(db *gorm.DB, username string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "LOWER(username) = ?", strings.ToLower(strings.TrimSpace(username))).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(db *gorm.DB) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	var users []models.User
	if err := db.Order("last_name, first_name").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.User{}).Where("id = ?", id).Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *userRepository) UpdateRole(db *gorm.DB, id uuid.UUID, role models.UserRole) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.User{}).Where("id = ?", id).Update("role", role)
	return res.RowsAffected > 0, res.Error
}

func (r *userRepository) SetActive(db *gorm.DB, id uuid.UUID, active bool) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.User{}).Where("id = ?", id).Update("is_active", active)
	return res.RowsAffected > 0, res.Error
}

func (r *userRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.User{}).Count(&n).Error
	return n, err
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).Where("id = ?", id).Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

func (r *bookRepository) List(db *gorm.DB, filter BookFilter) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Book{})
	if s := strings.TrimSpace(filter.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(call_number) LIKE ?", like, like, like)
	}
	if g := strings.TrimSpace(filter.Genre); g != "" {
		q = q.Where("LOWER(genre) = ?", strings.ToLower(g))
	}
	if filter.AvailableOnly {
		q = q.Where("available_copies > 0")
	}
	var books []models.Book
	if err := q.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// ClaimCopy takes one available copy. The decrement is conditioned on the
// current value, so it reports false instead of going below zero under a race.
func (r *bookRepository) ClaimCopy(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", id).
		UpdateColumns(map[string]interface{}{
			"available_copies": gorm.Expr("available_copies - 1"),
			"borrow_count":     gorm.Expr("borrow_count + 1"),
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// ReleaseCopy gives one copy back, never past total_copies.
func (r *bookRepository) ReleaseCopy(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies < total_copies", id).
		UpdateColumns(map[string]interface{}{
			"available_copies": gorm.Expr("available_copies + 1"),
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

// AdjustCopies moves total and available together by delta, refusing any change
// that would leave available_copies negative.
func (r *bookRepository) AdjustCopies(db *gorm.DB, id uuid.UUID, delta int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND available_copies + ? >= 0", id, delta).
		UpdateColumns(map[string]interface{}{
			"total_copies":     gorm.Expr("total_copies + ?", delta),
			"available_copies": gorm.Expr("available_copies + ?", delta),
			"updated_at":       time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *bookRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).Count(&n).Error
	return n, err
}

func (r *bookRepository) SumAvailable(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).
		Select("COALESCE(SUM(available_copies), 0)").
		Scan(&n).Error
	return n, err
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

var activeStatuses = []models.LoanStatus{models.LoanStatusIssued, models.LoanStatusOverdue}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND return_date IS NULL", id).
		Updates(map[string]interface{}{
			"return_date": returnedAt,
			"status":      models.LoanStatusReturned,
			"fine_amount": fine,
		})
	return res.RowsAffected == 1, res.Error
}

// ApplyRenewal writes a renewal only if nobody renewed or returned the loan
// since it was read with renewal_count == expectedCount.
func (r *loanRepository) ApplyRenewal(db *gorm.DB, id uuid.UUID, expectedCount int, dueDate time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND renewal_count = ? AND return_date IS NULL", id, expectedCount).
		Updates(map[string]interface{}{
			"due_date":      dueDate,
			"renewal_count": gorm.Expr("renewal_count + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *loanRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	if err := db.Preload("Book").Where("user_id = ?", userID).Order("issue_date DESC").Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// ListOverdue finds unreturned loans past due at now, whatever their stored status.
func (r *loanRepository) ListOverdue(db *gorm.DB, now time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Book").
		Where("return_date IS NULL AND (status = ? OR due_date < ?)", models.LoanStatusOverdue, now).
		Order("due_date").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListReturnedBetween(db *gorm.DB, userID uuid.UUID, from, to time.Time) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.Preload("Book").
		Where("user_id = ? AND return_date IS NOT NULL AND return_date >= ? AND return_date < ?", userID, from, to).
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) CountActiveByUser(db *gorm.DB, userID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).Where("user_id = ? AND status IN ?", userID, activeStatuses).Count(&n).Error
	return n, err
}

func (r *loanRepository) CountByBook(db *gorm.DB, bookID uuid.UUID, activeOnly bool) (int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Loan{}).Where("book_id = ?", bookID)
	if activeOnly {
		q = q.Where("status IN ?", activeStatuses)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func (r *loanRepository) CountActive(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).Where("status IN ?", activeStatuses).Count(&n).Error
	return n, err
}

// MarkOverdue stores the overdue status on every issued loan past due at now.
func (r *loanRepository) MarkOverdue(db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("status = ? AND return_date IS NULL AND due_date < ?", models.LoanStatusIssued, now).
		Update("status", models.LoanStatusOverdue)
	return res.RowsAffected, res.Error
}

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(db *gorm.DB, reservation *models.Reservation) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(reservation).Error
}

func (r *reservationRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res models.Reservation
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&res, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) GetPendingByBookAndUser(db *gorm.DB, bookID, userID uuid.UUID) (*models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res models.Reservation
	err := db.Where("book_id = ? AND user_id = ? AND status = ?", bookID, userID, models.ReservationStatusPending).
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) UpdateStatus(db *gorm.DB, id uuid.UUID, from, to models.ReservationStatus) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (r *reservationRepository) ListByBook(db *gorm.DB, bookID uuid.UUID) ([]models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res []models.Reservation
	if err := db.Where("book_id = ?", bookID).
		Order("request_date ASC").
		Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *reservationRepository) ListByUser(db *gorm.DB, userID uuid.UUID) ([]models.Reservation, error) {
	if db == nil {
		db = r.db
	}
	var res []models.Reservation
	if err := db.Where("user_id = ?", userID).
		Order("request_date DESC").
		Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (r *reservationRepository) CountPendingByBook(db *gorm.DB, bookID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Reservation{}).
		Where("book_id = ? AND status = ?", bookID, models.ReservationStatusPending).
		Count(&n).Error
	return n, err
}
