package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleAdmin   UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == UserRoleStudent || r == UserRoleAdmin
}

type LoanStatus string

const (
	LoanStatusIssued   LoanStatus = "issued"
	LoanStatusOverdue  LoanStatus = "overdue"
	LoanStatusReturned LoanStatus = "returned"
)

// Active reports whether a loan in this status still holds a copy of its book.
func (s LoanStatus) Active() bool {
	return s == LoanStatusIssued || s == LoanStatusOverdue
}

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

type FineStatus string

const (
	FineStatusPending FineStatus = "pending"
	FineStatusPaid    FineStatus = "paid"
)

type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "active"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusAbandoned GoalStatus = "abandoned"
)

const GoalTypeBooksPerMonth = "books_per_month"

// Actor is the identity an operation runs on behalf of. It is built per request
// from the bearer token and never stored.
type Actor struct {
	UserID uuid.UUID
	Role   UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == UserRoleAdmin }

// assignID gives new rows a client-side uuid so the schema works on dialects
// without uuid_generate_v4().
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username      string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email         string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FirstName     string    `gorm:"size:128;not null" json:"first_name"`
	LastName      string    `gorm:"size:128;not null" json:"last_name"`
	ContactNumber *string   `gorm:"size:32" json:"contact_number,omitempty"`
	Role          UserRole  `gorm:"size:16;not null;default:student" json:"role"`
	IsActive      bool      `gorm:"not null" json:"is_active"`
	PasswordHash  string    `gorm:"size:255;not null" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string { return "profiles" }

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}

type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CallNumber      string    `gorm:"size:64;not null;uniqueIndex" json:"call_number"`
	Title           string    `gorm:"size:255;not null;index" json:"title"`
	Author          string    `gorm:"size:255;not null;index" json:"author"`
	Publisher       string    `gorm:"size:255;not null" json:"publisher"`
	Genre           string    `gorm:"size:64;not null;index" json:"genre"`
	ISBN            *string   `gorm:"size:32" json:"isbn,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	Description     *string   `gorm:"type:text" json:"description,omitempty"`
	TotalCopies     int       `gorm:"not null;default:0" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;default:0" json:"available_copies"`
	BorrowCount     int       `gorm:"not null;default:0" json:"borrow_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// Loan is one copy of a book held by one borrower.
type Loan struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BookID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"book_id"`
	Book         Book            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User         User            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	IssueDate    time.Time       `gorm:"not null" json:"issue_date"`
	DueDate      time.Time       `gorm:"not null;index" json:"due_date"`
	ReturnDate   *time.Time      `json:"return_date,omitempty"`
	Status       LoanStatus      `gorm:"size:16;not null;index" json:"status"`
	RenewalCount int             `gorm:"not null;default:0" json:"renewal_count"`
	MaxRenewals  int             `gorm:"not null" json:"max_renewals"`
	FineAmount   decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"fine_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Loan) TableName() string { return "issued_books" }

func (l *Loan) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}

type Reservation struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	BookID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"book_id"`
	Book        Book              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	User        User              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	RequestDate time.Time         `gorm:"not null" json:"request_date"`
	Status      ReservationStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Reservation) TableName() string { return "book_reservations" }

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

type Fine struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID    uuid.UUID       `gorm:"column:issued_book_id;type:uuid;not null;uniqueIndex" json:"issued_book_id"`
	Loan      Loan            `gorm:"foreignKey:LoanID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"amount"`
	Reason    string          `gorm:"size:255;not null" json:"reason"`
	Status    FineStatus      `gorm:"size:16;not null;index" json:"status"`
	PaidDate  *time.Time      `json:"paid_date,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (f *Fine) BeforeCreate(*gorm.DB) error {
	assignID(&f.ID)
	return nil
}

type Favorite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uniq_favorite" json:"user_id"`
	BookID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uniq_favorite" json:"book_id"`
	Book      Book      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"book"`
	CreatedAt time.Time `json:"created_at"`
}

func (Favorite) TableName() string { return "book_favorites" }

func (f *Favorite) BeforeCreate(*gorm.DB) error {
	assignID(&f.ID)
	return nil
}

type ReadingGoal struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	GoalType    string     `gorm:"size:32;not null" json:"goal_type"`
	TargetValue int        `gorm:"not null" json:"target_value"`
	StartDate   time.Time  `gorm:"not null" json:"start_date"`
	EndDate     time.Time  `gorm:"not null" json:"end_date"`
	Status      GoalStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// CurrentValue is derived from returned loans inside the goal window.
	CurrentValue int `gorm:"-" json:"current_value"`
}

func (ReadingGoal) TableName() string { return "reading_goals" }

func (g *ReadingGoal) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&User{},
		&Book{},
		&Loan{},
		&Reservation{},
		&Fine{},
		&Favorite{},
		&ReadingGoal{},
	}
}

// SystemActor is the identity maintenance commands run as.
var SystemActor = Actor{Role: UserRoleAdmin}
