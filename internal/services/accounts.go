package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campus-library/internal/models"
	"campus-library/internal/repositories"
)

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

// AccountService manages library members and their credentials.
type AccountService interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	CreateUser(ctx context.Context, actor models.Actor, in NewUser) (*models.User, error)
	GetUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.User, error)
	ListUsers(ctx context.Context, actor models.Actor) ([]models.User, error)
	UpdateProfile(ctx context.Context, actor models.Actor, in ProfileUpdate) (*models.User, error)
	SetRole(ctx context.Context, actor models.Actor, id uuid.UUID, role models.UserRole) (*models.User, error)
	SetActive(ctx context.Context, actor models.Actor, id uuid.UUID, active bool) (*models.User, error)
}

type NewUser struct {
	Username      string
	Email         string
	FirstName     string
	LastName      string
	ContactNumber *string
	Role          models.UserRole
	Password      string
}

type ProfileUpdate struct {
	FirstName     *string
	LastName      *string
	ContactNumber *string
}

type accountService struct {
	db    *gorm.DB
	users repositories.UserRepository
}

func NewAccountService(db *gorm.DB, users repositories.UserRepository) AccountService {
	return &accountService{db: db, users: users}
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords fail the same way.
func (s *accountService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByUsername(s.db.WithContext(ctx), username)
	if err != nil {
		return nil, lookupErr("Authenticate", err, ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		log.Printf("[WARN] Authenticate: bad password for %q", u.Username)
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}
	return u, nil
}

// CreateUser registers a member. Only admins (or SystemActor) may do this.
func (s *accountService) CreateUser(ctx context.Context, actor models.Actor, in NewUser) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.UserRoleStudent
	}
	u := &models.User{
		Username:      strings.TrimSpace(in.Username),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		ContactNumber: in.ContactNumber,
		Role:          in.Role,
		IsActive:      true,
	}
	if len(u.Username) < 3 || len(u.Username) > 64 ||
		!strings.Contains(u.Email, "@") || len(u.Email) > 255 ||
		u.FirstName == "" || u.LastName == "" ||
		!u.Role.Valid() ||
		len(in.Password) < 8 || len(in.Password) > 72 {
		return nil, ErrInvalidUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = string(hash)

	db := s.db.WithContext(ctx)
	if existing, err := s.users.GetByUsername(db, u.Username); err == nil && existing != nil {
		return nil, ErrDuplicateUser
	}
	if err := s.users.Create(db, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateUser
		}
		return nil, storeErr("CreateUser", err)
	}
	log.Printf("[INFO] CreateUser: created %s %q (id=%s)", u.Role, u.Username, u.ID)
	return u, nil
}

func (s *accountService) GetUser(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.User, error) {
	if err := requireSelfOrAdmin(actor, id); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, lookupErr("GetUser", err, ErrUserNotFound)
	}
	return u, nil
}

func (s *accountService) ListUsers(ctx context.Context, actor models.Actor) ([]models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, storeErr("ListUsers", err)
	}
	return users, nil
}

// UpdateProfile changes the actor's own contact details.
func (s *accountService) UpdateProfile(ctx context.Context, actor models.Actor, in ProfileUpdate) (*models.User, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrForbidden
	}
	fields := map[string]interface{}{}
	if in.FirstName != nil {
		if v := strings.TrimSpace(*in.FirstName); v != "" {
			fields["first_name"] = v
		} else {
			return nil, ErrInvalidUser
		}
	}
	if in.LastName != nil {
		if v := strings.TrimSpace(*in.LastName); v != "" {
			fields["last_name"] = v
		} else {
			return nil, ErrInvalidUser
		}
	}
	if in.ContactNumber != nil {
		fields["contact_number"] = strings.TrimSpace(*in.ContactNumber)
	}

	db := s.db.WithContext(ctx)
	if len(fields) > 0 {
		if _, err := s.users.Update(db, actor.UserID, fields); err != nil {
			return nil, storeErr("UpdateProfile", err)
		}
	}
	u, err := s.users.GetByID(db, actor.UserID)
	if err != nil {
		return nil, lookupErr("UpdateProfile", err, ErrUserNotFound)
	}
	return u, nil
}

// SetRole changes a member's role. Admins cannot demote themselves.
func (s *accountService) SetRole(ctx context.Context, actor models.Actor, id uuid.UUID, role models.UserRole) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidUser
	}
	if id == actor.UserID && role != models.UserRoleAdmin {
		return nil, ErrForbidden
	}
	db := s.db.WithContext(ctx)
	found, err := s.users.UpdateRole(db, id, role)
	if err != nil {
		return nil, storeErr("SetRole", err)
	}
	if !found {
		return nil, ErrUserNotFound
	}
	log.Printf("[INFO] SetRole: user %s is now %s", id, role)
	return s.GetUser(ctx, actor, id)
}

// SetActive enables or disables an account. Disabled members keep their loans
// but cannot borrow or log in.
func (s *accountService) SetActive(ctx context.Context, actor models.Actor, id uuid.UUID, active bool) (*models.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if id == actor.UserID && !active {
		return nil, ErrForbidden
	}
	found, err := s.users.SetActive(s.db.WithContext(ctx), id, active)
	if err != nil {
		return nil, storeErr("SetActive", err)
	}
	if !found {
		return nil, ErrUserNotFound
	}
	log.Printf("[INFO] SetActive: user %s active=%t", id, active)
	return s.GetUser(ctx, actor, id)
}
