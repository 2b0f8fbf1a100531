package repositories

import "gorm.io/gorm"

// Set bundles one repository of each kind over the same connection.
type Set struct {
	Users        UserRepository
	Books        BookRepository
	Loans        LoanRepository
	Reservations ReservationRepository
	Fines        FineRepository
	Favorites    FavoriteRepository
	Goals        GoalRepository
}

func NewSet(db *gorm.DB) Set {
	return Set{
		Users:        NewUserRepository(db),
		Books:        NewBookRepository(db),
		Loans:        NewLoanRepository(db),
		Reservations: NewReservationRepository(db),
		Fines:        NewFineRepository(db),
		Favorites:    NewFavoriteRepository(db),
		Goals:        NewGoalRepository(db),
	}
}
