package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campus-library/internal/auth"
	"campus-library/internal/events"
	"campus-library/internal/models"
	"campus-library/internal/rules"
	"campus-library/internal/services"
)

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Library  services.LibraryService
	Accounts services.AccountService
	Reader   services.ReaderService
	Tokens   auth.TokenService
	// Lookup lets the auth middleware see role and activation changes. Optional.
	Lookup auth.LookupFunc
	// Hub serves /ws when set.
	Hub *events.Hub
	// Ready reports whether the store can be reached. Optional.
	Ready func(ctx context.Context) error
}

type LibraryHandler struct {
	lib      services.LibraryService
	accounts services.AccountService
	reader   services.ReaderService
	tokens   auth.TokenService
	ready    func(ctx context.Context) error
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	h := &LibraryHandler{
		lib:      d.Library,
		accounts: d.Accounts,
		reader:   d.Reader,
		tokens:   d.Tokens,
		ready:    d.Ready,
	}

	r.GET("/healthz", h.health)
	r.GET("/readyz", h.readiness)
	r.POST("/auth/login", h.login)

	authed := auth.AuthMiddleware(d.Tokens, d.Lookup)
	admin := auth.RequireAdmin()

	if d.Hub != nil {
		r.GET("/ws", authed, events.WSHandler(d.Hub))
	}

	// The two renewal decisions, keyed by issued_book_id.
	rpc := r.Group("/rpc", authed)
	rpc.POST("/can_renew_book", h.canRenewBook)
	rpc.POST("/renew_book", h.renewBook)

	api := r.Group("/api", authed)

	api.GET("/me", h.me)
	api.PATCH("/me", h.updateProfile)

	// Catalogue
	api.GET("/books", h.listBooks)
	api.GET("/books/:id", h.getBook)
	api.POST("/books", admin, h.createBook)
	api.PATCH("/books/:id", admin, h.updateBook)
	api.DELETE("/books/:id", admin, h.deleteBook)
	api.POST("/books/:id/copies", admin, h.adjustCopies)

	// Circulation
	api.POST("/books/:id/loans", h.issueLoan)
	api.GET("/loans/overdue", admin, h.listOverdueLoans)
	api.GET("/loans/:id", h.getLoan)
	api.POST("/loans/:id/return", admin, h.returnLoan)
	api.POST("/loans/:id/renew", h.renewLoan)
	api.GET("/users/:id/loans", h.listBorrowerLoans)

	// Reservations
	api.POST("/books/:id/reservations", h.reserve)
	api.GET("/books/:id/reservations", admin, h.listReservationsForBook)
	api.GET("/reservations/mine", h.listMyReservations)
	api.DELETE("/reservations/:id", h.cancelReservation)
	api.POST("/reservations/:id/fulfill", admin, h.fulfillReservation)

	// Fines
	api.GET("/fines", admin, h.listAllFines)
	api.GET("/fines/outstanding", admin, h.libraryOutstanding)
	api.POST("/fines/:id/pay", admin, h.payFine)
	api.GET("/users/:id/fines", h.listUserFines)
	api.GET("/users/:id/fines/outstanding", h.userOutstanding)

	// Reader
	api.GET("/favorites", h.listFavorites)
	api.POST("/favorites/:book_id", h.addFavorite)
	api.DELETE("/favorites/:book_id", h.removeFavorite)
	api.GET("/goals", h.listGoals)
	api.POST("/goals", h.createGoal)
	api.GET("/users/:id/stats", h.readingStats)

	// Administration
	api.GET("/users", admin, h.listUsers)
	api.POST("/users", admin, h.createUser)
	api.PATCH("/users/:id/role", admin, h.setRole)
	api.PATCH("/users/:id/active", admin, h.setActive)
	api.GET("/admin/dashboard", admin, h.dashboard)
	api.POST("/admin/reconcile-overdue", admin, h.reconcileOverdue)
}

func (h *LibraryHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *LibraryHandler) readiness(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func actorOf(c *gin.Context) models.Actor {
	actor, _ := auth.ActorFrom(c)
	return actor
}

// paramID parses the uuid path parameter name, answering 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// pathID is paramID for the common ":id" parameter, with a friendlier message.
func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrUserInactive):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrLoanNotFound),
		errors.Is(err, services.ErrReservationNotFound),
		errors.Is(err, services.ErrFineNotFound),
		errors.Is(err, services.ErrFavoriteNotFound),
		errors.Is(err, services.ErrGoalNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidBook),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrInvalidGoal),
		errors.Is(err, rules.ErrInvalidRenewalDays),
		errors.Is(err, rules.ErrReturnBeforeIssue),
		errors.Is(err, rules.ErrReturnInFuture):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrCopyAccounting), errors.Is(err, rules.ErrInvalidLoanPeriod):
		return http.StatusInternalServerError
	case errors.Is(err, rules.ErrOutOfStock),
		errors.Is(err, rules.ErrNotEligible),
		errors.Is(err, rules.ErrAlreadyReturned),
		errors.Is(err, services.ErrLoanLimitReached),
		errors.Is(err, services.ErrDuplicateReservation),
		errors.Is(err, services.ErrCopiesAvailable),
		errors.Is(err, services.ErrReservationClosed),
		errors.Is(err, services.ErrDuplicateCallNumber),
		errors.Is(err, services.ErrBookHasActiveLoans),
		errors.Is(err, services.ErrBookHasLoanHistory),
		errors.Is(err, services.ErrInvalidCopies),
		errors.Is(err, services.ErrFinePaid),
		errors.Is(err, services.ErrAlreadyFavorite),
		errors.Is(err, services.ErrGoalExists),
		errors.Is(err, services.ErrDuplicateUser):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status its kind maps to. Store failures
// are not described to the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	switch {
	case status == http.StatusServiceUnavailable:
		c.JSON(status, gin.H{"error": services.ErrStoreUnavailable.Error()})
	case status == http.StatusInternalServerError:
		c.JSON(status, gin.H{"error": "internal error"})
	case rules.Reason(err) != "":
		c.JSON(status, gin.H{"error": err.Error(), "reason": rules.Reason(err)})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}
