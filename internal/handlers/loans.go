package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type issueLoanRequest struct {
	// UserID defaults to the caller. Only admins may lend to someone else.
	UserID string `json:"user_id" binding:"omitempty,uuid"`
}

func (h *LibraryHandler) issueLoan(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	var req issueLoanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	actor := actorOf(c)
	borrower := actor.UserID
	if req.UserID != "" {
		borrower = uuid.MustParse(req.UserID)
	}

	loan, err := h.lib.IssueLoan(c.Request.Context(), actor, bookID, borrower)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

type returnLoanRequest struct {
	ReturnDate *time.Time `json:"return_date"`
}

func (h *LibraryHandler) returnLoan(c *gin.Context) {
	id, ok := pathID(c, "loan")
	if !ok {
		return
	}
	var req returnLoanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	loan, err := h.lib.ReturnLoan(c.Request.Context(), actorOf(c), id, req.ReturnDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

type renewLoanRequest struct {
	RenewalDays int `json:"renewal_days" binding:"omitempty,min=1"`
}

// renewLoan reports refusals as 409 with the reason. /rpc/renew_book is the
// variant that always answers 200 with a tagged outcome.
func (h *LibraryHandler) renewLoan(c *gin.Context) {
	id, ok := pathID(c, "loan")
	if !ok {
		return
	}
	var req renewLoanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	loan, err := h.lib.Renew(c.Request.Context(), actorOf(c), id, req.RenewalDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) getLoan(c *gin.Context) {
	id, ok := pathID(c, "loan")
	if !ok {
		return
	}
	loan, err := h.lib.GetLoan(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func (h *LibraryHandler) listBorrowerLoans(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	loans, err := h.lib.ListBorrowerLoans(c.Request.Context(), actorOf(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *LibraryHandler) listOverdueLoans(c *gin.Context) {
	loans, err := h.lib.ListOverdueLoans(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func (h *LibraryHandler) reconcileOverdue(c *gin.Context) {
	n, err := h.lib.ReconcileOverdue(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_overdue": n})
}

// ─── RPC ──────────────────────────────────────────────────────────────────────

type canRenewRequest struct {
	IssuedBookID string `json:"issued_book_id" binding:"required,uuid"`
}

func (h *LibraryHandler) canRenewBook(c *gin.Context) {
	var req canRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ok, err := h.lib.CanRenewBook(c.Request.Context(), actorOf(c), uuid.MustParse(req.IssuedBookID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ok)
}

type renewBookRequest struct {
	IssuedBookID string `json:"issued_book_id" binding:"required,uuid"`
	RenewalDays  *int   `json:"renewal_days"`
}

func (h *LibraryHandler) renewBook(c *gin.Context) {
	var req renewBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days := 0
	if req.RenewalDays != nil {
		if *req.RenewalDays <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "renewal_days must be positive"})
			return
		}
		days = *req.RenewalDays
	}

	out, err := h.lib.RenewBook(c.Request.Context(), actorOf(c), uuid.MustParse(req.IssuedBookID), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
