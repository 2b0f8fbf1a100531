package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *LibraryHandler) reserve(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	res, err := h.lib.Reserve(c.Request.Context(), actorOf(c), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *LibraryHandler) listReservationsForBook(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	reservations, err := h.lib.ListReservationsForBook(c.Request.Context(), actorOf(c), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

func (h *LibraryHandler) listMyReservations(c *gin.Context) {
	reservations, err := h.lib.ListMyReservations(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

func (h *LibraryHandler) cancelReservation(c *gin.Context) {
	id, ok := pathID(c, "reservation")
	if !ok {
		return
	}
	res, err := h.lib.CancelReservation(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *LibraryHandler) fulfillReservation(c *gin.Context) {
	id, ok := pathID(c, "reservation")
	if !ok {
		return
	}
	loan, err := h.lib.FulfillReservation(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// ─── Fines ────────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listAllFines(c *gin.Context) {
	fines, err := h.lib.ListFines(c.Request.Context(), actorOf(c), uuid.Nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fines)
}

func (h *LibraryHandler) listUserFines(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	fines, err := h.lib.ListFines(c.Request.Context(), actorOf(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fines)
}

func (h *LibraryHandler) payFine(c *gin.Context) {
	id, ok := pathID(c, "fine")
	if !ok {
		return
	}
	fine, err := h.lib.PayFine(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fine)
}

func (h *LibraryHandler) userOutstanding(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	sum, err := h.lib.OutstandingFines(c.Request.Context(), actorOf(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *LibraryHandler) libraryOutstanding(c *gin.Context) {
	sum, err := h.lib.OutstandingFines(c.Request.Context(), actorOf(c), uuid.Nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *LibraryHandler) dashboard(c *gin.Context) {
	stats, err := h.lib.DashboardStats(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
