package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campus-library/internal/repositories"
	"campus-library/internal/services"
)

type createBookRequest struct {
	CallNumber      string  `json:"call_number" binding:"required"`
	Title           string  `json:"title" binding:"required"`
	Author          string  `json:"author" binding:"required"`
	Publisher       string  `json:"publisher"`
	Genre           string  `json:"genre"`
	ISBN            *string `json:"isbn"`
	PublicationYear *int    `json:"publication_year"`
	Description     *string `json:"description"`
	TotalCopies     int     `json:"total_copies" binding:"min=0"`
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.lib.CreateBook(c.Request.Context(), actorOf(c), services.BookInput{
		CallNumber:      req.CallNumber,
		Title:           req.Title,
		Author:          req.Author,
		Publisher:       req.Publisher,
		Genre:           req.Genre,
		ISBN:            req.ISBN,
		PublicationYear: req.PublicationYear,
		Description:     req.Description,
		TotalCopies:     req.TotalCopies,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

type updateBookRequest struct {
	CallNumber      *string `json:"call_number"`
	Title           *string `json:"title"`
	Author          *string `json:"author"`
	Publisher       *string `json:"publisher"`
	Genre           *string `json:"genre"`
	ISBN            *string `json:"isbn"`
	PublicationYear *int    `json:"publication_year"`
	Description     *string `json:"description"`
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}
	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.lib.UpdateBook(c.Request.Context(), actorOf(c), id, services.BookUpdate(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}
	if err := h.lib.DeleteBook(c.Request.Context(), actorOf(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type adjustCopiesRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (h *LibraryHandler) adjustCopies(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}
	var req adjustCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.lib.AdjustCopies(c.Request.Context(), actorOf(c), id, req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, ok := pathID(c, "book")
	if !ok {
		return
	}
	book, err := h.lib.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// listBooks accepts ?q= (title, author or call number), ?genre= and ?available=true.
func (h *LibraryHandler) listBooks(c *gin.Context) {
	filter := repositories.BookFilter{
		Query: c.Query("q"),
		Genre: c.Query("genre"),
	}
	if v := c.Query("available"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "available must be true or false"})
			return
		}
		filter.AvailableOnly = only
	}

	books, err := h.lib.ListBooks(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}
