package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campus-library/internal/auth"
	"campus-library/internal/models"
	"campus-library/internal/services"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *LibraryHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	u, err := h.accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, exp, err := h.tokens.Sign(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       u,
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (h *LibraryHandler) me(c *gin.Context) {
	actor := actorOf(c)
	u, err := h.accounts.GetUser(c.Request.Context(), actor, actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if claims := auth.MustGetClaims(c); claims.ExpiresAt != nil {
		c.Header("X-Token-Expires-At", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	c.JSON(http.StatusOK, u)
}

type updateProfileRequest struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	ContactNumber *string `json:"contact_number"`
}

func (h *LibraryHandler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.accounts.UpdateProfile(c.Request.Context(), actorOf(c), services.ProfileUpdate(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type createUserRequest struct {
	Username      string          `json:"username" binding:"required"`
	Email         string          `json:"email" binding:"required"`
	FirstName     string          `json:"first_name" binding:"required"`
	LastName      string          `json:"last_name" binding:"required"`
	ContactNumber *string         `json:"contact_number"`
	Role          models.UserRole `json:"role"`
	Password      string          `json:"password" binding:"required"`
}

func (h *LibraryHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.accounts.CreateUser(c.Request.Context(), actorOf(c), services.NewUser(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *LibraryHandler) listUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

type setRoleRequest struct {
	Role models.UserRole `json:"role" binding:"required"`
}

func (h *LibraryHandler) setRole(c *gin.Context) {
	id, ok := pathID(c, "user")
	if !ok {
		return
	}
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.accounts.SetRole(c.Request.Context(), actorOf(c), id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *LibraryHandler) setActive(c *gin.Context) {
	id, ok := pathID(c, "user")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.accounts.SetActive(c.Request.Context(), actorOf(c), id, *req.Active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ─── Reader ───────────────────────────────────────────────────────────────────

func (h *LibraryHandler) listFavorites(c *gin.Context) {
	favs, err := h.reader.ListFavorites(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, favs)
}

func (h *LibraryHandler) addFavorite(c *gin.Context) {
	bookID, ok := paramID(c, "book_id")
	if !ok {
		return
	}
	fav, err := h.reader.AddFavorite(c.Request.Context(), actorOf(c), bookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fav)
}

func (h *LibraryHandler) removeFavorite(c *gin.Context) {
	bookID, ok := paramID(c, "book_id")
	if !ok {
		return
	}
	if err := h.reader.RemoveFavorite(c.Request.Context(), actorOf(c), bookID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createGoalRequest struct {
	TargetValue int `json:"target_value" binding:"required,min=1"`
}

func (h *LibraryHandler) createGoal(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	goal, err := h.reader.CreateGoal(c.Request.Context(), actorOf(c), req.TargetValue)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

func (h *LibraryHandler) listGoals(c *gin.Context) {
	goals, err := h.reader.ListGoals(c.Request.Context(), actorOf(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, goals)
}

func (h *LibraryHandler) readingStats(c *gin.Context) {
	userID, ok := pathID(c, "user")
	if !ok {
		return
	}
	stats, err := h.reader.ReadingStats(c.Request.Context(), actorOf(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
