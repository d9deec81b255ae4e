package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/pkg/dto"
)

type OwnerHandler struct {
	db     storage.Store
	tokens *auth.TokenIssuer
}

func NewOwnerHandler(db storage.Store, tokens *auth.TokenIssuer) *OwnerHandler {
	return &OwnerHandler{db: db, tokens: tokens}
}

func (h *OwnerHandler) Register(c *gin.Context) {
	var req dto.RegisterOwnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	o := &models.Owner{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
	}
	if err := h.db.CreateOwner(c.Request.Context(), o); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		writeError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, o)
}

func (h *OwnerHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, err := h.db.GetOwnerByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(c, err)
		return
	}
	if o == nil || !auth.CheckPassword(o.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	h.respondWithToken(c, http.StatusOK, o)
}

func (h *OwnerHandler) respondWithToken(c *gin.Context, status int, o *models.Owner) {
	if h.tokens == nil {
		c.JSON(status, gin.H{"owner": dto.NewOwnerResponse(o)})
		return
	}
	token, exp, err := h.tokens.Issue(o.ID, o.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, dto.AuthResponse{
		Token:     token,
		ExpiresAt: exp.Format(time.RFC3339),
		Owner:     dto.NewOwnerResponse(o),
	})
}
