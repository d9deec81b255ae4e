package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/auth"
	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/recognition"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/internal/visit"
)

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, visit.ErrVisitNotFound), errors.Is(err, gate.ErrVisitorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, visit.ErrInvalidTransition), errors.Is(err, storage.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, visit.ErrInvalidVisit), errors.Is(err, burst.ErrEmptyBurst):
		status = http.StatusBadRequest
	case errors.Is(err, burst.ErrNoDecodableFrame),
		errors.Is(err, quality.ErrInvalidFrame),
		errors.Is(err, recognition.ErrDetection):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, recognition.ErrGalleryUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

// allowOwner aborts with 403 unless the caller may act for ownerID.
func allowOwner(c *gin.Context, ownerID uuid.UUID) bool {
	if !auth.CanAccessOwner(c, ownerID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed for this owner"})
		return false
	}
	return true
}
