package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/burst"
	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/pkg/dto"
)

type RecognitionHandler struct {
	gate     *gate.Service
	db       storage.Store
	maxBytes int64
}

// NewRecognitionHandler returns a handler; a nil service answers 503.
func NewRecognitionHandler(svc *gate.Service, db storage.Store, maxBytes int64) *RecognitionHandler {
	return &RecognitionHandler{gate: svc, db: db, maxBytes: maxBytes}
}

func (h *RecognitionHandler) available(c *gin.Context) bool {
	if h.gate == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recognition pipeline not initialized"})
		return false
	}
	return true
}

func (h *RecognitionHandler) ownerExists(c *gin.Context, ownerID uuid.UUID) bool {
	if !allowOwner(c, ownerID) {
		return false
	}
	o, err := h.db.GetOwner(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return false
	}
	if o == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "owner not found"})
		return false
	}
	return true
}

// Burst accepts a multipart burst: repeated "frames" files and an "owner_id" field.
func (h *RecognitionHandler) Burst(c *gin.Context) {
	if !h.available(c) {
		return
	}
	ownerID, err := uuid.Parse(c.PostForm("owner_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	if !h.ownerExists(c, ownerID) {
		return
	}

	files := form.File["frames"]
	frames := make([]burst.Frame, 0, len(files))
	for i, fh := range files {
		if fh.Size > h.maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("frame %s too large", fh.Filename)})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read frame failed"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read frame failed"})
			return
		}
		id := fh.Filename
		if id == "" {
			id = fmt.Sprintf("frame_%d", i+1)
		}
		frames = append(frames, burst.Frame{ID: id, Data: data})
	}

	out, err := h.gate.SubmitBurst(c.Request.Context(), ownerID, frames)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewRecognitionResponse(out))
}

// Detect resolves a visitor from already uploaded image URLs.
func (h *RecognitionHandler) Detect(c *gin.Context) {
	if !h.available(c) {
		return
	}
	var req dto.DetectRequest
	if v := c.Query("owner_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
			return
		}
		req.OwnerID = id
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.ownerExists(c, req.OwnerID) {
		return
	}

	out, err := h.gate.DetectVisitor(c.Request.Context(), req.OwnerID, req.Images)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewRecognitionResponse(out))
}
