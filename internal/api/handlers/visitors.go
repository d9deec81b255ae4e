package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorgate/internal/gate"
	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/pkg/dto"
)

type VisitorHandler struct {
	db       storage.Store
	enroller *gate.Enroller
	maxBytes int64
}

// NewVisitorHandler returns a handler; a nil enroller makes face enrollment answer 503.
func NewVisitorHandler(db storage.Store, enroller *gate.Enroller, maxBytes int64) *VisitorHandler {
	return &VisitorHandler{db: db, enroller: enroller, maxBytes: maxBytes}
}

func (h *VisitorHandler) Create(c *gin.Context) {
	var req dto.VisitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v := &models.Visitor{Name: req.Name, ProfileImageURL: req.ProfileImageURL}
	if err := h.db.CreateVisitor(c.Request.Context(), v); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewVisitorResponse(v, 0))
}

func (h *VisitorHandler) List(c *gin.Context) {
	visitors, err := h.db.ListVisitors(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.VisitorResponse, 0, len(visitors))
	for i := range visitors {
		faceCount, _ := h.db.CountFaceTemplates(c.Request.Context(), visitors[i].ID)
		resp = append(resp, dto.NewVisitorResponse(&visitors[i], faceCount))
	}
	c.JSON(http.StatusOK, gin.H{"visitors": resp, "total": len(resp)})
}

func (h *VisitorHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.db.GetVisitor(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "visitor not found"})
		return
	}
	faceCount, _ := h.db.CountFaceTemplates(c.Request.Context(), id)
	c.JSON(http.StatusOK, dto.NewVisitorResponse(v, faceCount))
}

func (h *VisitorHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.VisitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	v := &models.Visitor{ID: id, Name: req.Name, ProfileImageURL: req.ProfileImageURL}
	updated, err := h.db.UpdateVisitor(c.Request.Context(), v)
	if err != nil {
		writeError(c, err)
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"error": "visitor not found"})
		return
	}
	h.reload(c)

	stored, err := h.db.GetVisitor(c.Request.Context(), id)
	if err != nil || stored == nil {
		writeError(c, gate.ErrVisitorNotFound)
		return
	}
	faceCount, _ := h.db.CountFaceTemplates(c.Request.Context(), id)
	c.JSON(http.StatusOK, dto.NewVisitorResponse(stored, faceCount))
}

func (h *VisitorHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.db.DeleteVisitor(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "visitor not found"})
		return
	}
	h.reload(c)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// AddFace enrolls a multipart "image" as a face template of the visitor.
func (h *VisitorHandler) AddFace(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.enroller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision pipeline not initialized"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()
	if header.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	t, err := h.enroller.Enroll(c.Request.Context(), id, imageData, imageContentType(header.Header.Get("Content-Type"), imageData))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewFaceTemplateResponse(t))
}

// reload refreshes the gallery after a visitor's name or templates changed.
func (h *VisitorHandler) reload(c *gin.Context) {
	if h.enroller == nil {
		return
	}
	if err := h.enroller.Reload(c.Request.Context()); err != nil {
		slog.Error("reload gallery", "error", err)
	}
}
