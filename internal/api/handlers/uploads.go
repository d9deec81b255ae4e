package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorgate/internal/quality"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/pkg/dto"
)

type UploadHandler struct {
	images   storage.ImageStore
	maxBytes int64
}

func NewUploadHandler(images storage.ImageStore, maxBytes int64) *UploadHandler {
	return &UploadHandler{images: images, maxBytes: maxBytes}
}

// Upload stores a multipart "file" image and returns its URL.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()
	if header.Size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
		return
	}
	if _, err := quality.DecodeFrame(data); err != nil {
		writeError(c, err)
		return
	}

	url, err := h.images.Put(c.Request.Context(), data, imageContentType(header.Header.Get("Content-Type"), data))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.UploadResponse{URL: url})
}

// Image serves a stored capture by key, for image stores without public URLs.
func (h *UploadHandler) Image(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image key required"})
		return
	}
	data, err := h.images.Get(c.Request.Context(), key)
	if errors.Is(err, storage.ErrImageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// imageContentType trusts the declared type only when it names an image.
func imageContentType(declared string, data []byte) string {
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return http.DetectContentType(data)
}
