package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/notify"
	"github.com/your-org/doorgate/internal/storage"
	"github.com/your-org/doorgate/pkg/dto"
)

type DeviceHandler struct {
	db     storage.Store
	fanout *notify.Fanout
}

func NewDeviceHandler(db storage.Store, fanout *notify.Fanout) *DeviceHandler {
	return &DeviceHandler{db: db, fanout: fanout}
}

// Register binds a push token to an owner. Re-registering a token moves it.
func (h *DeviceHandler) Register(c *gin.Context) {
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !allowOwner(c, req.OwnerID) {
		return
	}

	owner, err := h.db.GetOwner(c.Request.Context(), req.OwnerID)
	if err != nil {
		writeError(c, err)
		return
	}
	if owner == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "owner not found"})
		return
	}

	d := &models.DeviceRegistration{
		OwnerID:    req.OwnerID,
		PushToken:  req.PushToken,
		Platform:   models.Platform(req.Platform),
		DeviceName: req.DeviceName,
		AppVersion: req.AppVersion,
	}
	if err := h.db.RegisterDevice(c.Request.Context(), d); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewDeviceResponse(d))
}

func (h *DeviceHandler) Unregister(c *gin.Context) {
	var req dto.UnregisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !allowOwner(c, req.OwnerID) {
		return
	}

	removed, err := h.db.UnregisterDevice(c.Request.Context(), req.OwnerID, req.PushToken)
	if err != nil {
		writeError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *DeviceHandler) List(c *gin.Context) {
	ownerID, ok := parseID(c, "id")
	if !ok || !allowOwner(c, ownerID) {
		return
	}
	devices, err := h.db.ListDevicesByOwner(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		resp = append(resp, dto.NewDeviceResponse(&devices[i]))
	}
	c.JSON(http.StatusOK, gin.H{"devices": resp, "total": len(resp)})
}

// NotifyOwner pushes a free-form message to all of an owner's devices.
func (h *DeviceHandler) NotifyOwner(c *gin.Context) {
	ownerID, ok := parseID(c, "id")
	if !ok || !allowOwner(c, ownerID) {
		return
	}
	var req dto.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.fanout.NotifyOwner(c.Request.Context(), ownerID, notify.Message{
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
