package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/doorgate/internal/models"
)

type RegisterDeviceRequest struct {
	OwnerID    uuid.UUID `json:"owner_id" binding:"required"`
	PushToken  string    `json:"push_token" binding:"required,min=20"`
	Platform   string    `json:"platform" binding:"required,oneof=android ios"`
	DeviceName string    `json:"device_name"`
	AppVersion string    `json:"app_version"`
}

type UnregisterDeviceRequest struct {
	OwnerID   uuid.UUID `json:"owner_id" binding:"required"`
	PushToken string    `json:"push_token" binding:"required"`
}

type DeviceResponse struct {
	ID           uuid.UUID `json:"id"`
	Platform     string    `json:"platform"`
	DeviceName   string    `json:"device_name,omitempty"`
	AppVersion   string    `json:"app_version,omitempty"`
	TokenPreview string    `json:"token_preview"`
	CreatedAt    string    `json:"created_at"`
}

func NewDeviceResponse(d *models.DeviceRegistration) DeviceResponse {
	return DeviceResponse{
		ID:           d.ID,
		Platform:     string(d.Platform),
		DeviceName:   d.DeviceName,
		AppVersion:   d.AppVersion,
		TokenPreview: d.TokenPreview(),
		CreatedAt:    d.CreatedAt.Format(time.RFC3339),
	}
}

type NotifyRequest struct {
	Title string            `json:"title" binding:"required"`
	Body  string            `json:"body" binding:"required"`
	Data  map[string]string `json:"data"`
}

type UploadResponse struct {
	URL string `json:"url"`
}
