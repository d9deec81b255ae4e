package models

import (
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// DeviceRegistration binds a push token to an owner.
type DeviceRegistration struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OwnerID    uuid.UUID `json:"owner_id" db:"owner_id"`
	PushToken  string    `json:"-" db:"push_token"`
	Platform   Platform  `json:"platform" db:"platform"`
	DeviceName string    `json:"device_name,omitempty" db:"device_name"`
	AppVersion string    `json:"app_version,omitempty" db:"app_version"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TokenPreview returns a loggable prefix of the push token.
func (d DeviceRegistration) TokenPreview() string {
	if len(d.PushToken) <= 20 {
		return d.PushToken
	}
	return d.PushToken[:20] + "..."
}
