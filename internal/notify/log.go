package notify

import (
	"context"
	"log/slog"

	"github.com/your-org/doorgate/internal/models"
)

// LogTransport logs every message and reports it accepted.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, d models.DeviceRegistration, msg Message) (Outcome, error) {
	slog.Info("push (log transport)",
		"owner", d.OwnerID,
		"platform", d.Platform,
		"token", d.TokenPreview(),
		"title", msg.Title,
		"body", msg.Body,
	)
	return OutcomeAccepted, nil
}
