package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/your-org/doorgate/internal/models"
)

// FCMTransport sends through Firebase Cloud Messaging.
type FCMTransport struct {
	client *messaging.Client
}

// NewFCMTransport initialises a Firebase app from a service account file.
func NewFCMTransport(ctx context.Context, credentialsFile string) (*FCMTransport, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &FCMTransport{client: client}, nil
}

func (t *FCMTransport) Send(ctx context.Context, d models.DeviceRegistration, msg Message) (Outcome, error) {
	m := &messaging.Message{
		Token: d.PushToken,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	}
	switch d.Platform {
	case models.PlatformAndroid:
		m.Android = &messaging.AndroidConfig{Priority: "high"}
	case models.PlatformIOS:
		m.APNS = &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: "default"}},
		}
	}

	if _, err := t.client.Send(ctx, m); err != nil {
		return classifyFCMError(err), err
	}
	return OutcomeAccepted, nil
}

func classifyFCMError(err error) Outcome {
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
		return OutcomePermanentFailure
	}
	if messaging.IsInvalidArgument(err) {
		if isTokenFault(err) {
			return OutcomePermanentFailure
		}
		// A malformed message is not the device's fault; keep the token.
		slog.Warn("fcm rejected message", "error", err)
	}
	return OutcomeTransientFailure
}

// isTokenFault reports whether an INVALID_ARGUMENT error names the
// registration token rather than the message payload.
func isTokenFault(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "registration token")
}
