package notify

import (
	"context"
	"fmt"

	"github.com/your-org/doorgate/internal/config"
)

// NewTransport builds the push transport named by cfg.Provider.
func NewTransport(ctx context.Context, cfg config.NotifyConfig) (Transport, error) {
	switch cfg.Provider {
	case "fcm":
		return NewFCMTransport(ctx, cfg.CredentialsFile)
	case "log":
		return LogTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}
}
