// Package notify delivers owner push notifications to every registered device
// and prunes registrations the push provider reports as permanently invalid.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/doorgate/internal/models"
	"github.com/your-org/doorgate/internal/observability"
)

type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomePermanentFailure Outcome = "permanent_failure"
	OutcomeTransientFailure Outcome = "transient_failure"
)

// Message is a push notification payload.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Transport sends one message to one device.
type Transport interface {
	Send(ctx context.Context, device models.DeviceRegistration, msg Message) (Outcome, error)
}

// Registry lists and removes device registrations.
type Registry interface {
	ListDevicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.DeviceRegistration, error)
	RemoveDevices(ctx context.Context, tokens []string) (int, error)
}

// DeviceResult is the delivery outcome for one device.
type DeviceResult struct {
	DeviceID uuid.UUID       `json:"device_id"`
	Platform models.Platform `json:"platform"`
	Token    string          `json:"token"`
	Outcome  Outcome         `json:"outcome"`
	Error    string          `json:"error,omitempty"`
}

type DeliveryReport struct {
	OwnerID      uuid.UUID      `json:"owner_id"`
	Sent         int            `json:"sent"`
	Failed       int            `json:"failed"`
	Pruned       int            `json:"pruned"`
	Reason       string         `json:"reason,omitempty"`
	Results      []DeviceResult `json:"results"`
	RemovalError string         `json:"removal_error,omitempty"`
}

// Fanout sends a message to all devices of an owner concurrently.
type Fanout struct {
	registry    Registry
	transport   Transport
	concurrency int
	sendTimeout time.Duration
}

func NewFanout(registry Registry, transport Transport, concurrency int, sendTimeout time.Duration) *Fanout {
	if concurrency <= 0 {
		concurrency = 8
	}
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Fanout{registry: registry, transport: transport, concurrency: concurrency, sendTimeout: sendTimeout}
}

// NotifyOwner delivers msg to every device of ownerID. Only a registry lookup
// failure is returned as an error; per-device failures land in the report.
func (f *Fanout) NotifyOwner(ctx context.Context, ownerID uuid.UUID, msg Message) (*DeliveryReport, error) {
	devices, err := f.registry.ListDevicesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	report := &DeliveryReport{OwnerID: ownerID, Results: []DeviceResult{}}
	if len(devices) == 0 {
		report.Reason = "no registered devices"
		slog.Info("no devices to notify", "owner", ownerID)
		return report, nil
	}

	report.Results = make([]DeviceResult, len(devices))
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, d := range devices {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, f.sendTimeout)
			defer cancel()

			outcome, err := f.transport.Send(sendCtx, d, msg)
			res := DeviceResult{DeviceID: d.ID, Platform: d.Platform, Token: d.TokenPreview(), Outcome: outcome}
			if err != nil {
				res.Error = err.Error()
				if outcome == OutcomeAccepted || outcome == "" {
					res.Outcome = OutcomeTransientFailure
				}
			}
			report.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var invalid []string
	for i, res := range report.Results {
		observability.NotificationsSent.WithLabelValues(string(res.Outcome)).Inc()
		switch res.Outcome {
		case OutcomeAccepted:
			report.Sent++
		case OutcomePermanentFailure:
			report.Failed++
			invalid = append(invalid, devices[i].PushToken)
			slog.Warn("device token rejected", "owner", ownerID, "token", res.Token, "error", res.Error)
		default:
			report.Failed++
			slog.Warn("push delivery failed", "owner", ownerID, "token", res.Token, "error", res.Error)
		}
	}

	if len(invalid) > 0 {
		removed, err := f.registry.RemoveDevices(ctx, invalid)
		if err != nil {
			slog.Error("remove invalid devices", "owner", ownerID, "error", err)
			report.RemovalError = err.Error()
		} else {
			report.Pruned = removed
			observability.DevicesPruned.Add(float64(removed))
		}
	}

	slog.Info("owner notified", "owner", ownerID, "sent", report.Sent, "failed", report.Failed, "pruned", report.Pruned)
	return report, nil
}
