package notify

import (
	"context"
	"fmt"

	"github.com/your-org/doorgate/internal/models"
)

// VisitNotifier turns visit events into owner notifications.
type VisitNotifier struct {
	fanout *Fanout
}

func NewVisitNotifier(f *Fanout) *VisitNotifier {
	return &VisitNotifier{fanout: f}
}

// HandleVisitEvent notifies the visit's owner.
func (n *VisitNotifier) HandleVisitEvent(ctx context.Context, ev models.VisitEvent) (*DeliveryReport, error) {
	return n.fanout.NotifyOwner(ctx, ev.OwnerID, MessageForEvent(ev))
}

// MessageForEvent builds the push text for a visit event.
func MessageForEvent(ev models.VisitEvent) Message {
	who := ev.DetectedLabel
	if who == "" || who == "unknown" {
		who = "An unknown visitor"
	}

	msg := Message{Data: map[string]string{
		"type":      string(ev.Type),
		"visit_id":  ev.VisitID.String(),
		"status":    string(ev.Status),
		"image_url": ev.ImageURL,
	}}
	if ev.VisitorID != nil {
		msg.Data["visitor_id"] = ev.VisitorID.String()
	}

	switch ev.Type {
	case models.VisitEventGranted:
		msg.Title = "Access granted"
		msg.Body = fmt.Sprintf("%s was let in", who)
	case models.VisitEventDenied:
		msg.Title = "Access denied"
		msg.Body = fmt.Sprintf("%s was turned away", who)
	default:
		msg.Title = "Visitor at your door"
		msg.Body = fmt.Sprintf("%s is at your door", who)
	}
	return msg
}
