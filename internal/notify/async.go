package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/doorgate/internal/models"
)

// EventHandler consumes a published visit event.
type EventHandler func(ctx context.Context, ev models.VisitEvent)

// AsyncPublisher delivers visit events to in-process handlers on a detached
// goroutine, so the publishing call never waits on delivery.
type AsyncPublisher struct {
	handlers []EventHandler
	timeout  time.Duration
}

func NewAsyncPublisher(timeout time.Duration, handlers ...EventHandler) *AsyncPublisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncPublisher{handlers: handlers, timeout: timeout}
}

func (p *AsyncPublisher) PublishVisitEvent(_ context.Context, ev models.VisitEvent) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		for _, h := range p.handlers {
			h(ctx, ev)
		}
	}()
	return nil
}

// NotifyHandler adapts a VisitNotifier to an EventHandler that logs failures.
func NotifyHandler(n *VisitNotifier) EventHandler {
	return func(ctx context.Context, ev models.VisitEvent) {
		if _, err := n.HandleVisitEvent(ctx, ev); err != nil {
			slog.Error("notify owner", "visit", ev.VisitID, "owner", ev.OwnerID, "error", err)
		}
	}
}
