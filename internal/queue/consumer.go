package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/doorgate/internal/models"
)

// EventHandler processes one visit event. A returned error naks the message
// for redelivery.
type EventHandler func(ctx context.Context, ev models.VisitEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func decodeVisitEvent(data []byte) (models.VisitEvent, error) {
	var ev models.VisitEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode visit event: %w", err)
	}
	if ev.VisitID == uuid.Nil || ev.Type == "" {
		return ev, fmt.Errorf("decode visit event: missing visit id or type")
	}
	return ev, nil
}

func dispatch(ctx context.Context, msg jetstream.Msg, handler EventHandler) error {
	ev, err := decodeVisitEvent(msg.Data())
	if err != nil {
		_ = msg.Term()
		return err
	}
	if err := handler(ctx, ev); err != nil {
		_ = msg.Nak()
		return err
	}
	return msg.Ack()
}

// ConsumeVisitEvents starts a durable, load-balanced consumer on the VISITS
// stream. workerCount goroutines process messages concurrently.
func (c *Consumer) ConsumeVisitEvents(ctx context.Context, consumerName string, handler EventHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, VisitsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", VisitsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    2,
		FilterSubject: VisitsSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch visit events", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				if err := dispatch(ctx, msg, handler); err != nil {
					slog.Error("process visit event", "worker", workerID, "error", err, "subject", msg.Subject())
				}
			}
		}(i)
	}

	slog.Info("visit event consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// liveConsumerConfig describes an ephemeral consumer unique to this process,
// so every API instance sees every event. The server drops it once the
// process stops fetching.
func liveConsumerConfig(prefix string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:              prefix + "-" + uuid.NewString(),
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        1,
		FilterSubject:     VisitsSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Minute,
	}
}

// ConsumeLiveEvents delivers only new events, for broadcasting to connected
// clients of this process.
func (c *Consumer) ConsumeLiveEvents(ctx context.Context, prefix string, handler EventHandler) error {
	stream, err := c.js.Stream(ctx, VisitsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", VisitsStreamName, err)
	}

	cfg := liveConsumerConfig(prefix)
	cons, err := stream.CreateConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.Name, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := dispatch(ctx, msg, handler); err != nil {
					slog.Error("process live event", "error", err)
				}
			}
		}
	}()

	slog.Info("live event consumer started", "consumer", cfg.Name)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
