package riders

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"dispatch-service/internal/events"
	"dispatch-service/pkg/kafka"
)

// Consumer feeds trip status events from the stream into the rider state
// machine. Events are keyed by rider id at the producer, so each rider's
// notifications arrive in publication order.
type Consumer struct {
	svc   *Service
	kafka *kafka.Client
}

// NewConsumer returns a consumer bound to the rider service.
func NewConsumer(svc *Service, k *kafka.Client) *Consumer {
	return &Consumer{svc: svc, kafka: k}
}

// Start subscribes to the trip status topic and dispatches until ctx ends.
func (c *Consumer) Start(ctx context.Context) {
	c.kafka.Subscribe(ctx, kafka.TopicTripStatus, "rider-notify", c.handle)
}

func (c *Consumer) handle(payload []byte) error {
	var ev events.TripStatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode trip status event: %w", err)
	}

	ctx := context.Background()
	switch ev.Status {
	case events.StatusConfirmed:
		c.svc.NotifyDriverConfirmed(ctx, ev.RiderID)
	case events.StatusArriving:
		c.svc.NotifyDriverArriving(ctx, ev.RiderID)
	case events.StatusEnroute:
		c.svc.NotifyDriverEnroute(ctx, ev.RiderID)
	case events.StatusStarted:
		c.svc.NotifyTripStarted(ctx, ev.RiderID)
	case events.StatusFinished:
		c.svc.NotifyTripFinished(ctx, ev.RiderID)
	case events.StatusDriverCanceled:
		c.svc.NotifyTripCanceled(ctx, ev.RiderID)
	case events.StatusPickupCanceled:
		c.svc.NotifyPickupCanceled(ctx, ev.RiderID, ev.Reason)
	case events.StatusBilled:
		c.svc.NotifyTripBilled(ctx, ev.RiderID)
	default:
		log.Printf("[riders] ignoring trip status %q for %s", ev.Status, ev.RiderID)
	}
	return nil
}
