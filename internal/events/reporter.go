package events

import (
	"context"
	"log"
	"time"

	"dispatch-service/pkg/kafka"
)

// Reporter publishes dispatch telemetry and SMS-style notices to Kafka.
// All methods are fire-and-forget: publish failures are logged, never
// surfaced to the flow that reported the event.
type Reporter struct {
	kafka *kafka.Client
}

// NewReporter creates a reporter over the given Kafka client.
func NewReporter(k *kafka.Client) *Reporter {
	return &Reporter{kafka: k}
}

// MobileConfirmationNeeded records that a pickup was deferred pending an
// out-of-band mobile confirmation.
func (r *Reporter) MobileConfirmationNeeded(riderID string) {
	r.publish(kafka.TopicDispatchEvents, riderID, PickupRequestEvent{
		RiderID:            riderID,
		MobileConfirmation: true,
	})
}

// RestrictedLocation records a pickup request outside the served area.
func (r *Reporter) RestrictedLocation(riderID string, lat, lng float64) {
	r.publish(kafka.TopicDispatchEvents, riderID, PickupRequestEvent{
		RiderID:       riderID,
		RestrictedLat: &lat,
		RestrictedLng: &lng,
	})
}

// NoCarsAvailable records a pickup request that found no claimable driver.
// secondCheck distinguishes an empty directory snapshot from losing every
// claim race.
func (r *Reporter) NoCarsAvailable(riderID string, secondCheck bool) {
	r.publish(kafka.TopicDispatchEvents, riderID, PickupRequestEvent{
		RiderID:         riderID,
		NoCarsAvailable: true,
		SecondCheck:     secondCheck,
	})
}

// SMSTripStatus queues an SMS-style trip-status notice for the rider.
func (r *Reporter) SMSTripStatus(riderID, tripID, status string) {
	r.publish(kafka.TopicSMSNotices, riderID, SMSNotice{
		RiderID: riderID,
		TripID:  tripID,
		Status:  status,
	})
}

func (r *Reporter) publish(topic, key string, value any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.kafka.Publish(ctx, topic, key, value); err != nil {
			log.Printf("[events] failed to publish to %s: %v", topic, err)
		}
	}()
}
