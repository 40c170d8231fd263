package booking

import (
	"context"

	"github.com/csfest/vendor-booking/internal/queue"
	queue_publisher "github.com/csfest/vendor-booking/internal/service"
)

// QueueSink publishes flow events to RabbitMQ through the shared
// publisher. It is the production EventSink.
type QueueSink struct{}

// BookingConfirmed publishes to the booking.confirmed queue.
func (QueueSink) BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
	return queue_publisher.PublishBookingConfirmed(ctx, ev)
}

// PaymentOrphaned publishes to the payment.orphaned queue.
func (QueueSink) PaymentOrphaned(ctx context.Context, ev queue.PaymentOrphanedEvent) error {
	return queue_publisher.PublishPaymentOrphaned(ctx, ev)
}
