package events

const (
	// TopicBookingConfirmed is emitted for bookings stored as confirmed.
	TopicBookingConfirmed = "booking.confirmed"
	// TopicBookingReview is emitted when a paid booking needs manual review.
	TopicBookingReview = "booking.review"
)

// DefaultTopics are forwarded to the broker when no filter is configured.
func DefaultTopics() []string {
	return []string{TopicBookingConfirmed, TopicBookingReview}
}
