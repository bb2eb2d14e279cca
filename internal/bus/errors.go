package bus

import "errors"

// Sentinel errors for the change-notification channel.
var (
	// ErrChannelUnavailable indicates that the event channel cannot be
	// reached. Recovered locally via the polling fallback.
	ErrChannelUnavailable = errors.New("change-notification channel is unavailable")

	// ErrSubscriberClosed indicates use of a closed subscriber.
	ErrSubscriberClosed = errors.New("subscriber is closed")
)
