package service

import "time"

// Options configures a Service. It generalizes the reference
// implementation's single-field KOptions with the submit queue's
// bounded capacity, which the design notes call out explicitly as a
// tunable (the reference defaults it to 1).
type Options struct {
	// Timeout is how long Call waits for a response before the
	// waiter is cancelled and ErrTimeout is returned.
	Timeout time.Duration
	// SubmitQueueDepth bounds the channel through which Call and
	// cancellations reach the event loop.
	SubmitQueueDepth int
}

// DefaultOptions returns the options a caller gets if it passes the
// zero value.
func DefaultOptions() Options {
	return Options{
		Timeout:          15 * time.Second,
		SubmitQueueDepth: 1,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions().Timeout
	}
	if o.SubmitQueueDepth <= 0 {
		o.SubmitQueueDepth = DefaultOptions().SubmitQueueDepth
	}
	return o
}
