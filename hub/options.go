package hub

// Default sizing.
const (
	defaultQueueSize      = 1024
	defaultObserverBuffer = 256
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithQueueSize bounds the number of committed captures waiting for fan-out.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithObserverBuffer bounds the per-observer backlog. An observer whose
// backlog is full is disconnected.
func WithObserverBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.observerBuffer = n
		}
	}
}
