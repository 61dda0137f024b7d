package playback

import "time"

type (
	// Broker carries the messages a Controller publishes. The controller
	// never blocks on the broker: when a channel is full, the message is
	// dropped.
	Broker struct {
		Status chan Status
		Alerts chan Alert
	}

	// Alert tells about a problem found while playing, e.g. an engine
	// failing a command.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
	}

	AlertPriority int
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

func NewBroker() *Broker {
	return &Broker{
		Status: make(chan Status, 1024),
		Alerts: make(chan Alert, 64),
	}
}

// TrySend sends v on c unless c is full and reports whether it did.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
		return true
	default:
		return false
	}
}

// TimeoutReceive waits at most t for a value on c. ok is false on timeout
// and when c is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
