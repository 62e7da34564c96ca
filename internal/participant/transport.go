package participant

import (
	"context"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
)

// Binding is one subscription to one room.
//
// Messages is closed when the subscription ends, whether by Close, by the
// room dropping the subscriber, or by the underlying connection failing.
// Every envelope a Binding publishes is delivered back to it as well.
type Binding interface {
	Publish(ctx context.Context, env engine.Envelope) error
	Messages() <-chan engine.Envelope
	Close() error
}

// Transport creates bindings. Implementations must keep rooms isolated and
// deliver one publisher's envelopes to each subscriber in publish order.
type Transport interface {
	Bind(ctx context.Context, eventID, clientID string, role engine.Role) (Binding, error)
}
