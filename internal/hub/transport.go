package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/participant"
	"github.com/DoyleJ11/match-control-backend/internal/room"
)

const leaveTimeout = time.Second

// Transport binds participants running in this process directly to hub rooms.
type Transport struct {
	hub    *Hub
	buffer int
}

func NewTransport(h *Hub, buffer int) *Transport {
	if buffer <= 0 {
		buffer = 32
	}
	return &Transport{hub: h, buffer: buffer}
}

func (t *Transport) Bind(ctx context.Context, eventID, clientID string, role engine.Role) (participant.Binding, error) {
	out := make(chan engine.Envelope, t.buffer)
	rm, err := t.hub.Join(ctx, eventID, clientID, role, out)
	if err != nil {
		return nil, err
	}
	return &binding{room: rm, clientID: clientID, out: out}, nil
}

type binding struct {
	room     *room.Room
	clientID string
	out      chan engine.Envelope
	once     sync.Once
	err      error
}

func (b *binding) Publish(ctx context.Context, env engine.Envelope) error {
	return b.room.Publish(ctx, env)
}

func (b *binding) Messages() <-chan engine.Envelope { return b.out }

func (b *binding) Close() error {
	b.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		err := b.room.Leave(ctx, b.clientID, b.out)
		if errors.Is(err, room.ErrClosed) {
			// room already stopped and closed every outbox
			err = nil
		}
		b.err = err
	})
	return b.err
}
