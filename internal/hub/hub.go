package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/room"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type EnsureRoom struct {
	Code  string
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// JoinRoom ensures the room and registers the subscriber in one hub step, so
// a room being retired can never swallow the join.
type JoinRoom struct {
	Code     string
	ClientID string
	Role     engine.Role
	Outbox   chan engine.Envelope
	Reply    chan *room.Room
}

// RemoveRoom stops a room whatever its subscriber count. Every subscription
// in it ends. Reply receives false when no room existed.
type RemoveRoom struct {
	Code  string
	Reply chan bool
}

type ListRooms struct {
	Reply chan []string
}

type roomEmpty struct {
	Code string
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (JoinRoom) isHubMsg()    {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (roomEmpty) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithTap forwards every envelope published in any room to tap.
func WithTap(tap chan<- room.Tapped) Option {
	return func(h *Hub) { h.tap = tap }
}

func WithRoomInboxSize(n int) Option {
	return func(h *Hub) { h.roomInbox = n }
}

type Hub struct {
	inbox     chan HubMsg
	rooms     map[string]*room.Room
	tap       chan<- room.Tapped
	roomInbox int
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				msg.Reply <- h.ensure(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case JoinRoom:
				rm := h.ensure(msg.Code)
				select {
				case rm.Inbox() <- room.Join{ClientID: msg.ClientID, Role: msg.Role, Outbox: msg.Outbox}:
					msg.Reply <- rm
				case <-rm.Done():
					msg.Reply <- nil
				}

			case RemoveRoom:
				rm := h.rooms[msg.Code]
				if rm != nil {
					stop(rm)
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("event_id", msg.Code))
				}
				msg.Reply <- rm != nil

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					codes = append(codes, code)
				}
				msg.Reply <- codes

			case roomEmpty:
				rm := h.rooms[msg.Code]
				if rm == nil {
					break
				}
				if retire(rm) {
					delete(h.rooms, msg.Code)
					h.log.Debug("room retired", zap.String("event_id", msg.Code))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(code string) *room.Room {
	if rm := h.rooms[code]; rm != nil {
		return rm
	}
	rm := room.NewRoom(h.ctx, code, room.Options{
		InboxSize: h.roomInbox,
		Logger:    h.log,
		Tap:       h.tap,
		OnEmpty:   h.notifyEmpty,
	})
	h.rooms[code] = rm
	h.log.Debug("room created", zap.String("event_id", code))
	return rm
}

func (h *Hub) notifyEmpty(code string) {
	select {
	case h.inbox <- roomEmpty{Code: code}:
	case <-h.ctx.Done():
	}
}

// retire asks an idle room to stop. Joins forwarded by the hub are ahead of
// the request in the room inbox, so a true reply means nobody is subscribed.
func retire(rm *room.Room) bool {
	reply := make(chan bool, 1)
	select {
	case rm.Inbox() <- room.Retire{Reply: reply}:
	case <-rm.Done():
		return true
	}
	select {
	case ok := <-reply:
		return ok
	case <-rm.Done():
		return true
	}
}

func stop(rm *room.Room) {
	select {
	case rm.Inbox() <- room.Shutdown{}:
	case <-rm.Done():
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		stop(rm)
	}
	clear(h.rooms)
	h.cancel()
}

func ask[T any](ctx context.Context, h *Hub, build func(reply chan T) HubMsg) (T, error) {
	var zero T
	if h.ctx.Err() != nil {
		return zero, ErrClosed
	}
	reply := make(chan T, 1)
	select {
	case h.inbox <- build(reply):
	case <-h.ctx.Done():
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) Ensure(ctx context.Context, code string) (*room.Room, error) {
	return ask(ctx, h, func(reply chan *room.Room) HubMsg {
		return EnsureRoom{Code: code, Reply: reply}
	})
}

// Get returns nil when no room exists for code.
func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	return ask(ctx, h, func(reply chan *room.Room) HubMsg {
		return GetRoom{Code: code, Reply: reply}
	})
}

func (h *Hub) Join(ctx context.Context, code, clientID string, role engine.Role, outbox chan engine.Envelope) (*room.Room, error) {
	rm, err := ask(ctx, h, func(reply chan *room.Room) HubMsg {
		return JoinRoom{Code: code, ClientID: clientID, Role: role, Outbox: outbox, Reply: reply}
	})
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, ErrClosed
	}
	return rm, nil
}

// Remove ends an event: its room stops and every subscriber's outbox closes.
func (h *Hub) Remove(ctx context.Context, code string) (bool, error) {
	return ask(ctx, h, func(reply chan bool) HubMsg {
		return RemoveRoom{Code: code, Reply: reply}
	})
}

// Rooms lists the event ids with a running room.
func (h *Hub) Rooms(ctx context.Context) ([]string, error) {
	return ask(ctx, h, func(reply chan []string) HubMsg {
		return ListRooms{Reply: reply}
	})
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
	<-h.ctx.Done()
}
