package room

import (
	"context"
	"errors"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("room closed")

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Role     engine.Role
	Outbox   chan engine.Envelope // where this client wants to receive envelopes
}

func (Join) isRoomMsg() {}

// Leave removes the subscription only if Outbox still identifies it, so a
// late leave from a replaced connection cannot remove its successor.
type Leave struct {
	ClientID string
	Outbox   chan engine.Envelope
}

func (Leave) isRoomMsg() {}

type Publish struct {
	Env engine.Envelope
}

func (Publish) isRoomMsg() {}

// Retire stops the room if nobody is subscribed. Reply receives true when it did.
type Retire struct {
	Reply chan bool
}

func (Retire) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	EventID    string
	NumClients int
	Roles      map[engine.Role]int
	Published  uint64
}

// Tapped is an envelope offered to the room tap after fan-out.
type Tapped struct {
	EventID string
	Env     engine.Envelope
}

type Options struct {
	InboxSize int
	Logger    *zap.Logger
	// Tap, when set, receives every published envelope. Sends never block;
	// envelopes are dropped when the tap is full.
	Tap chan<- Tapped
	// OnEmpty runs on its own goroutine whenever the last subscriber leaves.
	OnEmpty func(eventID string)
}

type subscriber struct {
	role   engine.Role
	outbox chan engine.Envelope
}

type Room struct {
	eventID   string
	inbox     chan Msg
	clients   map[string]subscriber
	published uint64
	tap       chan<- Tapped
	onEmpty   func(string)
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRoom(parent context.Context, eventID string, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Room{
		eventID: eventID,
		inbox:   make(chan Msg, opts.InboxSize),
		clients: make(map[string]subscriber),
		tap:     opts.Tap,
		onEmpty: opts.OnEmpty,
		log:     opts.Logger.With(zap.String("event_id", eventID)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				if prev, ok := r.clients[msg.ClientID]; ok && prev.outbox != msg.Outbox {
					// Reconnect under the same id replaces the old subscription.
					close(prev.outbox)
				}
				r.clients[msg.ClientID] = subscriber{role: msg.Role, outbox: msg.Outbox}
				r.log.Debug("subscriber joined",
					zap.String("client_id", msg.ClientID),
					zap.String("role", string(msg.Role)),
					zap.Int("subscribers", len(r.clients)))

			case Leave:
				sub, ok := r.clients[msg.ClientID]
				if !ok || sub.outbox != msg.Outbox {
					break
				}
				close(sub.outbox)
				delete(r.clients, msg.ClientID)
				r.log.Debug("subscriber left",
					zap.String("client_id", msg.ClientID),
					zap.Int("subscribers", len(r.clients)))
				r.notifyIfEmpty()

			case Publish:
				r.published++
				r.broadcast(msg.Env)
				r.offerTap(msg.Env)

			case GetState:
				msg.Reply <- r.view()

			case Retire:
				if len(r.clients) > 0 {
					msg.Reply <- false
					break
				}
				msg.Reply <- true
				r.shutdown()
				return

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, sub := range r.clients {
		close(sub.outbox) // Tell client no more envelopes
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(env engine.Envelope) {
	dropped := false
	for id, sub := range r.clients {
		select {
		case sub.outbox <- env:
			//ok
		default:
			// Subscriber is slow/full - drop them.
			r.log.Warn("dropping slow subscriber",
				zap.String("client_id", id),
				zap.String("role", string(sub.role)))
			close(sub.outbox)
			delete(r.clients, id)
			dropped = true
		}
	}
	if dropped {
		r.notifyIfEmpty()
	}
}

func (r *Room) offerTap(env engine.Envelope) {
	if r.tap == nil {
		return
	}
	select {
	case r.tap <- Tapped{EventID: r.eventID, Env: env}:
	default:
		r.log.Warn("tap full, envelope not archived", zap.String("kind", string(env.Kind)))
	}
}

func (r *Room) notifyIfEmpty() {
	if len(r.clients) > 0 || r.onEmpty == nil {
		return
	}
	go r.onEmpty(r.eventID)
}

func (r *Room) view() View {
	roles := make(map[engine.Role]int)
	for _, sub := range r.clients {
		roles[sub.role]++
	}
	return View{
		EventID:    r.eventID,
		NumClients: len(r.clients),
		Roles:      roles,
		Published:  r.published,
	}
}

// Expose the inbox so tests or the hub can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has stopped.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) EventID() string { return r.eventID }

func (r *Room) send(ctx context.Context, m Msg) error {
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) Publish(ctx context.Context, env engine.Envelope) error {
	return r.send(ctx, Publish{Env: env})
}

func (r *Room) Leave(ctx context.Context, clientID string, outbox chan engine.Envelope) error {
	return r.send(ctx, Leave{ClientID: clientID, Outbox: outbox})
}

func (r *Room) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
