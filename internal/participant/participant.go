package participant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrDisconnected = errors.New("participant disconnected")
var ErrLeft = errors.New("participant left")
var ErrNoTransport = errors.New("no transport")

type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseJoining      Phase = "joining"
	PhaseJoined       Phase = "joined"
)

type Option func(*Participant)

func WithLogger(l *zap.Logger) Option {
	return func(p *Participant) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClientID fixes the client id, so a reconnect replaces the previous
// subscription instead of adding a second one.
func WithClientID(id string) Option {
	return func(p *Participant) {
		if id != "" {
			p.clientID = id
		}
	}
}

// Participant is one client in one room. A single goroutine owns its view;
// local calls and received envelopes are applied one at a time, in the order
// that goroutine sees them.
type Participant struct {
	clientID string
	eventID  string
	role     engine.Role
	binding  Binding
	requests chan request
	updates  chan struct{}
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	// owned by loop
	view engine.View
	seq  uint64

	mu       sync.Mutex
	phase    Phase
	final    engine.View
	err      error
	closeErr error
}

// Join binds a new participant to the room for eventID. With an empty eventID
// nothing is bound: the participant keeps a local view and every publishing
// call is a no-op.
func Join(ctx context.Context, tr Transport, eventID string, role engine.Role, opts ...Option) (*Participant, error) {
	if _, err := engine.ParseRole(string(role)); err != nil {
		return nil, err
	}

	p := &Participant{
		clientID: uuid.NewString(),
		eventID:  eventID,
		role:     role,
		requests: make(chan request),
		updates:  make(chan struct{}, 1),
		log:      zap.NewNop(),
		done:     make(chan struct{}),
		view:     engine.NewView(role),
		phase:    PhaseDisconnected,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(
		zap.String("event_id", eventID),
		zap.String("client_id", p.clientID),
		zap.String("role", string(role)),
	)
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if eventID == "" {
		p.log.Debug("no event id, participant is not bound")
		go p.loop()
		return p, nil
	}
	if tr == nil {
		p.cancel()
		return nil, ErrNoTransport
	}

	p.setPhase(PhaseJoining)
	b, err := tr.Bind(ctx, eventID, p.clientID, role)
	if err != nil {
		p.setPhase(PhaseDisconnected)
		p.cancel()
		return nil, fmt.Errorf("join %s: %w", eventID, err)
	}
	p.binding = b
	p.setPhase(PhaseJoined)
	p.log.Info("joined room")

	go p.loop()
	return p, nil
}

func (p *Participant) loop() {
	defer p.finish()

	var messages <-chan engine.Envelope
	if p.binding != nil {
		messages = p.binding.Messages()
	}

	for {
		if p.ctx.Err() != nil {
			return
		}
		select {
		case <-p.ctx.Done():
			return

		case env, ok := <-messages:
			if !ok {
				p.log.Warn("subscription ended")
				p.mu.Lock()
				p.err = ErrDisconnected
				p.mu.Unlock()
				return
			}
			p.receive(env)

		case req := <-p.requests:
			p.handle(req)
		}
	}
}

// finish runs on every exit path of loop: the binding is released and the
// final view handed over to readers.
func (p *Participant) finish() {
	var closeErr error
	if p.binding != nil {
		closeErr = p.binding.Close()
	}
	p.mu.Lock()
	p.final = p.view
	p.phase = PhaseDisconnected
	p.closeErr = closeErr
	p.mu.Unlock()
	p.cancel()
	close(p.done)
}

func (p *Participant) receive(env engine.Envelope) {
	outcome, err := engine.Route(&p.view, env)
	if err != nil {
		p.log.Debug("discarding envelope",
			zap.String("kind", string(env.Kind)),
			zap.String("sender", env.Sender),
			zap.Error(err))
		return
	}
	switch outcome {
	case engine.OutcomeDropped:
		return
	case engine.OutcomeConflict:
		p.log.Info("conflict reported", zap.String("sender", env.Sender))
	case engine.OutcomeReplaced:
		p.log.Debug("state replaced", zap.String("sender", env.Sender), zap.Uint64("seq", env.Seq))
	}
	p.notify()
}

func (p *Participant) handle(r request) {
	switch req := r.(type) {
	case sendCommand:
		req.reply <- p.sendCommand(req)

	case override:
		req.reply <- p.override(req)

	case reportConflict:
		req.reply <- p.reportConflict(req)

	case patch:
		err := p.view.Patch(req.fields)
		if err == nil {
			p.notify()
		}
		req.reply <- err

	case read:
		req.reply <- p.view.Snapshot()

	case consume:
		cmd, ok := p.view.ConsumeOne()
		req.reply <- consumed{cmd: cmd, ok: ok}
	}
}

func (p *Participant) sendCommand(req sendCommand) error {
	env, err := engine.NewCommandEnvelope(req.kind, req.data, req.target)
	if err != nil {
		return err
	}
	if p.binding == nil {
		return nil
	}
	pubErr := p.publish(req.ctx, env)

	// The lock flag is applied before the echo comes back. Other kinds only
	// reach this participant through the echo, if the target matches.
	if req.kind == engine.CmdSetLock {
		cmd, _ := engine.DecodeCommand(env.Payload)
		locked, _ := engine.DecodeLock(cmd.Data)
		p.view.SetLock(locked)
		p.notify()
	}
	return pubErr
}

func (p *Participant) override(req override) error {
	env, err := engine.NewStateSyncEnvelope(req.state)
	if err != nil {
		return err
	}
	// Decode our own payload so the local copy has exactly the shape every
	// receiver will build.
	decoded, err := engine.DecodeStateSync(env.Payload)
	if err != nil {
		return err
	}
	if p.binding == nil {
		return nil
	}
	pubErr := p.publish(req.ctx, env)
	p.view.Replace(decoded.State)
	p.notify()
	return pubErr
}

func (p *Participant) reportConflict(req reportConflict) error {
	env, err := engine.NewConflictEnvelope(req.message)
	if err != nil {
		return err
	}
	if p.binding == nil {
		return nil
	}
	return p.publish(req.ctx, env)
}

func (p *Participant) publish(ctx context.Context, env engine.Envelope) error {
	p.seq++
	env.ID = uuid.NewString()
	env.Sender = p.clientID
	env.Seq = p.seq

	pubCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := p.binding.Publish(pubCtx, env); err != nil {
		p.log.Warn("publish failed", zap.String("kind", string(env.Kind)), zap.Error(err))
		return fmt.Errorf("publish %s: %w", env.Kind, err)
	}
	return nil
}

func (p *Participant) notify() {
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *Participant) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func (p *Participant) stoppedErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	return ErrLeft
}

func call[T any](ctx context.Context, p *Participant, build func(reply chan T) request) (T, error) {
	var zero T
	reply := make(chan T, 1)
	select {
	case p.requests <- build(reply):
	case <-p.done:
		return zero, p.stoppedErr()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
