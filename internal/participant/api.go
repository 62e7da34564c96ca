package participant

import (
	"context"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
)

// SendCommand publishes a master_command. A SET_LOCK command also sets the
// local lock flag right away.
func (p *Participant) SendCommand(ctx context.Context, kind string, data any, target engine.Target) error {
	return p.callErr(ctx, func(reply chan error) request {
		return sendCommand{ctx: ctx, kind: kind, data: data, target: target, reply: reply}
	})
}

// Override publishes a state_sync and applies it locally without waiting for
// the echo. It clears this participant's conflict warning.
func (p *Participant) Override(ctx context.Context, state engine.GameState) error {
	return p.callErr(ctx, func(reply chan error) request {
		return override{ctx: ctx, state: state, reply: reply}
	})
}

// ReportConflict publishes a referee_conflict. Nothing acknowledges it.
func (p *Participant) ReportConflict(ctx context.Context, message string) error {
	return p.callErr(ctx, func(reply chan error) request {
		return reportConflict{ctx: ctx, message: message, reply: reply}
	})
}

// Patch merges fields into the local state. It is never published and the
// next state_sync overwrites it. Fields that cannot be encoded as JSON are
// rejected and nothing is merged.
func (p *Participant) Patch(fields engine.GameState) error {
	return p.callErr(context.Background(), func(reply chan error) request {
		return patch{fields: fields, reply: reply}
	})
}

func (p *Participant) callErr(ctx context.Context, build func(reply chan error) request) error {
	opErr, err := call(ctx, p, build)
	if err != nil {
		return err
	}
	return opErr
}

// View returns a copy of everything this participant holds. After the
// participant stops it returns the last view.
func (p *Participant) View() engine.View {
	v, err := call(context.Background(), p, func(reply chan engine.View) request {
		return read{reply: reply}
	})
	if err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.final.Snapshot()
	}
	return v
}

func (p *Participant) State() engine.GameState {
	return p.View().State
}

// Warning returns the pending conflict report, if any. Only masters ever hold one.
func (p *Participant) Warning() (string, bool) {
	v := p.View()
	if v.Warning == nil {
		return "", false
	}
	return v.Warning.Message, true
}

func (p *Participant) Status() engine.Status {
	v := p.View()
	return v.Status()
}

// Inbox lists accepted commands not yet consumed, oldest first.
func (p *Participant) Inbox() []engine.CommandMessage {
	return p.View().Inbox
}

// ConsumeOne pops the oldest accepted command.
func (p *Participant) ConsumeOne() (engine.CommandMessage, bool) {
	c, err := call(context.Background(), p, func(reply chan consumed) request {
		return consume{reply: reply}
	})
	if err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.final.ConsumeOne()
	}
	return c.cmd, c.ok
}

// Leave stops message processing and releases the subscription. It is safe
// to call more than once and returns the error from releasing the binding.
func (p *Participant) Leave() error {
	p.cancel()
	<-p.done
	p.log.Info("left room")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeErr
}

// Updates receives a signal after any change to the view. Signals coalesce.
func (p *Participant) Updates() <-chan struct{} { return p.updates }

// Done is closed once the participant has stopped processing.
func (p *Participant) Done() <-chan struct{} { return p.done }

// Err reports why the participant stopped on its own. It is nil while running
// and after Leave.
func (p *Participant) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Participant) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Participant) Role() engine.Role { return p.role }

func (p *Participant) ClientID() string { return p.clientID }

func (p *Participant) EventID() string { return p.eventID }
