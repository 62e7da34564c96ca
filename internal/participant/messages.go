package participant

import (
	"context"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
)

type request interface{ isRequest() }

type sendCommand struct {
	ctx    context.Context
	kind   string
	data   any
	target engine.Target
	reply  chan error
}

type override struct {
	ctx   context.Context
	state engine.GameState
	reply chan error
}

type reportConflict struct {
	ctx     context.Context
	message string
	reply   chan error
}

type patch struct {
	fields engine.GameState
	reply  chan error
}

type read struct {
	reply chan engine.View
}

type consume struct {
	reply chan consumed
}

type consumed struct {
	cmd engine.CommandMessage
	ok  bool
}

func (sendCommand) isRequest()    {}
func (override) isRequest()       {}
func (reportConflict) isRequest() {}
func (patch) isRequest()          {}
func (read) isRequest()           {}
func (consume) isRequest()        {}
