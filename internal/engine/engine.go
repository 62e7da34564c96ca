package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownKind = errors.New("unknown message kind")
var ErrMalformedPayload = errors.New("malformed payload")
var ErrInvalidRole = errors.New("invalid role")
var ErrInvalidTarget = errors.New("invalid target")

type Role string

const (
	RoleMaster   Role = "master"
	RoleOperator Role = "operator"
	RoleDisplay  Role = "display"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleMaster, RoleOperator, RoleDisplay:
		return Role(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// Target selects which roles accept a command. TargetAll is the wildcard.
type Target string

const (
	TargetAll      Target = "all"
	TargetMaster   Target = Target(RoleMaster)
	TargetOperator Target = Target(RoleOperator)
	TargetDisplay  Target = Target(RoleDisplay)
)

func ParseTarget(raw string) (Target, error) {
	switch Target(raw) {
	case TargetAll, TargetMaster, TargetOperator, TargetDisplay:
		return Target(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
}

func (t Target) Matches(role Role) bool {
	return t == TargetAll || Role(t) == role
}

type Kind string

const (
	KindMasterCommand   Kind = "master_command"
	KindStateSync       Kind = "state_sync"
	KindRefereeConflict Kind = "referee_conflict"
)

func (k Kind) Known() bool {
	switch k {
	case KindMasterCommand, KindStateSync, KindRefereeConflict:
		return true
	}
	return false
}

// Command kinds with a meaning to the core. Any other kind is passed through
// to the inbox untouched.
const (
	CmdSetLock       = "SET_LOCK"
	CmdTriggerEffect = "TRIGGER_EFFECT"
)

// Envelope is the only thing that crosses the room. Payload stays raw until a
// receiver decodes it, so every subscriber builds its own copy of the state.
type Envelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Sender  string          `json:"sender,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type CommandMessage struct {
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data,omitempty"`
	Target Target          `json:"target"`
}

type ConflictReport struct {
	Message string `json:"message"`
}

type StateSync struct {
	State GameState `json:"state"`
}

type LockData struct {
	Locked bool `json:"locked"`
}

func NewCommandEnvelope(kind string, data any, target Target) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode command data: %w", err)
	}
	payload, err := json.Marshal(CommandMessage{Kind: kind, Data: raw, Target: target})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode command: %w", err)
	}
	// Run the receiver-side validation so nothing malformed leaves this client.
	if _, err := DecodeCommand(payload); err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: KindMasterCommand, Payload: payload}, nil
}

func NewStateSyncEnvelope(state GameState) (Envelope, error) {
	if state == nil {
		return Envelope{}, fmt.Errorf("%w: state is nil", ErrMalformedPayload)
	}
	payload, err := json.Marshal(StateSync{State: state})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode state: %w", err)
	}
	return Envelope{Kind: KindStateSync, Payload: payload}, nil
}

func NewConflictEnvelope(message string) (Envelope, error) {
	payload, err := json.Marshal(ConflictReport{Message: message})
	if err != nil {
		return Envelope{}, fmt.Errorf("encode conflict: %w", err)
	}
	return Envelope{Kind: KindRefereeConflict, Payload: payload}, nil
}
