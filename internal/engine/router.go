package engine

import "fmt"

type Status string

const (
	StatusInSync          Status = "in_sync"
	StatusConflictPending Status = "conflict_pending"
)

type Outcome int

const (
	OutcomeDropped Outcome = iota
	OutcomeQueued
	OutcomeReplaced
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQueued:
		return "queued"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeConflict:
		return "conflict"
	default:
		return "dropped"
	}
}

// View is everything one participant holds locally. It is owned by a single
// goroutine; nothing here is safe for concurrent use.
type View struct {
	Role    Role
	State   GameState
	Warning *ConflictReport
	Inbox   []CommandMessage
}

func NewView(role Role) View {
	return View{Role: role, State: DefaultState()}
}

func (v *View) Status() Status {
	if v.Warning != nil {
		return StatusConflictPending
	}
	return StatusInSync
}

// Replace swaps the whole state and clears any pending conflict warning.
func (v *View) Replace(s GameState) {
	v.State = s
	v.Warning = nil
}

// Patch merges top-level fields into the state. It is a local edit only.
// Values are re-encoded first, so the state never holds Go-typed values or
// memory shared with the caller.
func (v *View) Patch(fields GameState) error {
	normalized, err := Normalize(fields)
	if err != nil {
		return fmt.Errorf("patch: %w", err)
	}
	if v.State == nil {
		v.State = GameState{}
	}
	for k, val := range normalized {
		v.State[k] = val
	}
	return nil
}

func (v *View) SetLock(locked bool) {
	if v.State == nil {
		v.State = GameState{}
	}
	v.State[FieldLock] = locked
}

// ConsumeOne pops the oldest queued command.
func (v *View) ConsumeOne() (CommandMessage, bool) {
	if len(v.Inbox) == 0 {
		return CommandMessage{}, false
	}
	cmd := v.Inbox[0]
	v.Inbox[0] = CommandMessage{}
	v.Inbox = v.Inbox[1:]
	return cmd, true
}

// Snapshot returns a copy that shares nothing with v.
func (v *View) Snapshot() View {
	out := View{
		Role:  v.Role,
		State: v.State.Clone(),
		Inbox: append([]CommandMessage(nil), v.Inbox...),
	}
	if v.Warning != nil {
		w := *v.Warning
		out.Warning = &w
	}
	return out
}

// Route applies one received envelope to v. A payload that fails validation
// leaves v untouched. A command for another role is dropped without error.
func Route(v *View, env Envelope) (Outcome, error) {
	switch env.Kind {
	case KindMasterCommand:
		cmd, err := DecodeCommand(env.Payload)
		if err != nil {
			return OutcomeDropped, err
		}
		if !cmd.Target.Matches(v.Role) {
			return OutcomeDropped, nil
		}
		if cmd.Kind == CmdSetLock {
			locked, _ := DecodeLock(cmd.Data)
			v.SetLock(locked)
		}
		v.Inbox = append(v.Inbox, cmd)
		return OutcomeQueued, nil

	case KindStateSync:
		sync, err := DecodeStateSync(env.Payload)
		if err != nil {
			return OutcomeDropped, err
		}
		v.Replace(sync.State)
		return OutcomeReplaced, nil

	case KindRefereeConflict:
		report, err := DecodeConflict(env.Payload)
		if err != nil {
			return OutcomeDropped, err
		}
		if v.Role != RoleMaster {
			return OutcomeDropped, nil
		}
		v.Warning = &report
		return OutcomeConflict, nil

	default:
		return OutcomeDropped, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}
