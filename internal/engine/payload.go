package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("json_object", func(fl validator.FieldLevel) bool {
		trimmed := bytes.TrimSpace(fl.Field().Bytes())
		return len(trimmed) > 0 && trimmed[0] == '{'
	})
	return v
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// decode unmarshals raw into wire and runs its validate tags. Any failure is
// reported as ErrMalformedPayload.
func decode(what string, raw json.RawMessage, wire any) error {
	if err := json.Unmarshal(raw, wire); err != nil {
		return malformed("%s: %v", what, err)
	}
	if err := validate.Struct(wire); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return malformed("%s: %s failed %q", what, verrs[0].Field(), verrs[0].Tag())
		}
		return malformed("%s: %v", what, err)
	}
	return nil
}

type commandWire struct {
	Kind   string          `json:"kind" validate:"required"`
	Data   json.RawMessage `json:"data"`
	Target string          `json:"target" validate:"required,oneof=all master operator display"`
}

type lockWire struct {
	Locked *bool `json:"locked" validate:"required"`
}

type stateSyncWire struct {
	State json.RawMessage `json:"state" validate:"required,json_object"`
}

type conflictWire struct {
	Message *string `json:"message" validate:"required"`
}

func DecodeCommand(raw json.RawMessage) (CommandMessage, error) {
	var wire commandWire
	if err := decode("command", raw, &wire); err != nil {
		return CommandMessage{}, err
	}
	if wire.Kind == CmdSetLock {
		if _, err := DecodeLock(wire.Data); err != nil {
			return CommandMessage{}, err
		}
	}
	return CommandMessage{Kind: wire.Kind, Data: wire.Data, Target: Target(wire.Target)}, nil
}

// DecodeLock reads SET_LOCK data. The locked flag is required.
func DecodeLock(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, malformed("lock data missing")
	}
	var wire lockWire
	if err := decode("lock data", raw, &wire); err != nil {
		return false, err
	}
	return *wire.Locked, nil
}

func DecodeStateSync(raw json.RawMessage) (StateSync, error) {
	var wire stateSyncWire
	if err := decode("state_sync", raw, &wire); err != nil {
		return StateSync{}, err
	}
	state, err := ParseState(wire.State)
	if err != nil {
		return StateSync{}, malformed("state_sync: %v", err)
	}
	return StateSync{State: state}, nil
}

func DecodeConflict(raw json.RawMessage) (ConflictReport, error) {
	var wire conflictWire
	if err := decode("referee_conflict", raw, &wire); err != nil {
		return ConflictReport{}, err
	}
	return ConflictReport{Message: *wire.Message}, nil
}
