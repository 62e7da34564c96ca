package engine

import (
	"encoding/json"
	"errors"
	"reflect"
)

const (
	FieldScore = "score"
	FieldLock  = "lock"
	FieldType  = "type"
)

const defaultStateJSON = `{"score":[0,0],"lock":false,"type":"general"}`

// GameState is an open mapping of named fields. Values always have the shapes
// encoding/json produces (float64, string, bool, []any, map[string]any, nil).
type GameState map[string]any

func ParseState(data []byte) (GameState, error) {
	var s GameState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("state is null")
	}
	return s, nil
}

// MustParseState is for literals known to be valid.
func MustParseState(data string) GameState {
	s, err := ParseState([]byte(data))
	if err != nil {
		panic(err)
	}
	return s
}

func DefaultState() GameState {
	return MustParseState(defaultStateJSON)
}

// Normalize re-encodes s so that its values carry decoded JSON shapes. Used on
// states built in Go before they are applied locally. A nil s normalizes to
// an empty state.
func Normalize(s GameState) (GameState, error) {
	if s == nil {
		return GameState{}, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return ParseState(data)
}

func (s GameState) Clone() GameState {
	if s == nil {
		return nil
	}
	out := make(GameState, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return val
	}
}

func (s GameState) Equal(other GameState) bool {
	return reflect.DeepEqual(s, other)
}

func (s GameState) Locked() bool {
	locked, _ := s[FieldLock].(bool)
	return locked
}

func (s GameState) Type() string {
	typ, _ := s[FieldType].(string)
	return typ
}

// Score returns the score pair when the field holds two numbers.
func (s GameState) Score() (home, away int, ok bool) {
	pair, isList := s[FieldScore].([]any)
	if !isList || len(pair) != 2 {
		return 0, 0, false
	}
	h, hok := pair[0].(float64)
	a, aok := pair[1].(float64)
	if !hok || !aok {
		return 0, 0, false
	}
	return int(h), int(a), true
}
