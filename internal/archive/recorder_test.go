package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/hub"
	"github.com/DoyleJ11/match-control-backend/internal/room"
	"github.com/DoyleJ11/match-control-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	mu      sync.Mutex
	states  map[string]json.RawMessage
	entries []store.EventLog
	seen    map[string]bool
	failLog error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{states: map[string]json.RawMessage{}, seen: map[string]bool{}}
}

func (f *fakeArchive) SaveState(_ context.Context, eventID string, state json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[eventID] = state
	return nil
}

func (f *fakeArchive) AppendLog(_ context.Context, entry store.EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLog != nil {
		return f.failLog
	}
	key := entry.EventID + "/" + entry.EnvelopeID
	if f.seen[key] {
		return store.ErrDuplicate
	}
	f.seen[key] = true
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeArchive) snapshot() (map[string]json.RawMessage, []store.EventLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	states := make(map[string]json.RawMessage, len(f.states))
	for k, v := range f.states {
		states[k] = v
	}
	return states, append([]store.EventLog(nil), f.entries...)
}

func tapped(t *testing.T, id string, env engine.Envelope, err error) room.Tapped {
	t.Helper()
	require.NoError(t, err)
	env.ID = id
	env.Sender = "master-1"
	env.Seq = 1
	return room.Tapped{EventID: "E1", Env: env}
}

func TestRecord_StateSyncSavesStateAndLogs(t *testing.T) {
	fa := newFakeArchive()
	rec := NewRecorder(fa, nil)

	env, err := engine.NewStateSyncEnvelope(engine.GameState{"score": []any{1.0, 2.0}, "lock": true})
	require.NoError(t, rec.Record(context.Background(), tapped(t, "env-1", env, err)))

	states, entries := fa.snapshot()
	assert.JSONEq(t, `{"score":[1,2],"lock":true}`, string(states["E1"]))
	require.Len(t, entries, 1)
	assert.Equal(t, "state_sync", entries[0].Kind)
	assert.Equal(t, "master-1", entries[0].Sender)
}

func TestRecord_ConflictLogsWithoutState(t *testing.T) {
	fa := newFakeArchive()
	rec := NewRecorder(fa, nil)

	env, err := engine.NewConflictEnvelope("Score mismatch")
	require.NoError(t, rec.Record(context.Background(), tapped(t, "env-2", env, err)))

	states, entries := fa.snapshot()
	assert.Empty(t, states)
	require.Len(t, entries, 1)
	assert.Equal(t, "referee_conflict", entries[0].Kind)
}

func TestRecord_SkipsCommandsAndMalformed(t *testing.T) {
	fa := newFakeArchive()
	rec := NewRecorder(fa, nil)
	ctx := context.Background()

	cmd, err := engine.NewCommandEnvelope(engine.CmdSetLock, engine.LockData{Locked: true}, engine.TargetAll)
	require.NoError(t, rec.Record(ctx, tapped(t, "env-3", cmd, err)))

	bad := room.Tapped{EventID: "E1", Env: engine.Envelope{ID: "env-4", Kind: engine.KindStateSync, Payload: json.RawMessage(`{"state":7}`)}}
	require.NoError(t, rec.Record(ctx, bad))

	states, entries := fa.snapshot()
	assert.Empty(t, states)
	assert.Empty(t, entries)
}

func TestRecord_DuplicateEnvelopeIsIgnored(t *testing.T) {
	fa := newFakeArchive()
	rec := NewRecorder(fa, nil)
	ctx := context.Background()

	env, err := engine.NewStateSyncEnvelope(engine.DefaultState())
	first := tapped(t, "env-5", env, err)
	require.NoError(t, rec.Record(ctx, first))
	require.NoError(t, rec.Record(ctx, first))

	_, entries := fa.snapshot()
	assert.Len(t, entries, 1)
}

func TestRecord_SameEnvelopeIDInTwoEvents(t *testing.T) {
	fa := newFakeArchive()
	rec := NewRecorder(fa, nil)
	ctx := context.Background()

	env, err := engine.NewStateSyncEnvelope(engine.DefaultState())
	a := tapped(t, "reused", env, err)
	b := a
	b.EventID = "E2"
	require.NoError(t, rec.Record(ctx, a))
	require.NoError(t, rec.Record(ctx, b))

	states, entries := fa.snapshot()
	assert.Len(t, entries, 2)
	assert.Contains(t, states, "E1")
	assert.Contains(t, states, "E2")
}

func TestRecord_LogErrorSkipsState(t *testing.T) {
	fa := newFakeArchive()
	fa.failLog = errors.New("db down")
	rec := NewRecorder(fa, nil)

	env, err := engine.NewStateSyncEnvelope(engine.DefaultState())
	assert.Error(t, rec.Record(context.Background(), tapped(t, "env-6", env, err)))

	states, _ := fa.snapshot()
	assert.Empty(t, states)
}

func TestRun_RecordsFromHubTap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tap := make(chan room.Tapped, 16)
	h := hub.NewHub(ctx, hub.WithTap(tap))
	defer h.Shutdown()

	fa := newFakeArchive()
	done := make(chan error, 1)
	go func() { done <- NewRecorder(fa, nil).Run(ctx, tap) }()

	out := make(chan engine.Envelope, 4)
	rm, err := h.Join(ctx, "E9", "master-1", engine.RoleMaster, out)
	require.NoError(t, err)

	env, err := engine.NewStateSyncEnvelope(engine.GameState{"score": []any{3.0, 1.0}})
	require.NoError(t, err)
	env.ID = "env-7"
	require.NoError(t, rm.Publish(ctx, env))

	require.Eventually(t, func() bool {
		states, _ := fa.snapshot()
		_, ok := states["E9"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop")
	}
}
