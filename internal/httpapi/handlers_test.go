package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/hub"
	"github.com/DoyleJ11/match-control-backend/internal/store"
	"github.com/DoyleJ11/match-control-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStates map[string]store.MatchState

func (f fakeStates) LatestState(_ context.Context, eventID string) (store.MatchState, error) {
	if eventID == "BROKEN" {
		return store.MatchState{}, errors.New("db down")
	}
	record, ok := f[eventID]
	if !ok {
		return store.MatchState{}, store.ErrNotFound
	}
	return record, nil
}

func (f fakeStates) History(_ context.Context, eventID string, limit int) ([]store.EventLog, error) {
	if eventID == "BROKEN" {
		return nil, errors.New("db down")
	}
	entries := []store.EventLog{
		{EventID: eventID, EnvelopeID: "e2", Kind: "referee_conflict", Sender: "op", Seq: 2, Payload: []byte(`{"message":"x"}`)},
		{EventID: eventID, EnvelopeID: "e1", Kind: "state_sync", Sender: "m", Seq: 1, Payload: []byte(`{"state":{}}`)},
	}
	if _, ok := f[eventID]; !ok {
		entries = nil
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func newRouter(t *testing.T, states HistoryReader) (http.Handler, *hub.Hub) {
	t.Helper()
	h := hub.NewHub(context.Background())
	t.Cleanup(h.Shutdown)
	return SetupRoutes(Deps{Hub: h, States: states}), h
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateEvent(t *testing.T) {
	router, h := newRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created types.EventCreated
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Len(t, created.Code, 6)

	// Rooms are lazy: handing out a code does not create one.
	rooms, err := h.Rooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestEventInfo(t *testing.T) {
	router, h := newRouter(t, nil)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/E1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info types.RoomInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.False(t, info.Active)

	_, err := h.Join(ctx, "E1", "m", engine.RoleMaster, make(chan engine.Envelope, 4))
	require.NoError(t, err)
	_, err = h.Join(ctx, "E1", "d", engine.RoleDisplay, make(chan engine.Envelope, 4))
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/E1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	info = types.RoomInfo{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.True(t, info.Active)
	assert.Equal(t, 2, info.Subscribers)
	assert.Equal(t, map[string]int{"master": 1, "display": 1}, info.Roles)
}

func TestEventState(t *testing.T) {
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	states := fakeStates{
		"E1": {EventID: "E1", State: []byte(`{"score":[2,1]}`), Version: 3, UpdatedAt: updated},
	}

	cases := []struct {
		name   string
		states HistoryReader
		path   string
		status int
	}{
		{"no database", nil, "/events/E1/state", http.StatusServiceUnavailable},
		{"unknown event", states, "/events/E2/state", http.StatusNotFound},
		{"store failure", states, "/events/BROKEN/state", http.StatusInternalServerError},
		{"stored", states, "/events/E1/state", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newRouter(t, tc.states)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var got types.StoredState
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, int64(3), got.Version)
			assert.JSONEq(t, `{"score":[2,1]}`, string(got.State))
			assert.True(t, updated.Equal(got.UpdatedAt))
		})
	}
}

func TestEventHistory(t *testing.T) {
	states := fakeStates{"E1": {EventID: "E1"}}

	cases := []struct {
		name   string
		states HistoryReader
		path   string
		status int
		want   []string
	}{
		{"no database", nil, "/events/E1/history", http.StatusServiceUnavailable, nil},
		{"bad limit", states, "/events/E1/history?limit=zero", http.StatusBadRequest, nil},
		{"negative limit", states, "/events/E1/history?limit=-1", http.StatusBadRequest, nil},
		{"store failure", states, "/events/BROKEN/history", http.StatusInternalServerError, nil},
		{"unknown event", states, "/events/E2/history", http.StatusOK, []string{}},
		{"newest first", states, "/events/E1/history", http.StatusOK, []string{"e2", "e1"}},
		{"limited", states, "/events/E1/history?limit=1", http.StatusOK, []string{"e2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newRouter(t, tc.states)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.want == nil {
				return
			}
			var got []types.LogEntry
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.EnvelopeID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestListAndEndEvents(t *testing.T) {
	router, h := newRouter(t, nil)
	ctx := context.Background()

	out := make(chan engine.Envelope, 4)
	_, err := h.Join(ctx, "B2", "m", engine.RoleMaster, out)
	require.NoError(t, err)
	_, err = h.Join(ctx, "A1", "d", engine.RoleDisplay, make(chan engine.Envelope, 4))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list types.EventList
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, []string{"A1", "B2"}, list.Events)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/events/B2", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	select {
	case _, ok := <-out:
		assert.False(t, ok, "subscribers of an ended event are disconnected")
	case <-time.After(time.Second):
		t.Fatal("outbox not closed")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/events/B2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
