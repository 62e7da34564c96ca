package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sort"
	"strconv"

	"github.com/DoyleJ11/match-control-backend/internal/hub"
	"github.com/DoyleJ11/match-control-backend/internal/store"
	"github.com/DoyleJ11/match-control-backend/internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HistoryReader serves what the archive recorded for an event.
type HistoryReader interface {
	LatestState(ctx context.Context, eventID string) (store.MatchState, error)
	History(ctx context.Context, eventID string, limit int) ([]store.EventLog, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateEvent hands out an event code no active room is using. The room
// itself is created by the first participant that binds to it.
func CreateEvent(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			rm, err := h.Get(r.Context(), c)
			if err != nil {
				http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
				return
			}
			if rm == nil {
				code = c
				break
			}
			log.Debug("collision on event code, regenerating", zap.String("event_id", c))
		}

		writeJSON(w, http.StatusCreated, types.EventCreated{Code: code})
	}
}

// EventInfo reports who is subscribed to an event's room right now.
func EventInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "id")
		info := types.RoomInfo{EventID: eventID}

		rm, err := h.Get(r.Context(), eventID)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if rm != nil {
			view, err := rm.State(r.Context())
			if err == nil {
				info.Active = true
				info.Subscribers = view.NumClients
				info.Published = view.Published
				info.Roles = make(map[string]int, len(view.Roles))
				for role, n := range view.Roles {
					info.Roles[string(role)] = n
				}
			}
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// EventState serves the last archived state. states may be nil when the
// server runs without a database.
func EventState(states HistoryReader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if states == nil {
			http.Error(w, "archive disabled", http.StatusServiceUnavailable)
			return
		}
		eventID := chi.URLParam(r, "id")
		record, err := states.LatestState(r.Context(), eventID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "no state recorded", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error("load state", zap.String("event_id", eventID), zap.Error(err))
			http.Error(w, "failed to load state", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, types.StoredState{
			EventID:   record.EventID,
			State:     json.RawMessage(record.State),
			Version:   record.Version,
			UpdatedAt: record.UpdatedAt,
		})
	}
}

// EventHistory lists archived arbitrations and conflict reports, newest
// first. ?limit= caps the result.
func EventHistory(states HistoryReader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if states == nil {
			http.Error(w, "archive disabled", http.StatusServiceUnavailable)
			return
		}
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxHistoryLimit)
		}
		eventID := chi.URLParam(r, "id")
		entries, err := states.History(r.Context(), eventID, limit)
		if err != nil {
			log.Error("load history", zap.String("event_id", eventID), zap.Error(err))
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		out := make([]types.LogEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, types.LogEntry{
				EnvelopeID: e.EnvelopeID,
				Kind:       e.Kind,
				Sender:     e.Sender,
				Seq:        e.Seq,
				Payload:    json.RawMessage(e.Payload),
				CreatedAt:  e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ListEvents reports the events that currently have a running room.
func ListEvents(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := h.Rooms(r.Context())
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		sort.Strings(codes)
		writeJSON(w, http.StatusOK, types.EventList{Events: codes})
	}
}

// EndEvent stops an event's room and disconnects everyone in it.
func EndEvent(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "id")
		removed, err := h.Remove(r.Context(), eventID)
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		if !removed {
			http.Error(w, "event not active", http.StatusNotFound)
			return
		}
		log.Info("event ended", zap.String("event_id", eventID))
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
