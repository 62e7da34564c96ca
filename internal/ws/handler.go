package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/hub"
	"github.com/DoyleJ11/match-control-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const readLimit = 1 << 20

type Config struct {
	SubscriberBuffer int
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	OriginPatterns   []string
}

func (c Config) withDefaults() Config {
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	return c
}

// Handler relays envelopes between a websocket and one room. It does not look
// inside payloads: routing and validation happen on the receiving clients.
func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		eventID := q.Get("event")
		if eventID == "" {
			http.Error(w, "missing event", http.StatusBadRequest)
			return
		}
		role, err := engine.ParseRole(q.Get("role"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		clientID := q.Get("client")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		clog := log.With(
			zap.String("event_id", eventID),
			zap.String("client_id", clientID),
			zap.String("role", string(role)))

		// Subscribe before the upgrade completes, so anything published after
		// the client sees the handshake reaches it.
		out := make(chan engine.Envelope, cfg.SubscriberBuffer)
		rm, err := h.Join(r.Context(), eventID, clientID, role, out)
		if err != nil {
			clog.Warn("join failed", zap.Error(err))
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = rm.Leave(ctx, clientID, out)
			clog.Info("relay disconnected")
		}()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			clog.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(readLimit)
		clog.Info("relay connected", zap.String("remote", r.RemoteAddr))

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, cfg, clog)

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			env, err := decodeFrame(data)
			if err != nil {
				writeError(r.Context(), conn, cfg.WriteTimeout, err.Error())
				continue
			}
			env.Sender = clientID
			if env.ID == "" {
				env.ID = uuid.NewString()
			}
			if err := rm.Publish(r.Context(), env); err != nil {
				clog.Warn("publish failed", zap.String("kind", string(env.Kind)), zap.Error(err))
				return
			}
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan engine.Envelope, cfg Config, log *zap.Logger) {
	var ping <-chan time.Time
	if cfg.PingInterval > 0 {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-out:
			if !ok {
				// dropped, replaced by a reconnect, or the room stopped
				conn.Close(websocket.StatusPolicyViolation, "subscription ended")
				return
			}
			payload, err := json.Marshal(env)
			if err != nil {
				log.Error("encode envelope", zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

var errBadJSON = errors.New("bad json")

// decodeFrame checks only what the relay needs: a known kind and a payload.
func decodeFrame(data []byte) (engine.Envelope, error) {
	var env engine.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return engine.Envelope{}, errBadJSON
	}
	if !env.Kind.Known() {
		return engine.Envelope{}, engine.ErrUnknownKind
	}
	if len(env.Payload) == 0 {
		return engine.Envelope{}, engine.ErrMalformedPayload
	}
	return env, nil
}

func writeError(ctx context.Context, conn *websocket.Conn, timeout time.Duration, msg string) {
	payload, _ := json.Marshal(types.ErrorFrame{Error: msg})
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
