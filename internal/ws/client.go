package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/participant"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Dialer is a participant.Transport that reaches rooms through the relay.
type Dialer struct {
	// URL of the relay endpoint, e.g. ws://localhost:8080/ws.
	URL          string
	Buffer       int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

func (d *Dialer) Bind(ctx context.Context, eventID, clientID string, role engine.Role) (participant.Binding, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	q := u.Query()
	q.Set("event", eventID)
	q.Set("role", string(role))
	q.Set("client", clientID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(readLimit)

	buffer := d.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	timeout := d.WriteTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	bctx, cancel := context.WithCancel(context.Background())
	b := &clientBinding{
		conn:     conn,
		out:      make(chan engine.Envelope, buffer),
		timeout:  timeout,
		log:      log.With(zap.String("event_id", eventID), zap.String("client_id", clientID)),
		ctx:      bctx,
		cancel:   cancel,
		readDone: make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

type clientBinding struct {
	conn     *websocket.Conn
	out      chan engine.Envelope
	timeout  time.Duration
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}
	once     sync.Once
}

// frame is either an envelope or a relay error.
type frame struct {
	engine.Envelope
	Error string `json:"error,omitempty"`
}

func (b *clientBinding) readLoop() {
	defer close(b.readDone)
	defer close(b.out)

	for {
		_, data, err := b.conn.Read(b.ctx)
		if err != nil {
			if b.ctx.Err() == nil {
				b.log.Debug("relay read ended", zap.Error(err))
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			b.log.Debug("undecodable frame from relay", zap.Error(err))
			continue
		}
		if f.Error != "" {
			b.log.Warn("relay refused frame", zap.String("error", f.Error))
			continue
		}
		select {
		case b.out <- f.Envelope:
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *clientBinding) Publish(ctx context.Context, env engine.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.conn.Write(wctx, websocket.MessageText, payload)
}

func (b *clientBinding) Messages() <-chan engine.Envelope { return b.out }

func (b *clientBinding) Close() error {
	b.once.Do(func() {
		b.cancel()
		_ = b.conn.Close(websocket.StatusNormalClosure, "bye")
		<-b.readDone
	})
	return nil
}
