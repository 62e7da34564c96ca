package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/engine"
	"github.com/DoyleJ11/match-control-backend/internal/room"
	"github.com/DoyleJ11/match-control-backend/internal/store"
	"go.uber.org/zap"
)

// Archive is the part of the store the recorder writes to.
type Archive interface {
	SaveState(ctx context.Context, eventID string, state json.RawMessage) error
	AppendLog(ctx context.Context, entry store.EventLog) error
}

// Recorder drains a room tap into an Archive. Arbitrated states become the
// event's last known state; arbitrations and conflict reports are logged.
// Commands are not recorded.
type Recorder struct {
	archive Archive
	log     *zap.Logger
	timeout time.Duration
}

func NewRecorder(a Archive, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{archive: a, log: log, timeout: 5 * time.Second}
}

// Run records until ctx is done or the tap is closed.
func (r *Recorder) Run(ctx context.Context, tap <-chan room.Tapped) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-tap:
			if !ok {
				return nil
			}
			if err := r.Record(ctx, t); err != nil {
				r.log.Warn("archive record failed",
					zap.String("event_id", t.EventID),
					zap.String("kind", string(t.Env.Kind)),
					zap.Error(err))
			}
		}
	}
}

// Record archives one tapped envelope. Malformed payloads are skipped.
func (r *Recorder) Record(ctx context.Context, t room.Tapped) error {
	var state json.RawMessage
	switch t.Env.Kind {
	case engine.KindStateSync:
		decoded, err := engine.DecodeStateSync(t.Env.Payload)
		if err != nil {
			r.log.Debug("archive skipped malformed state_sync", zap.String("event_id", t.EventID), zap.Error(err))
			return nil
		}
		state, err = json.Marshal(decoded.State)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
	case engine.KindRefereeConflict:
		if _, err := engine.DecodeConflict(t.Env.Payload); err != nil {
			r.log.Debug("archive skipped malformed conflict", zap.String("event_id", t.EventID), zap.Error(err))
			return nil
		}
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.archive.AppendLog(ctx, store.EventLog{
		EventID:    t.EventID,
		EnvelopeID: t.Env.ID,
		Kind:       string(t.Env.Kind),
		Sender:     t.Env.Sender,
		Seq:        t.Env.Seq,
		Payload:    []byte(t.Env.Payload),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	return r.archive.SaveState(ctx, t.EventID, state)
}
