package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("state not found")
var ErrDuplicate = errors.New("envelope already archived")

const uniqueViolation = "23505"

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres.
func Open(dsn string, pool PoolConfig) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return conn, nil
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Migrate runs GORM auto-migrations for the archive tables.
func (s *Store) Migrate() error {
	if s.db == nil {
		return errors.New("db connection is nil")
	}
	if err := s.db.AutoMigrate(&MatchState{}, &EventLog{}); err != nil {
		return err
	}
	s.log.Info("database migration complete")
	return nil
}

// SaveState upserts the event's last known state and bumps its version.
func (s *Store) SaveState(ctx context.Context, eventID string, state json.RawMessage) error {
	now := time.Now().UTC()
	record := MatchState{
		EventID:   eventID,
		State:     datatypes.JSON(state),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"state":      record.State,
			"version":    gorm.Expr("match_states.version + 1"),
			"updated_at": now,
		}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("save state %s: %w", eventID, err)
	}
	return nil
}

func (s *Store) LatestState(ctx context.Context, eventID string) (MatchState, error) {
	var record MatchState
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MatchState{}, ErrNotFound
	}
	if err != nil {
		return MatchState{}, err
	}
	return record, nil
}

// AppendLog stores one envelope. A redelivered envelope returns ErrDuplicate.
func (s *Store) AppendLog(ctx context.Context, entry EventLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Create(&entry).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("append log %s: %w", entry.EventID, err)
	}
	return nil
}

// History returns the newest entries first.
func (s *Store) History(ctx context.Context, eventID string, limit int) ([]EventLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []EventLog
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
