// Package botstate persists the amount controller snapshot and switch
// events in a WAL so restarts resume from the last known state.
package botstate

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"github.com/vadiminshakov/euclidbot/internal/services/amount"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir   = "./wal/botstate"
	segmentLimit = 100
	maxSegments  = 10

	snapshotKeyPrefix = "amount_snapshot_"
	switchKeyPrefix   = "direction_switch_"
)

// WALStore persists bot state events in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed bot state store.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "botstate_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init bot state WAL")
	}

	return &WALStore{wal: wal}, nil
}

// SaveSnapshot appends the controller snapshot for the given pair.
func (s *WALStore) SaveSnapshot(pair domain.Pair, snap amount.Snapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("bot state store is not initialized")
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal amount snapshot")
	}

	key := snapshotKeyPrefix + strings.ToLower(pair.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// LatestSnapshot returns the most recent snapshot for the given pair, or
// false when none was written yet.
func (s *WALStore) LatestSnapshot(pair domain.Pair) (amount.Snapshot, bool, error) {
	if s == nil || s.wal == nil {
		return amount.Snapshot{}, false, errors.New("bot state store is not initialized")
	}

	key := snapshotKeyPrefix + strings.ToLower(pair.String())

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest amount.Snapshot
		found  bool
	)
	for idx := uint64(1); idx <= s.wal.CurrentIndex(); idx++ {
		entryKey, payload, err := s.wal.Get(idx)
		if err != nil || entryKey != key {
			continue
		}

		var snap amount.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return amount.Snapshot{}, false, errors.Wrap(err, "decode amount snapshot")
		}
		latest = snap
		found = true
	}

	return latest, found, nil
}

// SaveSwitch appends a direction switch event.
func (s *WALStore) SaveSwitch(record domain.SwitchRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("bot state store is not initialized")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal switch record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, switchKeyPrefix+record.To.String(), payload)
}

// Switches returns all persisted switch events in write order.
func (s *WALStore) Switches() ([]domain.SwitchRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("bot state store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []domain.SwitchRecord
	for idx := uint64(1); idx <= s.wal.CurrentIndex(); idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, switchKeyPrefix) {
			continue
		}

		var record domain.SwitchRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrap(err, "decode switch record")
		}
		records = append(records, record)
	}

	return records, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("bot state store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
