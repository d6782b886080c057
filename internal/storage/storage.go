package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keshon/datastore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Record is everything persisted for one guild.
type Record struct {
	Volume    *int      `json:"volume,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Storage struct {
	ds     *datastore.DataStore
	cancel context.CancelFunc
	log    zerolog.Logger
	mu     sync.Mutex
}

// New opens the datastore at filePath. Its background saver runs until Close
// or until ctx ends.
func New(ctx context.Context, filePath string) (*Storage, error) {
	ctx, cancel := context.WithCancel(ctx)
	ds, err := datastore.New(ctx, filePath)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Storage{
		ds:     ds,
		cancel: cancel,
		log:    log.With().Str("component", "storage").Logger(),
	}, nil
}

// Close stops the background saver and flushes to disk.
func (s *Storage) Close() error {
	s.cancel()
	return s.ds.Close()
}

// Helper function to get or create a Record for a guild
func (s *Storage) getOrCreateGuildRecord(guildID string) (*Record, error) {
	var record Record
	if _, err := s.ds.Get(guildID, &record); err != nil {
		return nil, fmt.Errorf("error reading guild record: %w", err)
	}
	return &record, nil
}

func (s *Storage) saveGuildRecord(guildID string, record *Record) error {
	record.UpdatedAt = time.Now()
	if err := s.ds.Set(guildID, record); err != nil {
		return fmt.Errorf("error saving guild record: %w", err)
	}
	return nil
}

// Volume returns the guild's stored volume, if any. A record that cannot be
// read is logged and reported as absent.
func (s *Storage) Volume(guildID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		s.log.Error().Err(err).Str("guild", guildID).Msg("failed to read stored volume")
		return 0, false
	}
	if record.Volume == nil {
		return 0, false
	}
	return *record.Volume, true
}

func (s *Storage) SetVolume(guildID string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("volume %d out of range", percent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateGuildRecord(guildID)
	if err != nil {
		return err
	}
	record.Volume = &percent
	return s.saveGuildRecord(guildID, record)
}

// Forget removes everything stored for the guild.
func (s *Storage) Forget(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ds.Delete(guildID); err != nil {
		return fmt.Errorf("error deleting guild record: %w", err)
	}
	return nil
}
