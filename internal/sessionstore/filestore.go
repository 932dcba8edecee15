// Package sessionstore persists the single-device session snapshot so
// a session survives a client restart.
package sessionstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/prodline/tracker/internal/models"
)

// FileStore keeps the session as one msgpack-encoded file. Writes go
// through a temp file and rename, so a crash mid-write leaves the
// previous snapshot intact.
type FileStore struct {
	path string
}

// NewFileStore creates the snapshot directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, "session.msgpack")}, nil
}

// Load returns the persisted session, or (nil, nil) when none exists.
// An unreadable snapshot is treated as absent: the caller routes back
// to login rather than crashing on corrupted state.
func (s *FileStore) Load() (*models.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session snapshot: %w", err)
	}

	var sess models.Session
	if err := msgpack.Unmarshal(data, &sess); err != nil {
		return nil, nil
	}
	if sess.PauseRecords == nil {
		sess.PauseRecords = []models.PauseRecord{}
	}
	if sess.PopupInteractions == nil {
		sess.PopupInteractions = []models.PopupInteraction{}
	}
	return &sess, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(sess *models.Session) error {
	data, err := msgpack.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing session snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot. Clearing an absent snapshot is not an
// error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session snapshot: %w", err)
	}
	return nil
}
