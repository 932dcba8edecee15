// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prodline/tracker/internal/models"
	"github.com/prodline/tracker/internal/storage"
)

// MockStorage implements storage.Store in memory for testing
type MockStorage struct {
	builds   map[string]models.Build
	sessions []models.SessionSubmission
	locks    map[string]models.SessionLock
	nextID   int
	mu       sync.RWMutex

	// Error hooks let tests force failures
	SaveSessionErr error
	AcquireLockErr error
}

var _ storage.Store = (*MockStorage)(nil)

// NewMockStorage creates an empty mock store
func NewMockStorage() *MockStorage {
	return &MockStorage{
		builds: make(map[string]models.Build),
		locks:  make(map[string]models.SessionLock),
	}
}

func (m *MockStorage) GetBuild(ctx context.Context, buildNumber string) (*models.Build, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.builds[buildNumber]
	if !ok {
		return nil, models.ErrBuildNotFound
	}
	return &b, nil
}

func (m *MockStorage) ListBuilds(ctx context.Context) ([]models.Build, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	builds := make([]models.Build, 0, len(m.builds))
	for _, b := range m.builds {
		builds = append(builds, b)
	}
	sort.Slice(builds, func(i, j int) bool { return builds[i].BuildNumber < builds[j].BuildNumber })
	return builds, nil
}

func (m *MockStorage) UpsertBuild(ctx context.Context, b models.Build) error {
	if err := b.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds[b.BuildNumber] = b
	return nil
}

func (m *MockStorage) ClearBuilds(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds = make(map[string]models.Build)
	return nil
}

func (m *MockStorage) SaveSession(ctx context.Context, sub *models.SessionSubmission) (string, error) {
	if m.SaveSessionErr != nil {
		return "", m.SaveSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, *sub)
	m.nextID++
	return fmt.Sprintf("session-%d", m.nextID), nil
}

func (m *MockStorage) BuildStats(ctx context.Context, buildNumber string) (*storage.BuildStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &storage.BuildStats{BuildNumber: buildNumber}
	var activeSum, pausedSum float64
	for _, s := range m.sessions {
		if s.BuildNumber != buildNumber {
			continue
		}
		stats.Sessions++
		activeSum += s.TotalActiveTimeSec
		pausedSum += s.TotalPausedSec
		stats.TotalDefects += s.Defects
		stats.TotalPartsMade += s.TotalParts
	}
	if stats.Sessions > 0 {
		stats.MeanActiveSec = activeSum / float64(stats.Sessions)
		stats.MeanPausedSec = pausedSum / float64(stats.Sessions)
	}
	return stats, nil
}

func (m *MockStorage) AcquireLock(ctx context.Context, loginID string, ttl time.Duration) (bool, error) {
	if m.AcquireLockErr != nil {
		return false, m.AcquireLockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if lock, held := m.locks[loginID]; held && !lock.Expired(now) {
		return false, nil
	}
	m.locks[loginID] = models.SessionLock{
		LoginID:    loginID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

func (m *MockStorage) ReleaseLock(ctx context.Context, loginID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, loginID)
	return nil
}

func (m *MockStorage) Close() error { return nil }

// Sessions returns a copy of the archived submissions
func (m *MockStorage) Sessions() []models.SessionSubmission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SessionSubmission(nil), m.sessions...)
}

// HoldsLock reports whether a live lock exists for loginID
func (m *MockStorage) HoldsLock(loginID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lock, ok := m.locks[loginID]
	return ok && !lock.Expired(time.Now())
}
