// Package storage is the backend persistence layer: the build catalog,
// the archive of submitted sessions and the advisory session locks.
package storage

import (
	"context"
	"time"

	"github.com/prodline/tracker/internal/models"
)

// BuildStats aggregates the submitted sessions of one build.
type BuildStats struct {
	BuildNumber    string  `json:"buildNumber"`
	Sessions       int     `json:"sessions"`
	MeanActiveSec  float64 `json:"meanActiveSec"`
	MeanPausedSec  float64 `json:"meanPausedSec"`
	TotalDefects   int     `json:"totalDefects"`
	TotalPartsMade int     `json:"totalPartsMade"`
}

// Store defines the backend persistence contract.
type Store interface {
	GetBuild(ctx context.Context, buildNumber string) (*models.Build, error)
	ListBuilds(ctx context.Context) ([]models.Build, error)
	UpsertBuild(ctx context.Context, b models.Build) error
	ClearBuilds(ctx context.Context) error

	// SaveSession archives a finalized submission and returns its id.
	SaveSession(ctx context.Context, sub *models.SessionSubmission) (string, error)
	BuildStats(ctx context.Context, buildNumber string) (*BuildStats, error)

	// AcquireLock returns false when another holder has a live lock for
	// loginID. Expired locks are reaped on the way in.
	AcquireLock(ctx context.Context, loginID string, ttl time.Duration) (bool, error)
	// ReleaseLock is idempotent: releasing an absent lock is not an
	// error.
	ReleaseLock(ctx context.Context, loginID string) error

	Close() error
}
