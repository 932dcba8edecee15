package models

import "time"

// Build is a catalog entry describing a unit of work. The target session
// duration is derived from it and never stored.
type Build struct {
	BuildNumber   string    `json:"buildNumber" msgpack:"buildNumber"`
	NumberOfParts int       `json:"numberOfParts" msgpack:"numberOfParts"`
	TimePerPart   float64   `json:"timePerPart" msgpack:"timePerPart"` // minutes per part
	CreatedAt     time.Time `json:"createdAt,omitempty" msgpack:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty" msgpack:"updatedAt"`
}

// TargetDurationSec returns numberOfParts × timePerPart in seconds.
func (b Build) TargetDurationSec() float64 {
	return float64(b.NumberOfParts) * b.TimePerPart * 60
}

// Validate checks the catalog constraints (at least one part, positive
// time per part).
func (b Build) Validate() error {
	if b.BuildNumber == "" {
		return ErrInvalidBuild
	}
	if b.NumberOfParts < 1 {
		return ErrInvalidBuild
	}
	if b.TimePerPart <= 0 {
		return ErrInvalidBuild
	}
	return nil
}
