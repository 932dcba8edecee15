package engine

import (
	"time"

	"github.com/prodline/tracker/internal/models"
)

// AppendPause opens a new pause interval at now. It returns ok=false
// without modifying the ledger when the last interval is still open;
// pausing while already paused is a no-op, not an error.
func AppendPause(records []models.PauseRecord, now time.Time) ([]models.PauseRecord, bool) {
	if n := len(records); n > 0 && records[n-1].Open() {
		return records, false
	}
	out := make([]models.PauseRecord, len(records), len(records)+1)
	copy(out, records)
	return append(out, models.PauseRecord{Start: now}), true
}

// CloseLastPause closes the last interval at now if it is open. Closing
// an already-closed ledger is a no-op, so a duplicate resume has the
// same effect as a single one.
func CloseLastPause(records []models.PauseRecord, now time.Time) ([]models.PauseRecord, bool) {
	n := len(records)
	if n == 0 || !records[n-1].Open() {
		return records, false
	}
	out := make([]models.PauseRecord, n)
	copy(out, records)
	end := now
	out[n-1].End = &end
	return out, true
}

// TotalPaused sums the ledger's intervals in seconds. An open interval
// contributes up to now, so the figure is live while paused. Records
// with a missing start (corrupted persisted state) are skipped rather
// than failing the whole computation.
func TotalPaused(records []models.PauseRecord, now time.Time) float64 {
	var total float64
	for _, r := range records {
		if r.Start.IsZero() {
			continue
		}
		end := now
		if r.End != nil {
			end = *r.End
		}
		total += end.Sub(r.Start).Seconds()
	}
	return total
}
