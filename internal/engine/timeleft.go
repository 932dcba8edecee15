package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/prodline/tracker/internal/models"
)

// TimeLeft returns the signed remaining seconds of the countdown:
// target minus elapsed-minus-paused. Negative values are valid overtime
// and drive the check-in prompt, never an error.
func TimeLeft(build models.Build, startTime time.Time, totalPausedSec float64, now time.Time) float64 {
	elapsed := now.Sub(startTime).Seconds()
	return build.TargetDurationSec() - (elapsed - totalPausedSec)
}

// ActiveTime is the clock the prompt scheduler runs on: wall-clock
// seconds since startTime minus paused time. The pause ledger is read
// live, so an open pause is accounted up to now and time spent paused
// never advances the schedule. Thresholds and reschedules both use this
// function, which keeps accumulated popup wait on both sides of every
// comparison.
func ActiveTime(s *models.Session, now time.Time) float64 {
	elapsed := now.Sub(s.StartTime).Seconds()
	return elapsed - TotalPaused(s.PauseRecords, now)
}

// FormatSigned renders seconds as signed HH:MM:SS. A positive remainder
// is bumped to the next whole second so a fresh countdown shows a full
// unit; a negative remainder is truncated toward zero. The asymmetry is
// load-bearing: FormatSigned(5.2) is "00:00:06" while FormatSigned(-5.2)
// is "-00:00:05".
func FormatSigned(sec float64) string {
	var whole int64
	sign := ""
	switch {
	case sec > 0:
		whole = int64(math.Floor(sec)) + 1
	case sec < 0:
		whole = int64(math.Floor(-sec))
		if whole > 0 {
			sign = "-"
		}
	}

	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}

// FormatCountdown renders a prompt countdown as MM:SS, clamped at zero.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
