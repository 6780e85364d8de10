package scoring

import (
	"time"

	"github.com/warp/readiness-engine/calendar"
)

// DefaultGracePeriod is the policy default, in minutes.
const DefaultGracePeriod = 15

// Punctuality is the attendance classification of a single check-in.
// ABSENT and EXCUSED are properties of absences, never of a check-in.
type Punctuality struct {
	Status      Status `json:"status"`
	MinutesLate int    `json:"minutes_late"`
}

// ResolveAttendance compares the local minute-of-day of the check-in with
// shiftStart+grace. At or before the boundary is GREEN with zero minutes
// late; after it is YELLOW with the minutes past the boundary. Arriving
// before the shift starts is never penalised.
func ResolveAttendance(checkin time.Time, zone calendar.Zone, shiftStart calendar.TimeOfDay, graceMinutes int) Punctuality {
	return ResolveMinute(zone.MinuteOfDay(checkin), shiftStart, graceMinutes)
}

// ResolveMinute is ResolveAttendance for an already-localised minute of day.
func ResolveMinute(minuteOfDay int, shiftStart calendar.TimeOfDay, graceMinutes int) Punctuality {
	if graceMinutes < 0 {
		graceMinutes = 0
	}
	boundary := shiftStart.Minutes() + graceMinutes
	if minuteOfDay <= boundary {
		return Punctuality{Status: Green}
	}
	return Punctuality{Status: Yellow, MinutesLate: minuteOfDay - boundary}
}
