package domain

import "time"

// Default schedule used when no settings row exists yet.
const (
	DefaultMaxJobsPerDay = 4
)

// DefaultWorkDays is Monday through Friday (0=Sunday..6=Saturday).
func DefaultWorkDays() []int {
	return []int{1, 2, 3, 4, 5}
}

// ScheduleSettings is the singleton scheduling configuration: daily capacity,
// which weekdays are workable, and explicitly blocked calendar dates.
type ScheduleSettings struct {
	MaxJobsPerDay int `json:"max_jobs_per_day" db:"max_jobs_per_day"`
	// WorkDays holds day-of-week indices, 0=Sunday through 6=Saturday.
	WorkDays []int `json:"work_days" db:"work_days"`
	// BlockedDates holds YYYY-MM-DD dates that are never bookable.
	BlockedDates []string  `json:"blocked_dates" db:"blocked_dates"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultScheduleSettings returns the fallback schedule: weekdays only,
// four jobs per day, nothing blocked.
func DefaultScheduleSettings() *ScheduleSettings {
	return &ScheduleSettings{
		MaxJobsPerDay: DefaultMaxJobsPerDay,
		WorkDays:      DefaultWorkDays(),
	}
}

// IsWorkDay reports whether the given weekday index is a configured work day.
func (s *ScheduleSettings) IsWorkDay(weekday int) bool {
	for _, d := range s.WorkDays {
		if d == weekday {
			return true
		}
	}
	return false
}

// IsBlocked reports whether the given YYYY-MM-DD date is explicitly blocked.
func (s *ScheduleSettings) IsBlocked(date string) bool {
	for _, d := range s.BlockedDates {
		if d == date {
			return true
		}
	}
	return false
}

// DayStatus summarizes how much capacity a day has left.
type DayStatus string

// Day capacity statuses.
const (
	DayAvailable DayStatus = "available"
	DayLimited   DayStatus = "limited"
	DayFull      DayStatus = "full"
)

// StatusForSlots maps a remaining-slot count to a day status.
func StatusForSlots(slots int) DayStatus {
	switch {
	case slots <= 0:
		return DayFull
	case slots == 1:
		return DayLimited
	default:
		return DayAvailable
	}
}

// AvailabilityDay is a derived projection of one bookable day. It is never
// persisted.
type AvailabilityDay struct {
	Date           string    `json:"date"`
	DayOfWeek      string    `json:"day_of_week"`
	SlotsAvailable int       `json:"slots_available"`
	MaxSlots       int       `json:"max_slots"`
	Status         DayStatus `json:"status"`
}
