// Package availability projects open appointment capacity from the schedule
// settings and existing bookings. It is read-only: nothing here writes.
package availability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// DefaultHorizonDays is how far ahead the calendar looks when no horizon is
// requested.
const DefaultHorizonDays = 30

// Engine computes bookable days and per-date capacity.
type Engine struct {
	schedules domain.ScheduleRepository
	bookings  domain.BookingRepository
	clock     clock.Clock
	logger    *zap.Logger
}

// NewEngine creates an availability engine.
func NewEngine(
	schedules domain.ScheduleRepository,
	bookings domain.BookingRepository,
	clk clock.Clock,
	logger *zap.Logger,
) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		schedules: schedules,
		bookings:  bookings,
		clock:     clk,
		logger:    logger,
	}
}

// AvailableDates returns every bookable day from tomorrow through
// today+horizonDays inclusive. Today is never bookable. Days that are not
// work days, or are explicitly blocked, are omitted entirely rather than
// reported as full.
func (e *Engine) AvailableDates(ctx context.Context, horizonDays int) ([]*domain.AvailabilityDay, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	settings, err := e.settings(ctx)
	if err != nil {
		return nil, err
	}

	today := e.clock.NowUTC().Truncate(24 * time.Hour)
	days := make([]*domain.AvailabilityDay, 0, horizonDays)

	for i := 1; i <= horizonDays; i++ {
		day := today.AddDate(0, 0, i)
		date := day.Format("2006-01-02")

		if !settings.IsWorkDay(int(day.Weekday())) || settings.IsBlocked(date) {
			continue
		}

		count, err := e.bookings.CountForDate(ctx, date)
		if err != nil {
			return nil, apperrors.WrapWithOp(err, "availability.AvailableDates")
		}

		slots := settings.MaxJobsPerDay - count
		if slots < 0 {
			slots = 0
		}

		days = append(days, &domain.AvailabilityDay{
			Date:           date,
			DayOfWeek:      day.Weekday().String(),
			SlotsAvailable: slots,
			MaxSlots:       settings.MaxJobsPerDay,
			Status:         domain.StatusForSlots(slots),
		})
	}

	return days, nil
}

// HasCapacity reports whether the given YYYY-MM-DD date can take one more
// booking. It re-derives work-day and blocked-date membership independently
// of AvailableDates.
func (e *Engine) HasCapacity(ctx context.Context, date string) (bool, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false, apperrors.InvalidFormat("date", "YYYY-MM-DD")
	}

	settings, err := e.settings(ctx)
	if err != nil {
		return false, err
	}

	if !settings.IsWorkDay(int(day.Weekday())) || settings.IsBlocked(date) {
		return false, nil
	}

	count, err := e.bookings.CountForDate(ctx, date)
	if err != nil {
		return false, apperrors.WrapWithOp(err, "availability.HasCapacity")
	}

	return count < settings.MaxJobsPerDay, nil
}

// settings loads the schedule, falling back to the default weekday schedule
// when none has been configured yet.
func (e *Engine) settings(ctx context.Context) (*domain.ScheduleSettings, error) {
	settings, err := e.schedules.Get(ctx)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domain.DefaultScheduleSettings(), nil
		}
		return nil, apperrors.WrapWithOp(err, "availability.settings")
	}
	return settings, nil
}
