package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// mockScheduleRepo returns fixed settings or an error.
type mockScheduleRepo struct {
	settings *domain.ScheduleSettings
	err      error
}

func (m *mockScheduleRepo) Get(ctx context.Context) (*domain.ScheduleSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settings, nil
}

func (m *mockScheduleRepo) Update(ctx context.Context, settings *domain.ScheduleSettings) error {
	m.settings = settings
	return nil
}

// mockBookingRepo tracks per-date booking counts.
type mockBookingRepo struct {
	counts map[string]int
	err    error
}

func (m *mockBookingRepo) Create(ctx context.Context, b *domain.Booking) error { return nil }
func (m *mockBookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return nil, apperrors.ErrNotFound
}
func (m *mockBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	return nil
}
func (m *mockBookingRepo) SetHubSpotDealID(ctx context.Context, id uuid.UUID, dealID string) error {
	return nil
}
func (m *mockBookingRepo) CountForDate(ctx context.Context, date string) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.counts[date], nil
}

// Monday 2025-06-02; tomorrow is Tuesday 2025-06-03.
var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine(settings *domain.ScheduleSettings, counts map[string]int) *Engine {
	return NewEngine(
		&mockScheduleRepo{settings: settings},
		&mockBookingRepo{counts: counts},
		clock.NewMock(testNow),
		zap.NewNop(),
	)
}

func weekdaySettings() *domain.ScheduleSettings {
	return &domain.ScheduleSettings{
		MaxJobsPerDay: 4,
		WorkDays:      []int{1, 2, 3, 4, 5},
	}
}

func TestAvailableDates_WindowExcludesToday(t *testing.T) {
	engine := newTestEngine(weekdaySettings(), nil)

	days, err := engine.AvailableDates(context.Background(), 7)
	if err != nil {
		t.Fatalf("AvailableDates() error = %v", err)
	}

	for _, d := range days {
		if d.Date == "2025-06-02" {
			t.Error("today should never be bookable")
		}
	}
	if len(days) == 0 {
		t.Fatal("expected at least one bookable day in a 7-day horizon")
	}
	if days[0].Date != "2025-06-03" {
		t.Errorf("first day = %s, expected tomorrow", days[0].Date)
	}
}

func TestAvailableDates_OmitsNonWorkDays(t *testing.T) {
	engine := newTestEngine(weekdaySettings(), nil)

	days, err := engine.AvailableDates(context.Background(), 7)
	if err != nil {
		t.Fatalf("AvailableDates() error = %v", err)
	}

	for _, d := range days {
		parsed, _ := time.Parse("2006-01-02", d.Date)
		wd := parsed.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			t.Errorf("weekend date %s should be omitted, not returned", d.Date)
		}
	}
	// Mon Jun 2 + 7 days covers Tue..Fri (4 work days) plus Mon Jun 9.
	if len(days) != 5 {
		t.Errorf("got %d days, expected 5 work days", len(days))
	}
}

func TestAvailableDates_OmitsBlockedDates(t *testing.T) {
	settings := weekdaySettings()
	settings.BlockedDates = []string{"2025-06-04"}
	engine := newTestEngine(settings, map[string]int{"2025-06-04": 0})

	days, err := engine.AvailableDates(context.Background(), 7)
	if err != nil {
		t.Fatalf("AvailableDates() error = %v", err)
	}

	for _, d := range days {
		if d.Date == "2025-06-04" {
			t.Error("blocked date should be omitted regardless of booking count")
		}
	}
}

func TestAvailableDates_StatusThresholds(t *testing.T) {
	counts := map[string]int{
		"2025-06-03": 4, // full
		"2025-06-04": 3, // limited
		"2025-06-05": 2, // available
		"2025-06-06": 0, // available
	}
	engine := newTestEngine(weekdaySettings(), counts)

	days, err := engine.AvailableDates(context.Background(), 4)
	if err != nil {
		t.Fatalf("AvailableDates() error = %v", err)
	}

	want := map[string]domain.DayStatus{
		"2025-06-03": domain.DayFull,
		"2025-06-04": domain.DayLimited,
		"2025-06-05": domain.DayAvailable,
		"2025-06-06": domain.DayAvailable,
	}
	for _, d := range days {
		if expected, ok := want[d.Date]; ok && d.Status != expected {
			t.Errorf("date %s status = %s, expected %s (slots %d)", d.Date, d.Status, expected, d.SlotsAvailable)
		}
	}
}

func TestAvailableDates_SlotsNeverNegative(t *testing.T) {
	engine := newTestEngine(weekdaySettings(), map[string]int{"2025-06-03": 7})

	days, err := engine.AvailableDates(context.Background(), 1)
	if err != nil {
		t.Fatalf("AvailableDates() error = %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("got %d days, expected 1", len(days))
	}
	if days[0].SlotsAvailable != 0 {
		t.Errorf("SlotsAvailable = %d, expected clamp at 0", days[0].SlotsAvailable)
	}
	if days[0].Status != domain.DayFull {
		t.Errorf("Status = %s, expected full", days[0].Status)
	}
}

func TestAvailableDates_DefaultSettingsWhenUnconfigured(t *testing.T) {
	engine := NewEngine(
		&mockScheduleRepo{err: apperrors.ErrNotFound},
		&mockBookingRepo{},
		clock.NewMock(testNow),
		zap.NewNop(),
	)

	days, err := engine.AvailableDates(context.Background(), 7)
	if err != nil {
		t.Fatalf("AvailableDates() error = %v", err)
	}
	if len(days) != 5 {
		t.Errorf("got %d days, expected 5 weekday fallback days", len(days))
	}
	for _, d := range days {
		if d.MaxSlots != domain.DefaultMaxJobsPerDay {
			t.Errorf("MaxSlots = %d, expected default %d", d.MaxSlots, domain.DefaultMaxJobsPerDay)
		}
	}
}

func TestHasCapacity(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		count int
		want  bool
	}{
		{"open work day", "2025-06-03", 0, true},
		{"one slot left", "2025-06-03", 3, true},
		{"exactly full", "2025-06-03", 4, false},
		{"over capacity", "2025-06-03", 5, false},
		{"weekend", "2025-06-07", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(weekdaySettings(), map[string]int{tt.date: tt.count})
			got, err := engine.HasCapacity(context.Background(), tt.date)
			if err != nil {
				t.Fatalf("HasCapacity() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasCapacity(%s with %d bookings) = %v, expected %v", tt.date, tt.count, got, tt.want)
			}
		})
	}
}

func TestHasCapacity_BlockedDate(t *testing.T) {
	settings := weekdaySettings()
	settings.BlockedDates = []string{"2025-06-03"}
	engine := newTestEngine(settings, nil)

	got, err := engine.HasCapacity(context.Background(), "2025-06-03")
	if err != nil {
		t.Fatalf("HasCapacity() error = %v", err)
	}
	if got {
		t.Error("blocked date should have no capacity")
	}
}

func TestHasCapacity_InvalidDate(t *testing.T) {
	engine := newTestEngine(weekdaySettings(), nil)

	_, err := engine.HasCapacity(context.Background(), "06/03/2025")
	if err == nil {
		t.Fatal("expected error for malformed date")
	}
	if apperrors.GetCode(err) != apperrors.CodeInvalidFormat {
		t.Errorf("code = %s, expected INVALID_FORMAT", apperrors.GetCode(err))
	}
}
