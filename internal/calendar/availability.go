package calendar

import (
	"errors"
	"fmt"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
)

var (
	ErrNoAvailabilityOnDay       = errors.New("provider has no availability on this day")
	ErrOutsideAvailabilityWindow = errors.New("requested slot is outside the availability window")
	ErrSpansDayBoundary          = errors.New("slot must not span a day boundary")
	ErrInvalidDuration           = errors.New("duration must be positive")
	ErrInvalidClock              = errors.New("invalid clock value, expected HH:MM")
	ErrInvalidWindow             = errors.New("availability window end must be after start")
)

// Window — окно доступности в минутах от начала суток, [Start, End).
type Window struct {
	Start int
	End   int
}

// WeeklySchedule хранит не больше одного окна на день недели.
type WeeklySchedule map[time.Weekday]Window

// AddWindow добавляет окно дня недели из строк "HH:MM".
func (s WeeklySchedule) AddWindow(day time.Weekday, start, end string) error {
	from, err := ParseClock(start)
	if err != nil {
		return err
	}
	to, err := ParseClock(end)
	if err != nil {
		return err
	}
	if to <= from {
		return fmt.Errorf("%s %s-%s: %w", day, start, end, ErrInvalidWindow)
	}
	s[day] = Window{Start: from, End: to}
	return nil
}

// ResolveAvailability решает, помещается ли слот в недельное расписание.
// Чистая функция: одинаковые входы всегда дают одинаковый результат.
func ResolveAvailability(schedule WeeklySchedule, date time.Time, startMinute, durationMinutes int) error {
	if durationMinutes <= 0 {
		return ErrInvalidDuration
	}
	if startMinute < 0 || startMinute >= MinutesPerDay {
		return ErrInvalidClock
	}
	if startMinute+durationMinutes > MinutesPerDay {
		return ErrSpansDayBoundary
	}

	w, ok := schedule[date.Weekday()]
	if !ok {
		return ErrNoAvailabilityOnDay
	}

	if startMinute < w.Start || startMinute+durationMinutes > w.End {
		return ErrOutsideAvailabilityWindow
	}
	return nil
}

// ParseClock переводит "HH:MM" в минуты от начала суток.
func ParseClock(s string) (int, error) {
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidClock)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock обратна ParseClock.
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseDate разбирает дату YYYY-MM-DD в UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
