package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrSlotDuration = errors.New("slot duration must be positive")

// MinuteRange представляет интервал внутри суток [Start, End) в минутах.
type MinuteRange struct {
	Start int
	End   int
}

func (r MinuteRange) Duration() int { return r.End - r.Start }

// SplitToTimeSlots разбивает окно на слоты длительностью slotMinutes с шагом stepMinutes.
// stepMinutes <= 0 означает шаг, равный длительности слота.
// "Хвост" меньшей длительности отбрасывается.
func SplitToTimeSlots(w Window, slotMinutes, stepMinutes int) ([]MinuteRange, error) {
	if slotMinutes <= 0 {
		return nil, ErrSlotDuration
	}
	if stepMinutes <= 0 {
		stepMinutes = slotMinutes
	}

	var slots []MinuteRange
	for cur := w.Start; cur+slotMinutes <= w.End; cur += stepMinutes {
		slots = append(slots, MinuteRange{Start: cur, End: cur + slotMinutes})
	}
	return slots, nil
}

// HasOverlap проверяет, пересекается ли newRange с existing.
// При inclusive = true касание концами считается пересечением.
func HasOverlap(newRange MinuteRange, existing []MinuteRange, inclusive bool) (bool, []MinuteRange) {
	var conflicts []MinuteRange
	for _, r := range existing {
		if rangesOverlap(newRange, r, inclusive) {
			conflicts = append(conflicts, r)
		}
	}
	return len(conflicts) > 0, conflicts
}

func rangesOverlap(a, b MinuteRange, inclusive bool) bool {
	if inclusive {
		return a.Start <= b.End && b.Start <= a.End
	}
	// Полуоткрытые интервалы пересекаются, если a.Start < b.End && b.Start < a.End
	return a.Start < b.End && b.Start < a.End
}

// FreeSlots возвращает слоты окна, не пересекающиеся с занятыми интервалами.
func FreeSlots(w Window, busy []MinuteRange, slotMinutes, stepMinutes int) ([]MinuteRange, error) {
	candidates, err := SplitToTimeSlots(w, slotMinutes, stepMinutes)
	if err != nil {
		return nil, err
	}
	free := make([]MinuteRange, 0, len(candidates))
	for _, c := range candidates {
		if has, _ := HasOverlap(c, busy, false); !has {
			free = append(free, c)
		}
	}
	return free, nil
}

// FormatSlot форматирует слот в строку вида "Monday, 12.01.2026, 10:00-12:00".
func FormatSlot(date time.Time, r MinuteRange) string {
	return fmt.Sprintf("%s, %s, %s-%s",
		date.Weekday(), date.Format("02.01.2006"), FormatClock(r.Start), FormatClock(r.End))
}
