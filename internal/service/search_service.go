package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/repository"
)

// Шаг сетки свободных слотов в выдаче поиска.
const searchSlotStep = 30

// SearchQuery задаёт параметры поиска. StartMinute < 0 означает, что время не задано,
// тогда провайдер подходит при наличии хотя бы одного свободного слота в дне.
type SearchQuery struct {
	Date            string
	StartMinute     int
	DurationMinutes int
	Service         string
	City            string
	MinRating       float64
	MaxRate         int64
	Page            int
	Limit           int
}

type ProviderMatch struct {
	Provider  model.Provider
	Rating    float64
	Price     Price
	FreeSlots []calendar.MinuteRange
}

type SearchService struct {
	providers repository.ProviderRepository
	slots     repository.SlotRepository
}

func NewSearchService(repos repository.Repositories) *SearchService {
	return &SearchService{providers: repos.Providers, slots: repos.Slots}
}

// Search ищет активных провайдеров, свободных в указанный день.
// Порядок: рейтинг по убыванию, затем ставка по возрастанию.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) (calendar.Page[ProviderMatch], error) {
	date, err := calendar.ParseDate(q.Date)
	if err != nil {
		return calendar.Page[ProviderMatch]{}, apperror.Validation("%s", err.Error())
	}
	if q.DurationMinutes <= 0 {
		return calendar.Page[ProviderMatch]{}, apperror.Validation("duration must be positive")
	}

	candidates, err := s.providers.ListActive(ctx, repository.ProviderFilter{City: q.City, MaxRate: q.MaxRate})
	if err != nil {
		return calendar.Page[ProviderMatch]{}, apperror.Internal(err, "list providers")
	}

	type scheduled struct {
		provider model.Provider
		window   calendar.Window
	}
	var pool []scheduled
	for _, p := range candidates {
		if q.Service != "" && !p.Offers(strings.TrimSpace(q.Service)) {
			continue
		}
		if q.MinRating > 0 && p.Rating() < q.MinRating {
			continue
		}
		schedule, err := weeklySchedule(p.Availability)
		if err != nil {
			continue
		}
		if q.StartMinute >= 0 {
			err := calendar.ResolveAvailability(schedule, date, q.StartMinute, q.DurationMinutes)
			if errors.Is(err, calendar.ErrSpansDayBoundary) || errors.Is(err, calendar.ErrInvalidClock) {
				return calendar.Page[ProviderMatch]{}, apperror.Validation("%s", err.Error())
			}
			if err != nil {
				continue
			}
		}
		w, ok := schedule[date.Weekday()]
		if !ok {
			continue
		}
		pool = append(pool, scheduled{provider: p, window: w})
	}

	ids := make([]uuid.UUID, 0, len(pool))
	for _, c := range pool {
		ids = append(ids, c.provider.ID)
	}
	busy, err := s.slots.ListBusyByProviders(ctx, ids, date.Format(calendar.DateLayout))
	if err != nil {
		return calendar.Page[ProviderMatch]{}, apperror.Internal(err, "load busy intervals")
	}

	matches := make([]ProviderMatch, 0, len(pool))
	for _, c := range pool {
		taken := busy[c.provider.ID]
		var free []calendar.MinuteRange
		if q.StartMinute >= 0 {
			requested := calendar.MinuteRange{Start: q.StartMinute, End: q.StartMinute + q.DurationMinutes}
			if has, _ := calendar.HasOverlap(requested, taken, false); has {
				continue
			}
			free = []calendar.MinuteRange{requested}
		} else {
			free, err = calendar.FreeSlots(c.window, taken, q.DurationMinutes, searchSlotStep)
			if err != nil || len(free) == 0 {
				continue
			}
		}
		matches = append(matches, ProviderMatch{
			Provider:  c.provider,
			Rating:    c.provider.Rating(),
			Price:     Quote(c.provider.HourlyRate, q.DurationMinutes),
			FreeSlots: free,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Rating != matches[j].Rating {
			return matches[i].Rating > matches[j].Rating
		}
		if matches[i].Provider.HourlyRate != matches[j].Provider.HourlyRate {
			return matches[i].Provider.HourlyRate < matches[j].Provider.HourlyRate
		}
		return matches[i].Provider.DisplayName < matches[j].Provider.DisplayName
	})

	return calendar.Paginate(matches, q.Page, q.Limit), nil
}
