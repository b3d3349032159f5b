package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
	"github.com/visiovate/Test-Backend/internal/auth"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/repository"
)

type ReviewService struct {
	db        *gorm.DB
	bookings  repository.BookingRepository
	reviews   repository.ReviewRepository
	providers repository.ProviderRepository
	notifier  *NotificationService
	log       *zap.Logger
}

func NewReviewService(
	db *gorm.DB,
	repos repository.Repositories,
	notifier *NotificationService,
	log *zap.Logger,
) *ReviewService {
	return &ReviewService{
		db:        db,
		bookings:  repos.Bookings,
		reviews:   repos.Reviews,
		providers: repos.Providers,
		notifier:  notifier,
		log:       log,
	}
}

// Create сохраняет отзыв клиента о завершённой брони, один на бронь.
// Рейтинг провайдера обновляется в той же транзакции.
func (s *ReviewService) Create(ctx context.Context, p auth.Principal, bookingID uuid.UUID, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apperror.Validation("rating must be between 1 and 5")
	}

	var (
		out    Outbox
		review *model.Review
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := s.bookings.WithTx(tx).GetForUpdate(ctx, bookingID)
		if err != nil {
			return notFoundOr(err, "booking not found")
		}
		if p.Type != model.PartyCustomer || b.CustomerID != p.ID {
			return apperror.Forbidden("only the customer of this booking can review it")
		}
		if b.Status != model.BookingStatusCompleted {
			return apperror.Validation("only completed bookings can be reviewed")
		}

		if _, err := s.reviews.WithTx(tx).GetByBookingID(ctx, b.ID); err == nil {
			return apperror.Conflict("booking already reviewed")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Internal(err, "load review")
		}

		review = &model.Review{
			BookingID:  b.ID,
			CustomerID: b.CustomerID,
			ProviderID: b.ProviderID,
			Rating:     rating,
			Comment:    strings.TrimSpace(comment),
		}
		if err := s.reviews.WithTx(tx).Create(ctx, review); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Conflict("booking already reviewed")
			}
			return apperror.Internal(err, "insert review")
		}
		if err := s.providers.WithTx(tx).AddRating(ctx, b.ProviderID, rating); err != nil {
			return apperror.Internal(err, "update provider rating")
		}

		return s.notifier.Notify(ctx, tx, &out, notification(
			model.PartyProvider, b.ProviderID,
			model.NotificationNewReview,
			"New review",
			fmt.Sprintf("You received a %d-star review.", rating),
			map[string]any{"bookingId": b.ID.String(), "reviewId": review.ID.String(), "rating": rating},
		))
	})
	if err != nil {
		return nil, asAppError(err, "create review")
	}

	s.notifier.Dispatch(&out)
	return review, nil
}

func (s *ReviewService) ListByProvider(ctx context.Context, providerID uuid.UUID, page, limit int) ([]model.Review, int64, error) {
	_, limit, offset := pageBounds(page, limit)
	items, total, err := s.reviews.ListByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, 0, apperror.Internal(err, "list reviews")
	}
	return items, total, nil
}

// RecomputeRatings пересчитывает агрегаты из отзывов; возвращает число исправленных провайдеров.
func (s *ReviewService) RecomputeRatings(ctx context.Context) (int, error) {
	fixed, err := s.providers.RecomputeRatings(ctx)
	if err != nil {
		return 0, apperror.Internal(err, "recompute ratings")
	}
	if fixed > 0 {
		s.log.Warn("provider rating drift corrected", zap.Int("providers", fixed))
	}
	return fixed, nil
}
