package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/apperror"
)

// Clock возвращает текущее время; в тестах подменяется.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

type options struct {
	now Clock
}

type Option func(*options)

// WithClock задаёт источник времени для сервиса.
func WithClock(now Clock) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: utcNow}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// notFoundOr переводит ErrRecordNotFound в NotFound, остальное во внутреннюю ошибку.
func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(format, args...)
	}
	return apperror.Internal(err, format, args...)
}

// asAppError оставляет ошибки приложения как есть, прочие заворачивает во внутреннюю.
func asAppError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(err, format, args...)
}

func pageBounds(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, (page - 1) * limit
}
