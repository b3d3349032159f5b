// Package jobs запускает фоновые задачи сервиса по расписанию.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Сколько зависших платежей сверяется за один проход.
const sweepBatch = 100

type RatingRecomputer interface {
	RecomputeRatings(ctx context.Context) (int, error)
}

type PaymentSweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	// RetryRefunds доводит возвраты, которые шлюз не принял с первого раза.
	RetryRefunds(ctx context.Context, limit int) (int, error)
}

type Config struct {
	RatingRecomputeEvery time.Duration
	PaymentSweepEvery    time.Duration
	PaymentStaleAfter    time.Duration
	// Таймаут одного запуска задачи.
	RunTimeout time.Duration
}

type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

// New регистрирует задачи; нулевой период отключает задачу.
func New(cfg Config, ratings RatingRecomputer, payments PaymentSweeper, log *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	s := &Scheduler{sched: sched, log: log}

	if cfg.RatingRecomputeEvery > 0 && ratings != nil {
		err := s.add("rating-recompute", cfg.RatingRecomputeEvery, cfg.RunTimeout, func(ctx context.Context) (int, error) {
			return ratings.RecomputeRatings(ctx)
		})
		if err != nil {
			return nil, err
		}
	}
	if cfg.PaymentSweepEvery > 0 && payments != nil {
		err := s.add("payment-sweep", cfg.PaymentSweepEvery, cfg.RunTimeout, func(ctx context.Context) (int, error) {
			return payments.SweepStale(ctx, cfg.PaymentStaleAfter, sweepBatch)
		})
		if err != nil {
			return nil, err
		}
		err = s.add("refund-retry", cfg.PaymentSweepEvery, cfg.RunTimeout, func(ctx context.Context) (int, error) {
			return payments.RetryRefunds(ctx, sweepBatch)
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every, timeout time.Duration, run func(context.Context) (int, error)) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			n, err := run(ctx)
			if err != nil {
				s.log.Error("job failed", zap.String("job", name), zap.Error(err))
				return
			}
			if n > 0 {
				s.log.Info("job done", zap.String("job", name), zap.Int("affected", n))
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Jobs() int {
	return len(s.sched.Jobs())
}

// Run запускает планировщик и останавливает его при отмене ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", zap.Int("jobs", s.Jobs()))
	s.sched.Start()
	<-ctx.Done()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	return nil
}
