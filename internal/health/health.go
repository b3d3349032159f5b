package health

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	"github.com/visiovate/Test-Backend/internal/db"
)

// ServiceName — имя сервиса в gRPC health protocol.
const ServiceName = "booking.core"

// Checker проверяет зависимости, без которых сервис не может работать.
type Checker struct {
	db      *gorm.DB
	timeout time.Duration
	log     *zap.Logger
}

func NewChecker(gdb *gorm.DB, timeout time.Duration, log *zap.Logger) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{db: gdb, timeout: timeout, log: log}
}

func (c *Checker) Check(ctx context.Context) error {
	return db.Ping(ctx, c.db, c.timeout)
}

// Update выставляет статус health-сервера по результату проверки.
func (c *Checker) Update(ctx context.Context, srv *health.Server) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := c.Check(ctx); err != nil {
		c.log.Warn("health check failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	srv.SetServingStatus("", status)
	srv.SetServingStatus(ServiceName, status)
	return status
}

// Watch обновляет статус с периодом every до отмены ctx.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, every time.Duration) {
	c.Update(ctx, srv)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
			c.Update(ctx, srv)
		}
	}
}
