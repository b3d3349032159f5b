package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockChecker(t *testing.T) (*Checker, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectPing()
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	return NewChecker(gdb, time.Second, zap.NewNop()), mock
}

func TestChecker_Update(t *testing.T) {
	checker, mock := newMockChecker(t)
	srv := health.NewServer()
	ctx := context.Background()

	mock.ExpectPing()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checker.Update(ctx, srv))

	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	mock.ExpectPing().WillReturnError(errors.New("db down"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, checker.Update(ctx, srv))

	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	assert.NoError(t, mock.ExpectationsWereMet())
}
