package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/visiovate/Test-Backend/internal/config"
	"github.com/visiovate/Test-Backend/internal/db"
	"github.com/visiovate/Test-Backend/internal/events"
	"github.com/visiovate/Test-Backend/internal/health"
	"github.com/visiovate/Test-Backend/internal/httpapi"
	"github.com/visiovate/Test-Backend/internal/jobs"
	"github.com/visiovate/Test-Backend/internal/logger"
	"github.com/visiovate/Test-Backend/internal/model"
	"github.com/visiovate/Test-Backend/internal/payment"
	"github.com/visiovate/Test-Backend/internal/realtime"
	"github.com/visiovate/Test-Backend/internal/repository"
	"github.com/visiovate/Test-Backend/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second
	healthEvery     = 15 * time.Second
)

func main() {
	// 1. .env необязателен, переменные окружения важнее.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// 2. БД и миграции.
	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		lg.Fatal("init db", zap.Error(err))
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		lg.Fatal("auto migrate", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		lg.Fatal("sql DB", zap.Error(err))
	}
	defer sqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Realtime: Redis fan-out между инстансами, иначе только локальный hub.
	hub := realtime.NewHub(lg, checkOrigin(cfg.App.CORSOrigins))
	var (
		publisher realtime.Publisher = hub
		rdb       *redis.Client
	)
	if cfg.Redis.URL != "" {
		rdb, err = newRedis(ctx, cfg.Redis.URL)
		if err != nil {
			lg.Warn("redis unavailable, realtime stays local", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			publisher = realtime.NewRedisPublisher(rdb, cfg.Redis.RoomPrefix)
		}
	}

	// 4. Доменные события в Kafka, если заданы брокеры.
	var sink events.Sink = events.NopSink{}
	if cfg.Kafka.Brokers != "" {
		ks, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg)
		if err != nil {
			lg.Fatal("init kafka sink", zap.Error(err))
		}
		defer ks.Close()
		sink = ks
	}

	// 5. Платёжный шлюз.
	if cfg.Stripe.SecretKey == "" {
		lg.Warn("STRIPE_SECRET_KEY is empty, payment calls will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey)
	webhook := payment.NewStripeWebhook(cfg.Stripe.WebhookSecret)

	// 6. Сервисы.
	repos := repository.NewRepositories(gormDB)
	notifier := service.NewNotificationService(repos.Notifications, publisher, sink, lg, cfg.Redis.PushTimeout)
	payments := service.NewPaymentService(gormDB, repos, gateway, notifier, lg)
	bookings := service.NewBookingService(gormDB, repos, gateway, payments, notifier, service.BookingOptions{
		Currency:                cfg.Booking.Currency,
		RequirePaymentForAccept: cfg.Booking.RequirePaymentForAccept,
	}, lg)
	reviews := service.NewReviewService(gormDB, repos, notifier, lg)
	checker := health.NewChecker(gormDB, 2*time.Second, lg)

	scheduler, err := jobs.New(jobs.Config{
		RatingRecomputeEvery: cfg.Jobs.RatingRecomputeEvery,
		PaymentSweepEvery:    cfg.Jobs.PaymentSweepEvery,
		PaymentStaleAfter:    cfg.Jobs.PaymentStaleAfter,
	}, reviews, payments, lg)
	if err != nil {
		lg.Fatal("init scheduler", zap.Error(err))
	}

	// 7. HTTP.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Options{
		APIPrefix:         cfg.App.APIPrefix,
		JWTSecret:         cfg.Auth.JWTSecret,
		CORSOrigins:       corsOrigins(cfg.App.CORSOrigins),
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}, httpapi.Deps{
		Bookings:      bookings,
		Payments:      payments,
		Notifications: notifier,
		Reviews:       reviews,
		Messages:      service.NewMessageService(gormDB, repos, notifier),
		Search:        service.NewSearchService(repos),
		Webhook:       webhook,
		Hub:           hub,
		Health:        checker,
	}, lg)
	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 8. gRPC: health protocol и reflection.
	grpcServer := grpc.NewServer()
	healthSrv := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		lg.Fatal("grpc listen", zap.String("addr", cfg.App.GRPCAddr), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("http server listening", zap.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("grpc server listening", zap.String("addr", cfg.App.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		checker.Watch(gctx, healthSrv, healthEvery)
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	if rdb != nil {
		g.Go(func() error {
			return hub.Relay(gctx, rdb, cfg.Redis.RoomPrefix)
		})
	}

	// 9. Грейсфул-шатдаун по сигналу или падению любой из горутин.
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Error("server stopped with error", zap.Error(err))
	}
}

func newRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// corsOrigins: "*" означает любой origin.
func corsOrigins(origins []string) []string {
	if slices.Contains(origins, "*") {
		return nil
	}
	return origins
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	allowed := corsOrigins(origins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return len(allowed) == 0 || origin == "" || slices.Contains(allowed, origin)
	}
}
