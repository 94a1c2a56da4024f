package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-approval-api/internal/handler"
	"github.com/noah-isme/sma-approval-api/internal/repository"
	"github.com/noah-isme/sma-approval-api/internal/service"
	"github.com/noah-isme/sma-approval-api/pkg/cache"
	"github.com/noah-isme/sma-approval-api/pkg/config"
	"github.com/noah-isme/sma-approval-api/pkg/database"
	"github.com/noah-isme/sma-approval-api/pkg/export"
	"github.com/noah-isme/sma-approval-api/pkg/logger"
)

// @title School Administration API
// @version 1.0.0
// @description Student records with a change request approval workflow.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, summary cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	validate := newValidator()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	tx := repository.NewTxManager(db)
	users := repository.NewUserRepository(db)
	classes := repository.NewClassRepository(db)
	subjects := repository.NewSubjectRepository(db)
	changeRequests := repository.NewChangeRequestRepository(db)
	stores := service.EntityStores{
		Students:     repository.NewStudentRepository(db),
		Marks:        repository.NewMarksRepository(db),
		Attendance:   repository.NewAttendanceRepository(db),
		Fees:         repository.NewFeeRepository(db),
		MonthlyTests: repository.NewMonthlyTestRepository(db),
		TestMarks:    repository.NewTestMarksRepository(db),
	}

	ledger := service.NewChangeLedger(changeRequests, tx, cacheSvc, logr)
	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	writeRouter := service.NewWriteRouter(stores, ledger, validate, logr,
		service.WithWriteMetrics(metrics),
		service.WithWriteAudit(users),
	)
	approvals := service.NewApprovalService(changeRequests, ledger, tx, service.NewChangeAppliers(stores, logr), logr,
		service.WithApprovalAudit(users),
		service.WithApprovalCache(cacheSvc),
		service.WithApprovalMetrics(metrics),
		service.WithBulkLimit(cfg.Approvals.BulkLimit),
	)
	requests := service.NewChangeRequestService(changeRequests, ledger, validate, logr,
		service.WithSummaryCache(cacheSvc, cfg.Approvals.SummaryCacheTTL),
		service.WithListLimit(cfg.Approvals.ListLimit),
		service.WithExporters(export.NewCSVExporter(export.WithBOM()), export.NewPDFExporter()),
	)
	summaries := service.NewSummaryService(subjects, stores.Marks, stores.MonthlyTests, stores.TestMarks, changeRequests, logr)
	records := service.NewRecordService(classes, subjects, stores, validate, logr)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = redisPinger{client: redisClient}
	}

	router := newRouter(cfg, logr, routeDeps{
		auth:           authSvc,
		metrics:        metrics,
		audit:          users,
		authHandler:    handler.NewAuthHandler(authSvc),
		records:        handler.NewRecordHandler(records),
		writes:         handler.NewWriteHandler(writeRouter),
		summaries:      handler.NewSummaryHandler(summaries),
		changeRequests: handler.NewChangeRequestHandler(requests, approvals),
		ops:            handler.NewMetricsHandler(metrics, checks),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

// newValidator reports json field names so error details match the payload.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
