package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/assignment-tracker-api/api/swagger"
	"github.com/noah-isme/assignment-tracker-api/internal/handler"
	"github.com/noah-isme/assignment-tracker-api/internal/middleware"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/internal/repository"
	"github.com/noah-isme/assignment-tracker-api/internal/service"
	"github.com/noah-isme/assignment-tracker-api/pkg/cache"
	"github.com/noah-isme/assignment-tracker-api/pkg/config"
	"github.com/noah-isme/assignment-tracker-api/pkg/database"
	"github.com/noah-isme/assignment-tracker-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/assignment-tracker-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/assignment-tracker-api/pkg/middleware/requestid"
	"github.com/noah-isme/assignment-tracker-api/pkg/storage"
)

// @title Assignment Tracker API
// @version 1.0.0
// @description Assignment scheduling, fan-out and per-applicant lifecycle tracking.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type assignmentStore interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Assignment, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
}

type trackStore interface {
	Append(ctx context.Context, entry *models.TrackEntry) error
	Get(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error)
	ListByApplicant(ctx context.Context, applicantID string) ([]models.TrackEntry, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.TrackEntry, error)
	Update(ctx context.Context, entry *models.TrackEntry) error
}

type applicantDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Applicant, error)
	ListByGroupTag(ctx context.Context, tag string) ([]models.Applicant, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Applicant, error)
}

// stores bundles the driver-specific repositories behind the interfaces the services consume.
type stores struct {
	assignments assignmentStore
	tracks      trackStore
	applicants  applicantDirectory
	ready       handler.ReadinessCheck
	close       func(ctx context.Context) error
}

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

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(rootCtx, cfg)
	if err != nil {
		logr.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Notifications.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis, cfg.Store.Timeout)
		if err != nil {
			logr.Warn("redis unavailable, cache and pub/sub disabled", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()
	validate := validator.New()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.DefinitionTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	notifier := service.NewNotificationService(cacheRepo, service.NotificationConfig{
		Enabled: cfg.Notifications.Enabled && redisClient != nil,
		Channel: cfg.Notifications.Channel,
		Workers: cfg.Notifications.Workers,
		Retries: cfg.Notifications.Retries,
	}, metrics, logr)
	notifier.Start(rootCtx)

	assignmentSvc := service.NewAssignmentService(st.assignments, st.tracks, st.applicants, validate, logr,
		service.WithAssignmentNotifier(notifier),
		service.WithAssignmentMetrics(metrics),
		service.WithAssignmentCache(cacheSvc),
		service.WithAssignmentStoreTimeout(cfg.Store.Timeout),
		service.WithFanoutConcurrency(cfg.Fanout.Concurrency),
	)
	trackSvc := service.NewTrackService(st.tracks, st.assignments, st.applicants, validate, logr,
		service.WithTrackNotifier(notifier),
		service.WithTrackMetrics(metrics),
		service.WithTrackCache(cacheSvc),
		service.WithTrackStoreTimeout(cfg.Store.Timeout),
	)
	exportSvc := service.NewExportService(trackSvc, logr, nil, nil)

	blobs, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}
	uploadSvc := service.NewUploadService(blobs, storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL), service.UploadConfig{
		MaxFileSize:       cfg.Uploads.MaxFileSizeBytes,
		MaxTotalSize:      cfg.Uploads.MaxTotalSizeBytes,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
		PublicBaseURL:     cfg.Uploads.PublicBaseURL,
		APIPrefix:         cfg.APIPrefix,
	}, logr)
	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})

	checks := map[string]handler.ReadinessCheck{"store": st.ready}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.MaxMultipartMemory = 8 << 20

	handler.RegisterRoutes(r, cfg.APIPrefix, tokens, handler.Handlers{
		Assignments: handler.NewAssignmentHandler(assignmentSvc, trackSvc, exportSvc),
		Tracks:      handler.NewTrackHandler(trackSvc),
		Uploads:     handler.NewUploadHandler(uploadSvc),
		Metrics:     handler.NewMetricsHandler(metrics, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logr.Warn("notification queue not drained", zap.Error(err))
	}
	if err := cacheRepo.Close(); err != nil {
		logr.Warn("failed to close redis", zap.Error(err))
	}
	if err := st.close(shutdownCtx); err != nil {
		logr.Warn("failed to close store", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureMongoIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{
			assignments: repository.NewMongoAssignmentRepository(db),
			tracks:      repository.NewMongoTrackRepository(db),
			applicants:  repository.NewMongoApplicantRepository(db),
			ready:       func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:       client.Disconnect,
		}, nil
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.EnsurePostgresSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			assignments: repository.NewAssignmentRepository(db),
			tracks:      repository.NewTrackRepository(db),
			applicants:  repository.NewApplicantRepository(db),
			ready:       db.PingContext,
			close:       func(context.Context) error { return db.Close() },
		}, nil
	}
}
