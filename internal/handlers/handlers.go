package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"thermascan/api/internal/config"
	"thermascan/api/internal/middleware"
	"thermascan/api/internal/models"
	"thermascan/api/internal/repository"
	"thermascan/api/internal/service"
	"thermascan/api/internal/storage"
	"thermascan/api/internal/vision"
)

// AuthProvider issues and verifies credentials.
type AuthProvider interface {
	middleware.Authenticator
	Register(ctx context.Context, input service.RegisterInput) (service.AuthResult, error)
	Login(ctx context.Context, input service.LoginInput) (service.AuthResult, error)
}

// Scanner runs the detection pipeline for one uploaded image.
type Scanner interface {
	Scan(ctx context.Context, input service.ScanInput) (service.ScanResult, error)
}

// RecordReader covers the owner-scoped record operations.
type RecordReader interface {
	GetByID(ctx context.Context, id, userID string) (models.DetectionRecord, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.DetectionRecord, error)
	Delete(ctx context.Context, id, userID string) error
}

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	auth    AuthProvider
	scanner Scanner
	records RecordReader
	cache   *redis.Client
}

func NewHandlerSet(
	log zerolog.Logger,
	db *pgxpool.Pool,
	cache *redis.Client,
	store *storage.ObjectStore,
	visionClient *vision.Client,
	cfg *config.AppConfig,
) HandlerSet {
	userRepo := repository.NewUserRepository(db)
	detectionRepo := repository.NewDetectionRepository(db)
	auth := service.NewAuthService(userRepo, cfg.Security.JWTAccessSecret, cfg.Security.JWTAccessTTL, log)
	scanner := service.NewScanService(store, detectionRepo, visionClient, vision.ExtractDetections, cfg.Storage.PresignTTL, log)

	return HandlerSet{
		log:     log,
		cfg:     cfg,
		auth:    auth,
		scanner: scanner,
		records: detectionRepo,
		cache:   cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)

		scans := v1.Group("/scans")
		scans.Use(middleware.Auth(h.auth))
		if h.cfg.RateLimit.Enabled && h.cache != nil {
			// Only uploads consume quota; reads stay unmetered.
			scans.POST("", middleware.RateLimit(h.cache, h.cfg.RateLimit.Limit, h.cfg.RateLimit.Window, h.log), h.Scan)
		} else {
			scans.POST("", h.Scan)
		}
		scans.GET("", h.ListScans)
		scans.GET("/:id", h.GetScan)
		scans.DELETE("/:id", h.DeleteScan)
	}
}
