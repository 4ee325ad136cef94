package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/researchlab/labsite/handlers"
	"github.com/researchlab/labsite/internal/config"
	"github.com/researchlab/labsite/internal/content/handler"
	"github.com/researchlab/labsite/internal/content/repository"
	"github.com/researchlab/labsite/internal/content/service"
	"github.com/researchlab/labsite/internal/database"
	"github.com/researchlab/labsite/internal/oidc"
	"github.com/researchlab/labsite/internal/sessions"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/researchlab/labsite/internal/tokens"
	"github.com/researchlab/labsite/pkg/logger"
	"github.com/researchlab/labsite/pkg/metrics"
	"github.com/researchlab/labsite/pkg/middleware"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL is read again from config below; this covers config loading itself
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFile(cfg.Log.File, cfg.Log.MaxSizeMB)
	logger.Infof("config loaded: content=%s storage=%s mongo=%v redis=%v keycloak=%v",
		cfg.Content.Backend, cfg.Storage.Backend, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Keycloak.URL != "")

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowOrigins) == 0 || (len(cfg.CORS.AllowOrigins) == 1 && cfg.CORS.AllowOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	}
	r.Use(cors.New(corsConfig))

	ctx := context.Background()

	// Redis backs sessions, the token blacklist and the shared rate limiter when present
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v; falling back to in-process state", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = client.Close()
		} else {
			rdb = client
			defer rdb.Close()
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
			logger.Infof("rate limiter: redis, %d requests per %s", cfg.RateLimit.Burst, win)
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			logger.Infof("rate limiter: in-memory, %.1f rps burst %d", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	var mongoClient *mongo.Client
	if cfg.MongoDB.URI != "" {
		mongoClient, err = database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil && cfg.Content.Backend == "mongo" {
			logger.Fatalf("content backend is mongo but MongoDB is unreachable: %v", err)
		}
		if err != nil {
			logger.Warnf("MongoDB unavailable, continuing without it: %v", err)
		} else {
			logger.Infof("connected to MongoDB database %q", cfg.MongoDB.Database)
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		}
	}

	var repo repository.Repository
	switch cfg.Content.Backend {
	case "mongo":
		repo = repository.NewMongoRepo(mongoClient.Database(cfg.MongoDB.Database).Collection("content"))
	case "memory":
		logger.Warn("content backend is memory; edits are lost on restart")
		repo = repository.NewMemoryRepo()
	default:
		repo = repository.NewFileRepo(cfg.Content.DataFile)
	}

	blobs, err := storage.New(storage.Options{
		Backend:   cfg.Storage.Backend,
		UploadDir: cfg.Storage.UploadDir,
		URLPrefix: cfg.Storage.URLPrefix,
		MaxBytes:  cfg.Storage.MaxUploadBytes,
		MinIO: &storage.MinIOConfig{
			Endpoint:      cfg.MinIO.Endpoint,
			AccessKey:     cfg.MinIO.AccessKey,
			SecretKey:     cfg.MinIO.SecretKey,
			UseSSL:        cfg.MinIO.UseSSL,
			Bucket:        cfg.MinIO.Bucket,
			PublicBaseURL: cfg.MinIO.PublicBaseURL,
		},
	})
	if err != nil {
		logger.Fatalf("failed to initialize blob storage: %v", err)
	}
	svc := service.New(repo, blobs)

	var sessionRepo sessions.Repository
	switch {
	case rdb != nil:
		sessionRepo = sessions.NewRedisRepository(rdb, "")
	case mongoClient != nil:
		col := mongoClient.Database(cfg.MongoDB.Database).Collection("sessions")
		if err := database.EnsureSessionIndexes(ctx, col); err != nil {
			logger.Warnf("%v", err)
		}
		sessionRepo = sessions.NewMongoRepository(col)
	default:
		sessionRepo = sessions.NewMemoryRepository()
	}
	sessionSvc := sessions.NewService(sessionRepo)
	blacklist := sessions.NewBlacklist(rdb)

	verifiers := []middleware.Verifier{tokens.NewVerifier(cfg.JWT.Secret)}
	oidcReady := cfg.Keycloak.URL == ""
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := cfg.Keycloak.URL
		if cfg.Keycloak.Realm != "" {
			issuer = oidc.KeycloakIssuer(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		}
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID, cfg.Keycloak.AdminRole)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier for %s: %v", issuer, err)
		} else {
			verifiers = append(verifiers, ver)
			oidcReady = true
			logger.Infof("accepting Keycloak tokens from %s", issuer)
		}
	}
	authMW := middleware.AuthMiddleware(middleware.FirstOf(verifiers...), blacklist)

	handler.RegisterContentRoutes(r, svc, authMW)
	handlers.NewUploadHandler(blobs, svc, cfg.Storage.MaxUploadBytes).Register(r, authMW)
	handlers.NewAuthHandler(cfg, sessionSvc, blacklist).Register(r, authMW)
	handlers.RegisterSwagger(r)
	if local, ok := blobs.(*storage.LocalStore); ok {
		r.Static(cfg.Storage.URLPrefix, local.Dir())
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when the content document can be loaded and configured deps answer
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{}
		_, loadErr := repo.Load(c.Request.Context())
		deps["content"] = loadErr == nil
		deps["oidc"] = oidcReady
		if cfg.Redis.Host != "" {
			deps["redis"] = rdb != nil && rdb.Ping(c.Request.Context()).Err() == nil
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
			if loadErr != nil {
				logger.Warnf("readiness: content document unavailable: %v", loadErr)
			}
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("content service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down content service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}
