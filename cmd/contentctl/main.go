// Command contentctl inspects and maintains the site content document offline:
// list and get records, export or import the whole document, sweep uploaded
// images no record references, and hash the admin password.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/researchlab/labsite/internal/config"
	"github.com/researchlab/labsite/internal/content/repository"
	"github.com/researchlab/labsite/internal/content/service"
	"github.com/researchlab/labsite/internal/database"
	"github.com/researchlab/labsite/internal/storage"
	"github.com/researchlab/labsite/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var svc *service.Service
	if needsService(os.Args[1:]) {
		var closeFn func()
		svc, closeFn, err = openService(ctx, cfg)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer closeFn()
	}

	if err := run(ctx, svc, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "contentctl:", err)
		os.Exit(1)
	}
}

// openService builds the same document and blob backends the server uses.
func openService(ctx context.Context, cfg *config.Config) (*service.Service, func(), error) {
	closeFn := func() {}
	var repo repository.Repository
	switch cfg.Content.Backend {
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = client.Disconnect(context.Background()) }
		repo = repository.NewMongoRepo(client.Database(cfg.MongoDB.Database).Collection("content"))
	case "memory":
		return nil, nil, fmt.Errorf("CONTENT_BACKEND=memory has nothing to inspect from the command line")
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
		closeFn()
		return nil, nil, fmt.Errorf("blob storage: %w", err)
	}
	return service.New(repo, blobs), closeFn, nil
}
