package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rampline.io/internal/blob"
	"rampline.io/internal/config"
	"rampline.io/internal/content"
	"rampline.io/internal/httpapi"
	"rampline.io/internal/identity"
	"rampline.io/internal/indexer"
	"rampline.io/internal/migrate"
	"rampline.io/internal/obs"
	"rampline.io/internal/session"
	"rampline.io/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().WithError(err).Fatal("load configuration")
	}

	obs.Init()
	obs.SetLevel(cfg.LogLevel)
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	store, err := pg.Open(cfg.DSN)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := migrate.NewManager(store.DB(), cfg.MigrationsDir).Up(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("apply migrations")
	}

	identities, err := identity.NewService(store)
	if err != nil {
		cancel()
		log.WithError(err).Fatal("identity service")
	}

	// Seeding is strict at boot. A half-seeded platform cannot enforce
	// any of its access rules, so every failure here is fatal.
	if err := identities.EnsureRoles(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("seed roles")
	}
	if err := identities.EnsureDefaultDepartments(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("seed departments")
	}
	if err := identities.EnsureBootstrapAdministrator(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		cancel()
		log.WithError(err).Fatal("seed bootstrap administrator")
	}
	cancel()

	var blobs blob.Store
	if cfg.Blob.S3Enabled() {
		blobs, err = blob.NewS3Store(blob.S3Options{
			Bucket:       cfg.Blob.S3Bucket,
			Region:       cfg.Blob.S3Region,
			Endpoint:     cfg.Blob.S3Endpoint,
			AccessKey:    cfg.Blob.S3AccessKey,
			SecretKey:    cfg.Blob.S3SecretKey,
			UsePathStyle: cfg.Blob.S3UsePathStyle,
		})
	} else {
		blobs, err = blob.NewFSStore(cfg.Blob.Dir)
	}
	if err != nil {
		log.WithError(err).Fatal("blob storage")
	}

	var index indexer.Indexer = indexer.Disabled{}
	if cfg.IndexerURL != "" {
		index, err = indexer.New(cfg.IndexerURL)
		if err != nil {
			log.WithError(err).Fatal("indexer client")
		}
	}

	contentSvc, err := content.NewService(store, blobs, index)
	if err != nil {
		log.WithError(err).Fatal("content service")
	}

	sessions, err := session.NewManager(cfg.SessionSecret,
		session.WithTTL(cfg.SessionTTL),
		session.WithSecureCookies(cfg.IsProduction()))
	if err != nil {
		log.WithError(err).Fatal("session manager")
	}

	api := httpapi.New(httpapi.Options{
		Identities: identities,
		Content:    contentSvc,
		Sessions:   sessions,
		Store:      store,
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
	})

	handler := httpapi.Logging(
		httpapi.SecurityHeaders(
			httpapi.RateLimit(
				httpapi.MaxBodyBytes(api.Handler(), 96<<20),
				cfg.RateLimitRPS, cfg.RateLimitBurst)))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithFields(map[string]any{"addr": cfg.ListenAddr, "version": version}).Info("starting rampline-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("stopped")
}
