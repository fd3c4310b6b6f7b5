package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lineage/api/internal/app"
	"lineage/api/internal/archive"
	"lineage/api/internal/auth"
	"lineage/api/internal/config"
	"lineage/api/internal/lock"
	"lineage/api/internal/notify"
	"lineage/api/internal/rbac"
	"lineage/api/internal/search"
	"lineage/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	var dataStore store.Store
	var pgfts *search.PgFTS
	switch cfg.Store {
	case "memory":
		log.Printf("Using in-memory store")
		memory := store.NewMemoryStore()
		if cfg.SeedDemo {
			seedDemo(ctx, memory, cfg.JWTSecret)
		}
		dataStore = memory
	default:
		db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.DB.ConnMaxIdleTime,
		})
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, store.Migrations()); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		if cfg.SeedDemo {
			log.Printf("LINEAGE_SEED_DEMO ignored for the postgres store")
		}
		dataStore = store.NewPostgresStore(db)
		pgfts = search.NewPgFTS(db)
	}

	var locker lock.Locker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for draft locks")
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, cfg.LockTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		log.Printf("Using in-process draft locks")
		locker = lock.NewLocalLocker()
	}

	var notifier app.NotificationSink = notify.LogSink{}
	mailer := notify.NewMailer(notify.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		log.Printf("Owner notifications sent by email via %s", cfg.SMTPHost)
		notifier = notify.NewEmailSink(dataStore, mailer)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(ctx)

	deps := app.Dependencies{
		Store:    dataStore,
		Gate:     rbac.NewGate(dataStore),
		Locker:   locker,
		Notifier: notifier,
		Search:   searchService,
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		changeArchive, err := archive.NewMinio(ctx, archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: change-set archive disabled: %v", err)
		} else {
			deps.Archive = changeArchive
		}
	}
	service := app.New(deps)

	httpServer := app.NewHTTPServer(service, cfg.JWTSecret, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Lineage API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// seedDemo writes the demo tree and logs bearer tokens for its owner and
// editor so the API can be tried without a login service.
func seedDemo(ctx context.Context, s *store.MemoryStore, secret string) {
	demo, err := store.SeedDemo(ctx, s)
	if err != nil {
		log.Printf("WARNING: demo seed failed: %v", err)
		return
	}
	for _, user := range []store.User{demo.Owner, demo.Editor} {
		token, err := auth.IssueToken([]byte(secret), user.ID, user.DisplayName, 24*time.Hour)
		if err != nil {
			log.Printf("WARNING: demo token for user %d: %v", user.ID, err)
			continue
		}
		log.Printf("demo user %d (%s) token: %s", user.ID, user.DisplayName, token)
	}
	log.Printf("demo tree %d seeded, loose memorial %d", demo.Tree.ID, demo.Loose.ID)
}
