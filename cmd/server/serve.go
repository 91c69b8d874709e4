package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayush/favorites-app/internal/admin"
	"github.com/ayush/favorites-app/internal/auth"
	"github.com/ayush/favorites-app/internal/config"
	"github.com/ayush/favorites-app/internal/favorites"
	"github.com/ayush/favorites-app/internal/server"
	"github.com/ayush/favorites-app/internal/store"
	"github.com/ayush/favorites-app/internal/timeline"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		serve(config.Load())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply database migrations before serving")
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) {
	ctx := context.Background()

	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := openPostgres(ctx, cfg, serveMigrate)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer pgPool.Close()
	users := store.NewPostgresStore(pgPool)

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := openMongo(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer mongoClient.Disconnect(ctx)
	docs := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := docs.EnsureIndexes(ctx); err != nil {
		// Reads degrade and writes report 503 until Mongo is reachable.
		log.Printf("mongo indexes: %v", err)
	}

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.DBTimeout)
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb, cfg.SessionTTL)

	// ── MinIO ────────────────────────────────────────────────
	var archive admin.FileStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := store.NewMinioStore(
			ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
			cfg.ArchiveDays,
		)
		if err != nil {
			log.Fatalf("minio connect: %v", err)
		}
		archive = minioStore
	} else {
		log.Printf("MINIO_ENDPOINT not set, deleted users will not be archived")
	}

	// ── Timeline recorder ────────────────────────────────────
	recorder := timeline.NewRecorder(docs, cfg.TimelineQueue, cfg.DBTimeout)
	defer recorder.Close()

	// ── Handlers ─────────────────────────────────────────────
	handler := server.NewRouter(server.Handlers{
		Auth: auth.NewHandler(users, sessions, recorder, auth.CookieOptions{
			TTL:    cfg.SessionTTL,
			Secure: cfg.CookieSecure,
		}),
		Favorites: favorites.NewHandler(docs, recorder),
		Timeline:  timeline.NewHandler(docs),
		Admin:     admin.NewHandler(users, docs, sessions, archive),
	}, sessions, server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
