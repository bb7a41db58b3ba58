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

	"mosaic/api/internal/app"
	"mosaic/api/internal/config"
	"mosaic/api/internal/realtime"
	"mosaic/api/internal/session"
	"mosaic/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var activityStore store.ActivityStore
	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	mongoStore, err := store.OpenMongo(connectCtx, cfg.MongoURL, cfg.MongoDB)
	cancelConnect()
	if err != nil {
		log.Printf("WARNING: mongo connection failed, activities are in-memory only: %v", err)
		activityStore = store.NewMemoryStore()
	} else {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoStore.Close(closeCtx)
		}()
		activityStore = mongoStore
	}

	engine := realtime.NewEngine(activityStore, realtime.Options{
		SoftConnectionLimit: cfg.SoftConnectionLimit,
		HardConnectionLimit: cfg.HardConnectionLimit,
		StoreTimeout:        cfg.StoreTimeout,
		DisconnectBudget:    cfg.DisconnectBudget,
		DedupSweepInterval:  cfg.DedupSweepInterval,
	})
	defer engine.Close()

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewService(cfg, activityStore, redisStore, engine)
	} else {
		log.Printf("Using in-memory session storage")
		service = app.NewService(cfg, activityStore, session.NewMemoryStore(), engine)
	}
	wsServer := realtime.NewWSServer(engine, func(ctx context.Context, token string) (string, string, error) {
		sess, err := service.SessionFromToken(ctx, token)
		if err != nil {
			return "", "", err
		}
		return sess.UserID, sess.UserName, nil
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/", app.NewHTTPServer(service, cfg.CORSOrigin).Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Mosaic API listening on %s", cfg.Addr)
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
