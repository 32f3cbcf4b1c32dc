// Package main runs the site backend HTTP server with graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vaani-voice/backend/config"
	"github.com/vaani-voice/backend/internal/contact"
	"github.com/vaani-voice/backend/internal/forward"
	"github.com/vaani-voice/backend/internal/livekit"
	"github.com/vaani-voice/backend/internal/relay"
	"github.com/vaani-voice/backend/internal/server"
	"github.com/vaani-voice/backend/pkg/database"
	"github.com/vaani-voice/backend/pkg/queue"
	"github.com/vaani-voice/backend/pkg/redis"
)

// drainer is implemented by both dispatchers.
type drainer interface {
	contact.Dispatcher
	Wait(ctx context.Context) error
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !cfg.LiveKit.Configured() {
		logger.Warn("LIVEKIT_API_KEY, LIVEKIT_API_SECRET or LIVEKIT_URL unset; /api/connection-details will return 500")
	}

	ctx := context.Background()

	var rdb *redis.Client
	if cfg.Contact.ForwardMode == "queue" || (cfg.Relay.Enabled && cfg.Relay.UseRedis) {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	// Contact leads
	var store contact.Store
	switch cfg.Contact.StoreDriver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		store = contact.NewPostgresStore(pool)
	case "memory", "":
		store = contact.NewMemoryStore()
	default:
		logger.Fatal("unknown CONTACT_STORE_DRIVER", zap.String("driver", cfg.Contact.StoreDriver))
	}

	dispatcher, err := newDispatcher(ctx, cfg, rdb, logger)
	if err != nil {
		logger.Fatal("lead forwarding", zap.Error(err))
	}
	contactHandler := contact.NewHandler(contact.NewService(store, dispatcher, logger), logger)

	// Live demo credentials
	liveKitHandler := livekit.NewHandler(livekit.NewIssuer(cfg.LiveKit, logger), logger)

	// Dev relay
	var relayHandler gin.HandlerFunc
	if cfg.Relay.Enabled {
		var pub relay.Publisher
		var sub relay.Subscriber
		if rdb != nil && cfg.Relay.UseRedis {
			ps := relay.NewRedisPubSub(rdb.Client, logger)
			pub, sub = ps, ps
		}
		hub := relay.NewHub(logger, pub, sub)
		verifier := livekit.NewVerifier(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
		upgrader := relay.NewUpgrader(config.SplitList(cfg.Relay.AllowOrigins))
		relayHandler = relay.ServeWs(hub, verifier, upgrader, logger)
		logger.Info("dev relay enabled", zap.Bool("redis", pub != nil))
	}

	router := server.NewRouter(server.Deps{
		Contact:        contactHandler,
		LiveKit:        liveKitHandler,
		Relay:          relayHandler,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("lead forwarding still in flight at shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newDispatcher picks where accepted leads go next: detached goroutines
// delivering to sinks directly, or the Redis job queue drained by cmd/worker.
func newDispatcher(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (drainer, error) {
	switch cfg.Contact.ForwardMode {
	case "queue":
		return forward.NewQueueDispatcher(queue.NewQueue(rdb.Client, logger), logger), nil
	case "async", "":
		sinks, err := forward.NewSinks(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return forward.NewAsyncDispatcher(sinks, forward.DeliveryTimeout(cfg), logger), nil
	default:
		return nil, fmt.Errorf("unknown CONTACT_FORWARD_MODE %q", cfg.Contact.ForwardMode)
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
