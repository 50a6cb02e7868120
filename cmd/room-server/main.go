package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-rooms/internal/archive"
	appcfg "github.com/park285/cheese-rooms/internal/config"
	"github.com/park285/cheese-rooms/internal/game"
	"github.com/park285/cheese-rooms/internal/game/standard"
	"github.com/park285/cheese-rooms/internal/gateway"
	"github.com/park285/cheese-rooms/internal/httpapi"
	"github.com/park285/cheese-rooms/internal/msgcat"
	"github.com/park285/cheese-rooms/internal/notify"
	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/render"
	"github.com/park285/cheese-rooms/internal/room"
	"github.com/park285/cheese-rooms/internal/roomcode"
)

const (
	sinkQueueSize   = 256
	sinkTimeout     = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Console:  cfg.Log.ToConsole,
		ToFile:   cfg.Log.ToFile,
		FilePath: cfg.Log.File,
		Caller:   cfg.Log.Caller,
	}); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	lg := obslog.L()

	msgs, err := msgcat.New(cfg.Messages.Locale, cfg.Messages.Dir)
	if err != nil {
		lg.Fatal("messages_init_error", zap.Error(err))
	}

	var engine game.Engine = game.Permissive{}
	if cfg.Rules.Engine == "standard" {
		engine = standard.New()
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// 방 코드 예약: Redis가 있으면 여러 인스턴스 간 충돌 방지
	var rdb *redis.Client
	allocator := roomcode.NewAllocator(nil)
	if cfg.Redis.URL != "" {
		rdb, err = roomcode.Dial(startCtx, cfg.Redis.URL)
		if err != nil {
			lg.Fatal("redis_init_error", zap.Error(err))
		}
		allocator = roomcode.NewAllocator(roomcode.NewRedisReserver(rdb))
	}

	repo, err := openArchive(startCtx, cfg.Database)
	if err != nil {
		lg.Fatal("archive_init_error", zap.Error(err))
	}
	queues := []*notify.Queue{notify.NewQueue("archive", sinkQueueSize, sinkTimeout, archive.Saver(repo))}

	if cfg.Webhook.URL != "" {
		hook := notify.NewWebhook(cfg.Webhook.URL,
			notify.WithTimeout(cfg.Webhook.Timeout),
			notify.WithRetry(cfg.Webhook.Retries),
		)
		queues = append(queues, notify.NewQueue("webhook", sinkQueueSize, sinkTimeout, hook.Deliver))
	}

	var nc *notify.NATS
	if cfg.NATS.URL != "" {
		nc, err = notify.DialNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			lg.Fatal("nats_init_error", zap.Error(err))
		}
		queues = append(queues, notify.NewQueue("nats", sinkQueueSize, sinkTimeout, nc.Deliver))
	}

	sinks := make([]room.ResultSink, 0, len(queues))
	for _, q := range queues {
		sinks = append(sinks, q)
	}

	hub := gateway.New(gateway.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		PingInterval:   cfg.WS.PingInterval,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	})
	mgr := room.NewManager(hub,
		room.WithEngine(engine),
		room.WithAllocator(allocator),
		room.WithMessages(msgs),
		room.WithSinks(sinks...),
	)
	hub.Bind(mgr)

	mux := http.NewServeMux()
	mux.Handle(cfg.WS.Path, hub)
	wsSrv := &http.Server{
		Addr:              cfg.WS.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	api := httpapi.New(mgr, render.New(),
		httpapi.WithStaticDir(cfg.HTTP.StaticDir),
		httpapi.WithGames(repo),
	)

	errCh := make(chan error, 2)
	go func() {
		lg.Info("ws_listen", zap.String("addr", cfg.WS.Addr), zap.String("path", cfg.WS.Path))
		if err := wsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		lg.Info("http_listen", zap.String("addr", cfg.HTTP.Addr), zap.String("static", cfg.HTTP.StaticDir))
		if err := api.ListenAndServe(cfg.HTTP.Addr); err != nil {
			errCh <- err
		}
	}()
	lg.Info("server_started",
		zap.String("engine", engine.Name()),
		zap.String("locale", msgs.Locale()),
		zap.Int("sinks", len(sinks)),
		zap.Bool("redis", rdb != nil),
	)

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		lg.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		lg.Error("listener_error", zap.Error(err))
	}

	ctx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := api.Shutdown(ctx); err != nil {
		lg.Warn("http_shutdown_error", zap.Error(err))
	}
	// Hub first: Disconnect of every live player may still finish games and feed the queues.
	if err := hub.Close(ctx); err != nil {
		lg.Warn("ws_hub_close_error", zap.Error(err))
	}
	if err := wsSrv.Shutdown(ctx); err != nil {
		lg.Warn("ws_shutdown_error", zap.Error(err))
	}
	for _, q := range queues {
		if err := q.Close(ctx); err != nil {
			lg.Warn("sink_drain_error", zap.Error(err))
		}
	}
	if nc != nil {
		nc.Close()
	}
	if err := repo.Close(); err != nil {
		lg.Warn("archive_close_error", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	lg.Info("server_stopped")
}

// openArchive returns Postgres when a database is configured, otherwise an
// in-memory archive of recent games.
func openArchive(ctx context.Context, db appcfg.DatabaseConfig) (archive.Repository, error) {
	if db.URL == "" {
		return archive.NewMemory(500), nil
	}
	if db.Migrate {
		if err := archive.Migrate(db.URL); err != nil {
			return nil, err
		}
	}
	return archive.NewPostgres(ctx, db.URL)
}
