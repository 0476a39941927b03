package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-platform/internal/ai"
	"voice-platform/internal/archive"
	"voice-platform/internal/bridge"
	"voice-platform/internal/config"
	"voice-platform/internal/fanout"
	"voice-platform/internal/httpapi"
	"voice-platform/internal/media"
	"voice-platform/internal/recall"
	"voice-platform/internal/session"
	"voice-platform/internal/stats"
	"voice-platform/internal/stream"
	"voice-platform/internal/telephony"
	"voice-platform/internal/workflow"
	"voice-platform/pkg/logger"
	"voice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Event fan-out: in-process subscribers plus Redis pub/sub for anything
	// outside this process.
	bus := fanout.NewMemoryBus(log)
	publisher := fanout.Tee{bus, fanout.NewRedisPublisher(rdb, log)}

	registry := session.NewRegistry(session.Config{
		AttachTimeout: cfg.Session.AttachTimeout,
		SweepInterval: cfg.Session.SweepInterval,
	}, publisher, log)
	go registry.Run(rootCtx)

	var responder ai.Responder
	var summarizer ai.Summarizer
	if cfg.AI.Endpoint != "" {
		client, err := ai.NewHTTPClient(cfg.AI)
		if err != nil {
			log.Error("ai init failed", "err", err)
			os.Exit(1)
		}
		responder, summarizer = client, client
	} else {
		static := ai.NewStatic()
		responder, summarizer = static, static
		log.Warn("no AI endpoint configured, using canned responses")
	}

	br := bridge.New(bridge.Config{}, registry, responder, bridge.NewRedisCallMemo(rdb), log)

	issuer, err := media.NewIssuer(cfg.Media)
	if err != nil {
		log.Error("media issuer init failed", "err", err)
		os.Exit(1)
	}

	var store recall.Store = recall.Null{}
	if cfg.Recall.Endpoint != "" {
		s, err := recall.NewHTTPStore(cfg.Recall)
		if err != nil {
			log.Error("recall init failed", "err", err)
			os.Exit(1)
		}
		store = s
	}

	var dispatcher workflow.Dispatcher = workflow.Null{}
	if cfg.Workflow.Endpoint != "" {
		d, err := workflow.NewHTTPDispatcher(cfg.Workflow)
		if err != nil {
			log.Error("workflow init failed", "err", err)
			os.Exit(1)
		}
		dispatcher = d
	}
	go workflow.NewRunner(bus, registry, summarizer, dispatcher, store, log).Run(rootCtx)
	go archive.NewRunner(bus, registry, archive.NewService(db), log).Run(rootCtx)

	collector := stats.NewCollector(bus, registry)
	go collector.Run(rootCtx)

	var limiter *telephony.CallLimiter
	if cfg.Telephony.MaxConcurrentCalls > 0 {
		limiter = telephony.NewCallLimiter(rdb, cfg.Telephony.MaxConcurrentCalls)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers: httpapi.Handlers{
			Registry:   registry,
			Bridge:     br,
			Issuer:     issuer,
			Summarizer: summarizer,
			Recall:     store,
			DB:         db,
			Redis:      rdb,
		},
		stats: collector,
		webhook: telephony.WebhookHandler{
			Bridge:    br,
			StreamURL: cfg.Telephony.StreamURL,
			Limiter:   limiter,
		},
	})

	// The WebSocket upgrade hijacks the TCP connection, which gin's response
	// writer refuses once headers are written, so /stream bypasses the router
	// and talks to the raw ResponseWriter.
	mux := http.NewServeMux()
	mux.Handle("GET /stream", stream.NewHandler(br, bus, log))
	mux.Handle("/", r)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
