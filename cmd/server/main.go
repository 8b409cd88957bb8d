package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"whatsapp-crm/internal/api"
	"whatsapp-crm/internal/auth"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/broadcast"
	"whatsapp-crm/internal/config"
	"whatsapp-crm/internal/database"
	"whatsapp-crm/internal/logger"
	"whatsapp-crm/internal/messaging"
	"whatsapp-crm/internal/metrics"
	"whatsapp-crm/internal/queue"
	"whatsapp-crm/internal/store"
	"whatsapp-crm/internal/vault"
	"whatsapp-crm/internal/webhook"
	"whatsapp-crm/internal/whatsapp"
	"whatsapp-crm/internal/ws"
)

func main() {
	cfg := config.LoadConfig()
	closeLog := logger.Init(cfg)
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	metrics.InitMetrics()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// permissive runs without a vault and fail token use with a configuration error
	secrets, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		if cfg.Strict() {
			log.Fatal().Err(err).Msg("Failed to initialise credential vault")
		}
		log.Warn().Err(err).Msg("Credential vault disabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to redis")
	}

	st := store.New(db)
	hub := ws.NewHub()
	client := whatsapp.NewClient(cfg)
	dispatcher := whatsapp.NewDispatcher(client, decrypter(secrets))
	sender := messaging.NewService(st, dispatcher, hub, cfg.DefaultPhoneRegion)
	engine := automation.NewEngine(st, sender)
	pipeline := webhook.NewPipeline(st, engine, hub)

	broadcastQueue := queue.New(rdb, "broadcast")
	campaigns := broadcast.NewService(st, broadcastQueue, cfg.DefaultPhoneRegion)
	catalog := broadcast.NewCatalog(st, dispatcher)
	worker := broadcast.NewWorker(st, sender, hub, cfg.BroadcastSendTimeout)
	pool := queue.NewPool(broadcastQueue, worker.Handle, queue.PoolConfig{
		Workers:     cfg.BroadcastWorkers,
		RatePerSec:  cfg.BroadcastRatePerSec,
		MaxAttempts: cfg.BroadcastMaxAttempts,
		JobTimeout:  2 * cfg.BroadcastSendTimeout,
	})

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CampaignRollupSchedule, broadcast.NewSweeper(st, hub).Job()); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CampaignRollupSchedule).Msg("Invalid campaign rollup schedule")
	}
	if _, err := scheduler.AddFunc(cfg.TemplateSyncSchedule, catalog.Job()); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.TemplateSyncSchedule).Msg("Invalid template sync schedule")
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors())

	webhookHandler := webhook.NewHandler(cfg, pipeline)
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleMessage)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	session := auth.Middleware(cfg.JWTSecret)
	r.GET("/ws", session, func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request, auth.TenantID(c))
	})

	api.Handlers{
		Conversations: api.NewConversationHandler(st, hub),
		Messages:      api.NewMessageHandler(sender),
		Broadcast:     api.NewBroadcastHandler(st, campaigns, catalog),
		Settings:      api.NewSettingsHandler(st, client, encrypter(secrets)),
	}.Mount(r.Group("/api", session))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		pipeline.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server stopped")
}
