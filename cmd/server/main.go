// Command server runs the creamshop backend: the storefront HTTP API, the
// admin API, and the webhook endpoints for both Telegram bots, all backed by
// one Redis instance.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/l1ndleq/creamshop-backend/internal/chatbot"
	"github.com/l1ndleq/creamshop-backend/internal/config"
	httpapi "github.com/l1ndleq/creamshop-backend/internal/http"
	"github.com/l1ndleq/creamshop-backend/internal/http/handlers"
	"github.com/l1ndleq/creamshop-backend/internal/identity"
	"github.com/l1ndleq/creamshop-backend/internal/kv"
	"github.com/l1ndleq/creamshop-backend/internal/notify"
	"github.com/l1ndleq/creamshop-backend/internal/observability"
	"github.com/l1ndleq/creamshop-backend/internal/orders"
	"github.com/l1ndleq/creamshop-backend/internal/otp"
	"github.com/l1ndleq/creamshop-backend/internal/promo"
	"github.com/l1ndleq/creamshop-backend/internal/sysutil"
	"github.com/l1ndleq/creamshop-backend/internal/telegram"
	"github.com/l1ndleq/creamshop-backend/internal/token"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; production supplies real env vars.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	store, err := kv.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis connect failed")
	}
	defer store.Close()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

	// Telegram surface. Unset tokens disable the matching features instead
	// of failing startup, so the API can run without the bots.
	storeBot := telegram.NewClient(cfg.Telegram.StoreBotToken)
	adminBot := telegram.NewClient(cfg.Telegram.AdminBotToken)
	gateway := telegram.NewGateway(cfg.Telegram.GatewayToken)
	if !storeBot.Enabled() {
		log.Warn().Msg("store bot token unset, customer bot disabled")
	}
	if !gateway.Enabled() {
		log.Warn().Msg("gateway token unset, otp login disabled")
	}

	// Domain services.
	registry := identity.NewRegistry(store)
	orderStore := orders.NewStore(store, registry)
	orderStore.RecentCap = cfg.RecentOrderCap
	promoRepo := promo.NewRepository(store)
	otpSvc := otp.NewService(store, cfg.Auth.OTPPepper)
	otpSvc.CodeTTL = cfg.OTP.TTL
	otpSvc.Cooldown = cfg.OTP.Cooldown
	otpSvc.MaxAttempts = cfg.OTP.MaxAttempts

	trackingURL := func(orderID, phone string) string {
		return token.BuildOrderTrackingURL(cfg.SiteBaseURL, orderID, phone, []byte(cfg.Auth.OrderLinkSecret))
	}

	notifier := notify.NewDispatcher(store, registry, adminBot, storeBot, cfg.Telegram.AdminChatIDs, log.Logger)
	notifier.TrackingURL = trackingURL

	bot := chatbot.New(store, registry, orderStore, promoRepo, notifier, storeBot, adminBot, cfg.Telegram.AdminChatIDs, log.Logger)
	bot.TrackingURL = trackingURL

	h := handlers.New(handlers.Deps{
		OTP:      otpSvc,
		Gateway:  gateway,
		Registry: registry,
		Orders:   orderStore,
		Promos:   promoRepo,
		Notifier: notifier,
		Bot:      bot,
		Auth: handlers.AuthConfig{
			SessionSecret:    []byte(cfg.Auth.SessionSecret),
			AdminSecret:      []byte(cfg.Auth.AdminSecret),
			SessionTTL:       cfg.Auth.SessionTTL,
			AdminSessionTTL:  cfg.Auth.AdminSessionTTL,
			AdminLogin:       cfg.Auth.AdminLogin,
			AdminPassword:    cfg.Auth.AdminPassword,
			StoreBotUsername: cfg.Telegram.StoreBotUsername,
			WebhookSecret:    cfg.Telegram.WebhookSecret,
			GatewayTimeout:   cfg.Telegram.GatewayTimeout,
			DevExposeOTP:     cfg.OTP.DevExpose,
		},
		OrderLinkSecret: []byte(cfg.Auth.OrderLinkSecret),
		SiteBaseURL:     cfg.SiteBaseURL,
		Idem:            store,
		IdempotencyTTL:  cfg.IdempotencyTTL,
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, h, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
