package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/lkrent/lkrent-server/internal/cache"
	"github.com/lkrent/lkrent-server/internal/http/handlers"
	"github.com/lkrent/lkrent-server/internal/mailer"
	"github.com/lkrent/lkrent-server/internal/otp"
	"github.com/lkrent/lkrent-server/internal/repository"
	"github.com/lkrent/lkrent-server/internal/service"
	"github.com/lkrent/lkrent-server/pkg/config"
	"github.com/lkrent/lkrent-server/pkg/database"
	"github.com/lkrent/lkrent-server/pkg/events"
	"github.com/lkrent/lkrent-server/pkg/logger"
	mw "github.com/lkrent/lkrent-server/pkg/middleware"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Connect to redis (cooldowns, rate limits, idempotency)
	rdb, err := cache.NewClient(cfg.Redis)
	if err != nil {
		logger.Error("Failed to configure redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	limiter := cache.NewLimiter(rdb)

	// Initialize repositories
	userRepo := repository.NewUserRepository(pool)
	challengeRepo := repository.NewChallengeRepository(pool)

	// Initialize services
	mailSvc := newMailer(cfg)
	engine := otp.NewEngine(challengeRepo, userRepo, mailSvc, eventBus, limiter, cfg)
	authService := service.NewAuthService(userRepo, engine, eventBus, cfg)

	// Initialize handlers
	h := handlers.New(authService, limiter, cfg)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(mw.IdempotencyMiddleware(cache.NewStore(rdb)))

	// Routes
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireJWT)
			r.Get("/info", h.Info)
			r.Put("/profile", h.UpdateProfile)

			r.Group(func(r chi.Router) {
				r.Use(h.OtpRateLimit())
				r.Post("/request-otp", h.RequestOtp)
				r.Post("/verify-otp", h.VerifyOtp)
			})
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting auth service", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Janitor: sweep dead challenges so the table stays bounded.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := challengeRepo.DeleteExpired(ctx); err != nil {
					logger.Error("Challenge cleanup failed", "error", err)
				} else if n > 0 {
					logger.Info("Cleaned up expired challenges", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}

func newMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		return mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailerSendMailer(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort,
			cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}
}
