package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salvadordea/eartesana-sub001/internal/api"
	"github.com/salvadordea/eartesana-sub001/internal/api/middleware"
	"github.com/salvadordea/eartesana-sub001/internal/config"
	"github.com/salvadordea/eartesana-sub001/internal/notify"
	"github.com/salvadordea/eartesana-sub001/internal/repository"
	"github.com/salvadordea/eartesana-sub001/internal/service"
	"github.com/salvadordea/eartesana-sub001/internal/session"
	"github.com/salvadordea/eartesana-sub001/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	conn, err := db.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer conn.Close()

	// Session store: redis when configured, in-process otherwise.
	var sessions session.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("redis connect: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		sessions = session.NewMemoryStore()
	}

	couponRepo := repository.NewCouponRepo(conn)
	usageRepo := repository.NewUsageRepo(conn)
	attemptRepo := repository.NewAttemptRepo(conn)
	cartRepo := repository.NewCartRepo(conn)
	recoveryRepo := repository.NewRecoveryRepo(conn)

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		User: cfg.SMTP.User,
		Pass: cfg.SMTP.Pass,
		From: cfg.SMTP.From,
	})

	couponSvc := service.NewCouponService(conn, couponRepo, usageRepo, attemptRepo, sessions)
	recoverySvc := service.NewRecoveryService(cartRepo, recoveryRepo, couponRepo, mailer, service.RecoveryPolicy{
		AbandonAfter:  cfg.Sweep.AbandonAfter,
		SendOffsets:   cfg.Sweep.SendOffsets,
		RecoveryTTL:   cfg.Sweep.RecoveryTTL,
		CouponPercent: cfg.Sweep.CouponPercent,
		PruneAfter:    cfg.Sweep.PruneAfter,
		BatchSize:     cfg.Sweep.BatchSize,
		BaseURL:       cfg.SMTP.BaseURL,
	})

	handler := api.NewRouter(couponSvc, recoverySvc, couponRepo)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Mount("/", handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Periodic abandonment sweep. Single instance per deployment; the
	// store-level guards keep a second instance harmless anyway.
	sweepStop := make(chan struct{})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		ticker := time.NewTicker(cfg.Sweep.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Sweep.Interval)
				stats, err := recoverySvc.Sweep(ctx)
				cancel()
				if err != nil {
					log.Printf("sweep failed: %v", err)
					continue
				}
				log.Printf("sweep: abandoned=%d enrolled=%d sent=%d expired=%d pruned=%d",
					stats.Abandoned, stats.Enrolled, stats.EmailsSent, stats.Expired, stats.Pruned)
			case <-sweepStop:
				return
			}
		}
	}()

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		close(sweepStop)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	log.Printf("starting cart-engine on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen: %s\n", err)
	}

	<-idleConnsClosed
	<-sweepDone
	log.Println("server stopped")
}
