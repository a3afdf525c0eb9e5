package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhdanovmax/token-service/internal/api"
	"github.com/zhdanovmax/token-service/internal/config"
	"github.com/zhdanovmax/token-service/internal/handler"
	"github.com/zhdanovmax/token-service/internal/infrastructure/auth"
	"github.com/zhdanovmax/token-service/internal/infrastructure/kafka"
	"github.com/zhdanovmax/token-service/internal/infrastructure/redis"
	"github.com/zhdanovmax/token-service/internal/observability"
	core "github.com/zhdanovmax/token-service/internal/repository/postgres"
	service "github.com/zhdanovmax/token-service/internal/services"

	_ "github.com/lib/pq"
)

func main() {
	shutdown, _ := observability.Setup("token-service")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	userRepo := core.NewPostgresUserRepository(db)
	tokenRepo := core.NewPostgresTokenRepository(db)
	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()
	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	codec := auth.NewCodec([]byte(cfg.JWTSecret), cfg.TokenTTL, cfg.Issuer, cfg.Audience)
	probe := service.NewAuthorizationProbe()
	tokenSvc := service.NewTokenService(codec, tokenRepo, producer, probe, cfg.LedgerTimeout)
	revocationSvc := service.NewRevocationService(tokenRepo, redisClient, producer, cfg.LedgerTimeout)
	userSvc := service.NewUserService(userRepo, tokenSvc, redisClient, producer)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go revocationSvc.Run(sweepCtx, cfg.SweepInterval)

	h := handler.NewHandler(userSvc, tokenSvc, revocationSvc, probe)
	router := api.SetupRouter(h, tokenSvc)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
