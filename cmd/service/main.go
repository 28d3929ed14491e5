package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/zveno/chat-service/internal/config"
	"github.com/zveno/chat-service/internal/infra"
	"github.com/zveno/chat-service/internal/pkg/invitecode"
	"github.com/zveno/chat-service/internal/pkg/jwt"
	"github.com/zveno/chat-service/internal/pkg/password"
	"github.com/zveno/chat-service/internal/pkg/tx"
	"github.com/zveno/chat-service/internal/pkg/validator"
	"github.com/zveno/chat-service/internal/realtime"
	db "github.com/zveno/chat-service/internal/repository/postgres"
	"github.com/zveno/chat-service/internal/repository/redis"
	"github.com/zveno/chat-service/internal/rest"
	"github.com/zveno/chat-service/internal/transport/ws"
)

func main() {
	cfg := config.MustLoad()
	logger := logger_lib.New(cfg.Logger.Host, cfg.Logger.Port, cfg.Service.Name, cfg.Platform.Env)

	dbRepo := db.New(cfg)
	defer dbRepo.Close()

	presenceRepo := redis.New(cfg)
	defer presenceRepo.Close()

	vldtr := validator.New()
	jwtGenerator := jwt.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	codes, err := invitecode.New()
	if err != nil {
		logger.Error(fmt.Sprintf("failed to init invite codes: %v", err))
		os.Exit(1)
	}

	registry := realtime.NewRegistry()
	guard := realtime.NewAccessGuard(dbRepo)
	pipeline := realtime.NewPipeline(registry, guard, dbRepo, vldtr)
	presence := realtime.NewPresencePublisher(registry, dbRepo, presenceRepo)
	gateway := realtime.NewGateway(registry, jwtGenerator, guard, pipeline, presence, cfg.Gateway.AuthTimeout)

	handler := rest.New(dbRepo, vldtr, jwtGenerator, password.New(password.DefaultCost), codes, guard, pipeline, presenceRepo)
	wsHandler := ws.New(gateway, cfg.Gateway)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return infra.LoggerHTTP(next, logger)
	})
	router.Use(func(next http.Handler) http.Handler {
		return tx.TxMiddlewareHTTP(dbRepo)(next)
	})

	router.Handle("/ws", wsHandler)
	router.Route("/api/v1", func(r chi.Router) {
		handler.Routes(r, infra.AuthInterceptorHTTP(jwtGenerator))
	})

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(cfg.Service.Name, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Service.Port))
	if err != nil {
		logger.Error(fmt.Sprintf("failed to start TCP listener: %v", err))
		os.Exit(1)
	}

	m := cmux.New(listener)

	grpcListener := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpListener := m.Match(cmux.HTTP1Fast())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, cmux.ErrListenerClosed) {
			return fmt.Errorf("gRPC server error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, cmux.ErrListenerClosed) {
			return fmt.Errorf("HTTP server error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := m.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("cannot start service: %v", err)
		}
		return nil
	})

	if interval := presenceRefreshInterval(cfg.Gateway); interval > 0 {
		g.Go(func() error {
			presence.Run(context.WithValue(gCtx, config.KeyLogger, logger), interval)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()

		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("failed to shutdown HTTP server: %v", err))
		}
		grpcServer.GracefulStop()
		m.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("server error: %v", err))
	}
}

// presenceRefreshInterval keeps mirrored presence rewritten before its TTL
// runs out. A zero TTL never expires and needs no refresh.
func presenceRefreshInterval(cfg config.Gateway) time.Duration {
	if cfg.PresenceTTL <= 0 {
		return 0
	}
	if cfg.PresenceRefresh <= 0 || cfg.PresenceRefresh >= cfg.PresenceTTL {
		return cfg.PresenceTTL / 2
	}
	return cfg.PresenceRefresh
}
