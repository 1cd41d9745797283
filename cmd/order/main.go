package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/craftshop/gateway"
	"github.com/example/craftshop/pkg/auth"
	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/discovery"
	"github.com/example/craftshop/pkg/logging"
	"github.com/example/craftshop/pkg/pricing"
	"github.com/example/craftshop/pkg/repository"
	"github.com/example/craftshop/pkg/service"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := logging.New(cfg.Log, cfg.Server.Name)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting order service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Order service failed", zap.Error(err))
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB, cfg.Breaker, logger)
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoRepo.Close(closeCtx); err != nil {
			logger.Error("Failed to close MongoDB", zap.Error(err))
		}
	}()

	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	defer redisRepo.Close()

	// Ping dependencies
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	users, err := repository.NewUserRepository(&cfg.MySQL)
	if err != nil {
		return fmt.Errorf("connect mysql: %w", err)
	}
	defer users.Close()

	offers, err := pricing.RegistryFromConfig(cfg.Offers)
	if err != nil {
		return fmt.Errorf("load offers: %w", err)
	}

	if cfg.Etcd.Enabled {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer sd.Close()

		watchOffers(ctx, sd, cfg.Etcd.OfferPrefix, offers, logger)

		instance := &discovery.ServiceInstance{
			Name: cfg.Server.Name,
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}
		if err := sd.Register(ctx, instance); err != nil {
			return fmt.Errorf("register service: %w", err)
		}
		logger.Info("Service registered in etcd",
			zap.String("name", instance.Name),
			zap.String("address", instance.Addr()))

		defer func() {
			deregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sd.Deregister(deregCtx, instance); err != nil {
				logger.Error("Failed to deregister service", zap.Error(err))
			}
		}()
	}

	authn := auth.NewAuthenticator(cfg.Auth.JWTSecret, users, redisRepo, logger)
	orders := service.NewOrderService(mongoRepo, mongoRepo, redisRepo, authn, pricing.NewEngine(offers), logger)

	gw := gateway.NewGateway(&cfg.Server, orders, authn, logger)
	return gw.Start(ctx)
}

// watchOffers overlays offer codes kept in etcd on top of the configured ones
// and keeps them current. A malformed etcd entry leaves the previous set in place.
func watchOffers(ctx context.Context, sd *discovery.ServiceDiscovery, prefix string, offers *pricing.Registry, logger *zap.Logger) {
	base := offers.Rules()

	apply := func(raw map[string]string) {
		overlay, err := pricing.ParseRules(raw)
		if err != nil {
			logger.Error("Ignoring offer update from etcd", zap.Error(err))
			return
		}
		offers.Replace(pricing.Combine(base, overlay))
		logger.Info("Offer codes updated", zap.Strings("codes", offers.Codes()))
	}

	raw, err := sd.LoadPrefix(ctx, prefix)
	if err != nil {
		logger.Warn("Failed to load offers from etcd, using configured offers", zap.Error(err))
	} else {
		apply(raw)
	}

	go sd.WatchPrefix(ctx, prefix, apply)
}
