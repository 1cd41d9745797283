package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/metrics"
	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/pricing"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type (
	OrderService interface {
		Quote(items []models.LineItem, offerCode string) (pricing.Quote, error)
		CreateOrder(ctx context.Context, owner models.Identity, draft *models.OrderDraft) (*models.Order, error)
		GetOrdersByOwner(ctx context.Context, owner models.Identity) ([]*models.Order, error)
		GetOrder(ctx context.Context, requester models.Identity, id string) (*models.Order, error)
		ListOrders(ctx context.Context, requester models.Identity, filter models.OrderFilter) ([]*models.Order, error)
		UpdateOrderStatus(ctx context.Context, requester models.Identity, id string, next models.OrderStatus) (*models.Order, error)
		UpdatePaymentStatus(ctx context.Context, requester models.Identity, id string, next models.PaymentStatus) (*models.Order, error)
	}

	Authenticator interface {
		Authenticate(ctx context.Context, header string) (models.Identity, error)
	}
)

type Gateway struct {
	config *config.ServerConfig
	orders OrderService
	auth   Authenticator
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
}

func NewGateway(cfg *config.ServerConfig, orders OrderService, authn Authenticator, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))
	router.Use(metrics.PrometheusMiddleware(cfg.Name))

	g := &Gateway{
		config: cfg,
		orders: orders,
		auth:   authn,
		logger: logger,
		router: router,
	}
	g.setupRoutes()

	g.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := g.router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	orders := api.Group("/orders", authMiddleware(g.auth, g.logger))
	{
		orders.POST("", g.createOrder)
		orders.POST("/quote", g.quote)
		orders.GET("/my-orders", g.myOrders)
		orders.GET("/:id", g.getOrder)
		orders.GET("", g.listOrders)
		orders.PUT("/:id/status", g.updateOrderStatus)
		orders.PUT("/:id/payment-status", g.updatePaymentStatus)
	}
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	const op = "gateway.Start"

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: listen: %w", op, err)
		}
		return nil
	})

	eg.Go(func() error {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stop)

		select {
		case <-stop:
			g.logger.Info("Received shutdown signal")
		case <-ctx.Done():
		}
		return g.Stop(context.Background())
	})

	if err := eg.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (g *Gateway) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	if err := g.server.Shutdown(shutdownCtx); err != nil {
		g.logger.Error("Gateway forced shutdown", zap.Error(err))
		return fmt.Errorf("gateway.Stop: %w", err)
	}
	g.logger.Info("Gateway stopped")
	return nil
}

// requestContext bounds the handler's work by the configured request timeout.
func (g *Gateway) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if g.config.RequestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), g.config.RequestTimeout)
}
