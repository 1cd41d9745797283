package gateway

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/example/craftshop/pkg/auth"
	"github.com/example/craftshop/pkg/models"
	"github.com/gin-gonic/gin"
)

type (
	quoteRequest struct {
		Items     []models.LineItem `json:"items"`
		OfferCode string            `json:"offerCode"`
	}

	statusRequest struct {
		Status string `json:"status"`
	}
)

func identity(c *gin.Context) models.Identity {
	id, _ := auth.FromContext(c.Request.Context())
	return id
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		writeError(c, fmt.Errorf("%w: malformed request body: %v", models.ErrValidation, err))
		return false
	}
	return true
}

func (g *Gateway) createOrder(c *gin.Context) {
	var draft models.OrderDraft
	if !bindJSON(c, &draft) {
		return
	}

	ctx, cancel := g.requestContext(c)
	defer cancel()

	order, err := g.orders.CreateOrder(ctx, identity(c), &draft)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully",
		"order":   order,
	})
}

func (g *Gateway) quote(c *gin.Context) {
	var req quoteRequest
	if !bindJSON(c, &req) {
		return
	}

	q, err := g.orders.Quote(req.Items, req.OfferCode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (g *Gateway) myOrders(c *gin.Context) {
	ctx, cancel := g.requestContext(c)
	defer cancel()

	orders, err := g.orders.GetOrdersByOwner(ctx, identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) getOrder(c *gin.Context) {
	ctx, cancel := g.requestContext(c)
	defer cancel()

	order, err := g.orders.GetOrder(ctx, identity(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) listOrders(c *gin.Context) {
	filter := models.OrderFilter{
		OrderStatus:   models.OrderStatus(c.Query("orderStatus")),
		PaymentStatus: models.PaymentStatus(c.Query("paymentStatus")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", models.ErrValidation))
			return
		}
		filter.Limit = limit
	}

	ctx, cancel := g.requestContext(c)
	defer cancel()

	orders, err := g.orders.ListOrders(ctx, identity(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := g.requestContext(c)
	defer cancel()

	order, err := g.orders.UpdateOrderStatus(ctx, identity(c), c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"order":   order,
	})
}

func (g *Gateway) updatePaymentStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := g.requestContext(c)
	defer cancel()

	order, err := g.orders.UpdatePaymentStatus(ctx, identity(c), c.Param("id"), models.PaymentStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Payment status updated successfully",
		"order":   order,
	})
}
