package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/craftshop/pkg/models"
	"github.com/example/craftshop/pkg/pricing"
	"github.com/go-resty/resty/v2"
)

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// responseError is an error reply from the server, as opposed to a
// transport failure.
type responseError struct {
	status  int
	text    string
	message string
	detail  string
}

func (e *responseError) Error() string {
	switch {
	case e.message == "":
		return e.text
	case e.detail != "":
		return fmt.Sprintf("%s (%d): %s", e.message, e.status, e.detail)
	default:
		return fmt.Sprintf("%s (%d)", e.message, e.status)
	}
}

type quoteRequest struct {
	Items     []models.LineItem `json:"items"`
	OfferCode string            `json:"offerCode,omitempty"`
}

type createResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

// client talks to the order API on behalf of one logged-in user.
type client struct {
	http *resty.Client
}

func newClient(baseURL, token string, timeout time.Duration) *client {
	return &client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetTimeout(timeout).
			SetRetryCount(0),
	}
}

func (c *client) quote(ctx context.Context, items []models.LineItem, code string) (*pricing.Quote, error) {
	var out pricing.Quote
	if err := c.call(ctx, "POST", "/api/orders/quote", quoteRequest{Items: items, OfferCode: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) placeOrder(ctx context.Context, draft *models.OrderDraft) (*models.Order, error) {
	var out createResponse
	if err := c.call(ctx, "POST", "/api/orders", draft, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *client) myOrders(ctx context.Context) ([]*models.Order, error) {
	var out []*models.Order
	if err := c.call(ctx, "GET", "/api/orders/my-orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) order(ctx context.Context, id string) (*models.Order, error) {
	var out models.Order
	if err := c.call(ctx, "GET", "/api/orders/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) call(ctx context.Context, method, path string, body, result interface{}) error {
	var apiErr apiError
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &responseError{
			status:  resp.StatusCode(),
			text:    fmt.Sprintf("%s %s: %s", method, path, resp.Status()),
			message: apiErr.Message,
			detail:  apiErr.Error,
		}
	}
	return nil
}
