// Package commerce talks to the merchant's e-commerce platform through
// a single provider boundary. Handlers depend on the Provider interface
// so tests can substitute fakes without an HTTP server.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/models"
)

var (
	ErrStoreNotConnected = errors.New("STORE_NOT_CONNECTED")
	ErrProductNotFound   = errors.New("PRODUCT_NOT_FOUND")
	ErrOrderNotFound     = errors.New("ORDER_NOT_FOUND")
	ErrCommerceFailed    = errors.New("COMMERCE_FAILED")
)

// SearchQuery carries the entity-derived filters for a product search.
type SearchQuery struct {
	Keywords      string
	Category      string
	MaxPriceCents int64
	Limit         int
}

// OrderStatus is the platform's view of a placed order.
type OrderStatus struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TrackingURL string `json:"trackingUrl,omitempty"`
	ETA         string `json:"eta,omitempty"`
}

// Provider is the e-commerce platform boundary.
type Provider interface {
	SearchProducts(ctx context.Context, merchantID string, query SearchQuery) ([]models.Product, error)
	GetCart(ctx context.Context, merchantID, cartKey string) (*models.CartSnapshot, error)
	AddToCart(ctx context.Context, merchantID, cartKey, productID string, quantity int) (*models.CartSnapshot, error)
	RemoveFromCart(ctx context.Context, merchantID, cartKey, productID string) (*models.CartSnapshot, error)
	CreateCheckout(ctx context.Context, merchantID, cartKey string) (string, error)
	GetOrderStatus(ctx context.Context, merchantID, orderID string) (*OrderStatus, error)
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: log.WithFields(map[string]interface{}{
			"component": "commerce",
		}),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) SearchProducts(ctx context.Context, merchantID string, query SearchQuery) ([]models.Product, error) {
	params := url.Values{}
	params.Set("q", query.Keywords)
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	if query.MaxPriceCents > 0 {
		params.Set("max_price_cents", strconv.FormatInt(query.MaxPriceCents, 10))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	var out struct {
		Products []models.Product `json:"products"`
	}
	err := c.do(ctx, "GET", "/v1/merchants/"+merchantID+"/products?"+params.Encode(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) GetCart(ctx context.Context, merchantID, cartKey string) (*models.CartSnapshot, error) {
	var cart models.CartSnapshot
	err := c.do(ctx, "GET", "/v1/merchants/"+merchantID+"/carts/"+url.PathEscape(cartKey), nil, &cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) AddToCart(ctx context.Context, merchantID, cartKey, productID string, quantity int) (*models.CartSnapshot, error) {
	body := map[string]interface{}{
		"productId": productID,
		"quantity":  quantity,
	}
	var cart models.CartSnapshot
	err := c.do(ctx, "POST", "/v1/merchants/"+merchantID+"/carts/"+url.PathEscape(cartKey)+"/items", body, &cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) RemoveFromCart(ctx context.Context, merchantID, cartKey, productID string) (*models.CartSnapshot, error) {
	var cart models.CartSnapshot
	err := c.do(ctx, "DELETE", "/v1/merchants/"+merchantID+"/carts/"+url.PathEscape(cartKey)+"/items/"+productID, nil, &cart)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) CreateCheckout(ctx context.Context, merchantID, cartKey string) (string, error) {
	var out struct {
		CheckoutURL string `json:"checkoutUrl"`
	}
	err := c.do(ctx, "POST", "/v1/merchants/"+merchantID+"/carts/"+url.PathEscape(cartKey)+"/checkout", nil, &out)
	if err != nil {
		return "", err
	}
	if out.CheckoutURL == "" {
		return "", fmt.Errorf("%w: checkout returned no url", ErrCommerceFailed)
	}
	return out.CheckoutURL, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, merchantID, orderID string) (*OrderStatus, error) {
	var status OrderStatus
	err := c.do(ctx, "GET", "/v1/merchants/"+merchantID+"/orders/"+url.PathEscape(orderID), nil, &status)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCommerceFailed, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommerceFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommerceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		if sentinel := mapErrorCode(ae.Code, resp.StatusCode); sentinel != nil {
			return sentinel
		}
		return fmt.Errorf("%w: status %d (%s)", ErrCommerceFailed, resp.StatusCode, ae.Code)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode error: %v", ErrCommerceFailed, err)
		}
	}
	return nil
}

// mapErrorCode translates platform error envelopes to sentinel errors
// the handlers branch on.
func mapErrorCode(code string, status int) error {
	switch code {
	case "store_not_connected":
		return ErrStoreNotConnected
	case "product_not_found":
		return ErrProductNotFound
	case "order_not_found":
		return ErrOrderNotFound
	}
	if status == http.StatusPreconditionFailed {
		return ErrStoreNotConnected
	}
	return nil
}
