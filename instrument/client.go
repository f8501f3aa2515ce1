// Package instrument is the client side of the tracking API. Every call is
// fire-and-forget: failures are logged and never reach the caller.
package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"storefront/api/models"
	"storefront/api/utils"
)

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	http    Doer
}

func NewClient(baseURL string, httpClient Doer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// NewSessionID returns a fresh client-side session identifier.
func NewSessionID() string {
	return utils.GenerateSessionID()
}

// PageMounted reports a page view for path.
func (c *Client) PageMounted(ctx context.Context, sessionID, path, title string) {
	body := map[string]string{"sessionId": sessionID, "path": path, "title": title}
	if err := c.post(ctx, "/api/track/pageview", body); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("path", path).Msg("Page view not reported")
	}
}

func (c *Client) orderConfirmed(ctx context.Context, order models.Order) error {
	return c.post(ctx, "/api/track/order", order)
}

func (c *Client) post(ctx context.Context, route string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tracking request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tracking API returned %d", resp.StatusCode)
	}
	return nil
}

// PurchaseConfirmation reports one order confirmation. Mount may run any
// number of times, as a re-rendered confirmation page would, but reports at
// most once. The server dedups by order id regardless.
type PurchaseConfirmation struct {
	client *Client
	order  models.Order
	once   sync.Once
}

func NewPurchaseConfirmation(client *Client, order models.Order) *PurchaseConfirmation {
	return &PurchaseConfirmation{client: client, order: order}
}

func (p *PurchaseConfirmation) Mount(ctx context.Context) {
	p.once.Do(func() {
		if err := p.client.orderConfirmed(ctx, p.order); err != nil {
			log.Warn().Err(err).Str("order_id", p.order.ID).Msg("Purchase not reported")
		}
	})
}
