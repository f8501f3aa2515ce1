// Package imagerelay fetches remote images and inlines them as data URIs.
package imagerelay

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"storefront/api/metrics"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Relay struct {
	client Doer
}

// New returns a Relay using client, or http.DefaultClient when nil.
func New(client Doer) *Relay {
	if client == nil {
		client = http.DefaultClient
	}
	return &Relay{client: client}
}

// FetchAsInlinePayload downloads rawURL and returns it as
// "data:<content-type>;base64,<body>". Anything other than an absolute http or
// https URL is rejected without I/O. Transport errors and non-2xx responses
// yield ("", false).
func (r *Relay) FetchAsInlinePayload(ctx context.Context, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		metrics.ImageRelayRequests.WithLabelValues("rejected").Inc()
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		metrics.ImageRelayRequests.WithLabelValues("rejected").Inc()
		return "", false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", u.Redacted()).Msg("Image fetch failed")
		metrics.ImageRelayRequests.WithLabelValues("error").Inc()
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Str("url", u.Redacted()).Msg("Image fetch returned non-2xx")
		metrics.ImageRelayRequests.WithLabelValues("status").Inc()
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn().Err(err).Str("url", u.Redacted()).Msg("Image body read failed")
		metrics.ImageRelayRequests.WithLabelValues("error").Inc()
		return "", false
	}

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}

	metrics.ImageRelayRequests.WithLabelValues("ok").Inc()
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body), true
}
