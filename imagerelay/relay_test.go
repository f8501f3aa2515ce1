package imagerelay

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/metrics"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type countingDoer struct{ calls int }

func (c *countingDoer) Do(req *http.Request) (*http.Response, error) {
	c.calls++
	return nil, errors.New("unexpected request")
}

func decodePayload(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	require.True(t, strings.HasPrefix(payload, "data:"))
	meta, data, ok := strings.Cut(strings.TrimPrefix(payload, "data:"), ";base64,")
	require.True(t, ok)
	body, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	return meta, body
}

func TestRejectsNonHTTPWithoutIO(t *testing.T) {
	doer := &countingDoer{}
	r := New(doer)
	rejected := metrics.ImageRelayRequests.WithLabelValues("rejected")
	before := testutil.ToFloat64(rejected)

	for _, u := range []string{"ftp://x/y.png", "file:///etc/passwd", "not a url", "", "http://", "://bad"} {
		payload, ok := r.FetchAsInlinePayload(context.Background(), u)
		assert.False(t, ok, u)
		assert.Empty(t, payload, u)
	}
	assert.Zero(t, doer.calls)
	assert.Equal(t, before+6, testutil.ToFloat64(rejected))
}

func TestFetchRoundTripsBytes(t *testing.T) {
	body := bytes.Repeat([]byte{0x00, 0xff, 0x10, 0x80}, 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	payload, ok := New(srv.Client()).FetchAsInlinePayload(context.Background(), srv.URL+"/a.webp")
	require.True(t, ok)

	ct, got := decodePayload(t, payload)
	assert.Equal(t, "image/webp", ct)
	assert.Equal(t, body, got)
}

func TestFetchSniffsMissingContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An explicit empty value keeps net/http from sniffing on our behalf.
		w.Header()["Content-Type"] = []string{""}
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	payload, ok := New(nil).FetchAsInlinePayload(context.Background(), srv.URL)
	require.True(t, ok)

	ct, got := decodePayload(t, payload)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, pngHeader, got)
}

func TestFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	payload, ok := New(nil).FetchAsInlinePayload(context.Background(), srv.URL)
	assert.False(t, ok)
	assert.Empty(t, payload)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, ok := New(nil).FetchAsInlinePayload(context.Background(), url)
	assert.False(t, ok)
}
