package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	rc := &RestClient{
		client:  resty.New().SetBaseURL(server.URL),
		logger:  zap.NewNop(), // Use a no-op logger for tests
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestLastPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ticker/price", r.URL.Path)
			assert.Equal(t, "EURUSD", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "EURUSD", "price": "1.0842"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		quote, err := rc.LastPrice(context.Background(), "EURUSD")

		assert.NoError(t, err)
		assert.Equal(t, "EURUSD", quote.Symbol)
		assert.Equal(t, 1.0842, quote.Price)
		assert.False(t, quote.QuotedAt.IsZero())
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg": "unknown symbol"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.LastPrice(context.Background(), "NOPEUSD")

		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})

	t.Run("UnparseablePrice", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "EURUSD", "price": "n/a"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.LastPrice(context.Background(), "EURUSD")

		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"symbol": "EURUSD", "price": "0"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.LastPrice(context.Background(), "EURUSD")

		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})
}

func TestPing(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ping", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		assert.NoError(t, rc.Ping(context.Background()))
	})
}
