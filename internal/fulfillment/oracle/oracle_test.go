package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veil/pkg/domain-errors"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL)
	require.NoError(t, err)
	return client
}

func TestPriceInEUR(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the EUR rate", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/simple/price", r.URL.Path)
			assert.Equal(t, "monero", r.URL.Query().Get("ids"))
			assert.Equal(t, "eur", r.URL.Query().Get("vs_currencies"))
			_, _ = w.Write([]byte(`{"monero":{"eur":142.35}}`))
		})

		rate, err := client.PriceInEUR(ctx, "XMR")
		require.NoError(t, err)
		assert.Equal(t, "142.35", rate.String())
	})

	t.Run("unsupported ticker is invalid input", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("upstream must not be called")
		})
		_, err := client.PriceInEUR(ctx, "doge")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing rate is unavailable, not zero", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		_, err := client.PriceInEUR(ctx, "xmr")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("zero rate is refused", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"monero":{"eur":0}}`))
		})
		_, err := client.PriceInEUR(ctx, "xmr")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	t.Run("upstream 5xx is unavailable", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := client.PriceInEUR(ctx, "btc")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}

func TestCachedOracleWithoutRedis(t *testing.T) {
	calls := 0
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"monero":{"eur":100}}`))
	})

	// nil redis client disables caching: every quote goes upstream
	cached := NewCached(client, nil, 0, nil)
	for i := 0; i < 3; i++ {
		rate, err := cached.PriceInEUR(context.Background(), "xmr")
		require.NoError(t, err)
		assert.Equal(t, "100", rate.String())
	}
	assert.Equal(t, 3, calls)
}
