package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*HTTPClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewHTTPClient(server.URL, "test-token")
	client.rateLimiter.interval = 0
	return client, server
}

func TestFetchOptions(t *testing.T) {
	t.Run("decodes the ordered option set", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/attributes/color/options", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode([]Option{
				{Value: "red", Label: "Red"},
				{Value: "blue", Label: "Blue"},
			})
		}))
		defer server.Close()

		options, err := client.FetchOptions(context.Background(), "color")
		require.NoError(t, err)
		require.Len(t, options, 2)
		assert.Equal(t, "red", options[0].Value)
		assert.Equal(t, "Blue", options[1].Label)
	})

	t.Run("missing attribute is a plain error", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := client.FetchOptions(context.Background(), "nope")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	})

	t.Run("server errors map to ErrUnavailable", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := client.FetchOptions(context.Background(), "color")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("unreachable host maps to ErrUnavailable", func(t *testing.T) {
		client := NewHTTPClient("http://127.0.0.1:1", "")
		client.rateLimiter.interval = 0

		_, err := client.FetchOptions(context.Background(), "color")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("empty code is rejected locally", func(t *testing.T) {
		client := NewHTTPClient("http://example.invalid", "")

		_, err := client.FetchOptions(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestPushEntity(t *testing.T) {
	t.Run("sends the cast values as JSON", func(t *testing.T) {
		var received pushPayload
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/entities/SKU-001", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		err := client.PushEntity(context.Background(), "SKU-001", map[string]string{"title": "Blue Shirt"})
		require.NoError(t, err)
		assert.Equal(t, "Blue Shirt", received.Values["title"])
	})

	t.Run("rejection carries the catalog's reason", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(pushError{Reason: "unknown attribute code"})
		}))
		defer server.Close()

		err := client.PushEntity(context.Background(), "SKU-001", map[string]string{"bogus": "x"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "unknown attribute code")
	})

	t.Run("server errors map to ErrUnavailable", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		err := client.PushEntity(context.Background(), "SKU-001", nil)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("empty external ID is rejected locally", func(t *testing.T) {
		client := NewHTTPClient("http://example.invalid", "")

		err := client.PushEntity(context.Background(), "", nil)
		assert.Error(t, err)
	})
}
