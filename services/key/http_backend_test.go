package key

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memorybank/keyctl/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHTTPBackend(t *testing.T, handler http.Handler) *HTTPBackend {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPBackend(srv.URL, "mbmcp_live_operatorkey", 5*time.Second, zap.NewNop())
}

func TestHTTPListKeys(t *testing.T) {
	created := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	revoked := created.Add(time.Hour)

	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/keys", r.URL.Path)
		require.Equal(t, "mbmcp_live_operatorkey", r.Header.Get("X-API-Key"))
		require.Equal(t, "true", r.URL.Query().Get("includeRevoked"))

		// The server's status field is stale on purpose; the client
		// must recompute it from the timestamps.
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{
				{"id": "k1", "prefix": "mbmcp_live_AAAAA", "rateLimit": 60, "createdAt": created, "status": "active", "revokedAt": revoked},
				{"id": "k2", "prefix": "mbmcp_live_BBBBB", "rateLimit": 120, "createdAt": created, "status": "active"},
			},
		})
	}))

	keys, err := b.ListKeys(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, StatusRevoked, keys[0].Status)
	require.Equal(t, StatusActive, keys[1].Status)
}

func TestHTTPListKeysOmitsRevokedFlagByDefault(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.URL.Query().Get("includeRevoked"))
		json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
	}))

	keys, err := b.ListKeys(context.Background(), false)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestHTTPCreateKey(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/keys", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "test", body["environment"])
		require.Equal(t, float64(120), body["rateLimit"])
		require.Equal(t, "CI", body["label"])
		require.NotContains(t, body, "expiresInDays")

		json.NewEncoder(w).Encode(map[string]any{
			"id":        "k-new",
			"key":       "mbmcp_test_plaintextsecret",
			"prefix":    "mbmcp_test_plain",
			"label":     "CI",
			"rateLimit": 120,
			"createdAt": time.Now().UTC(),
		})
	}))

	label := "CI"
	rec, err := b.CreateKey(context.Background(), CreateParams{
		Label:       &label,
		Environment: "test",
		RateLimit:   120,
	})
	require.NoError(t, err)
	require.Equal(t, "k-new", rec.ID)
	require.Equal(t, "mbmcp_test_plaintextsecret", rec.Key)
	require.Equal(t, StatusActive, rec.Status)
}

func TestHTTPCreateKeyServerError(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit must be positive", http.StatusBadRequest)
	}))

	_, err := b.CreateKey(context.Background(), CreateParams{})
	require.Error(t, err)
	require.True(t, errutil.HasCode(err, errutil.CodeBackend))
	require.Contains(t, err.Error(), "rate limit must be positive")
}

func TestHTTPRevokeKey(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/keys/k1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	applied, err := b.RevokeKey(context.Background(), "k1")
	require.NoError(t, err)
	require.True(t, applied)
}

func TestHTTPRevokeKeyNotFoundIsFalse(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	applied, err := b.RevokeKey(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, applied)
}

func TestHTTPRevokeKeyServerFailure(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := b.RevokeKey(context.Background(), "k1")
	require.Error(t, err)
	require.True(t, errutil.HasCode(err, errutil.CodeBackend))
}

func TestHTTPGetKeyInfoScansListing(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "true", r.URL.Query().Get("includeRevoked"))
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{
				{"id": "k1", "prefix": "mbmcp_live_AAAAA", "createdAt": time.Now().UTC()},
				{"id": "k2", "prefix": "mbmcp_live_BBBBB", "createdAt": time.Now().UTC()},
			},
		})
	}))

	rec, err := b.GetKeyInfo(context.Background(), "k2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "k2", rec.ID)

	rec, err = b.GetKeyInfo(context.Background(), "k3")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestHTTPHealthCheck(t *testing.T) {
	b := newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	require.True(t, b.HealthCheck(context.Background()), "4xx still proves the endpoint is up")

	b = newHTTPBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	require.False(t, b.HealthCheck(context.Background()))

	down := NewHTTPBackend("http://127.0.0.1:1", "k", time.Second, zap.NewNop())
	require.False(t, down.HealthCheck(context.Background()))
}

func TestHTTPTransportErrorIsBackendError(t *testing.T) {
	down := NewHTTPBackend("http://127.0.0.1:1", "k", time.Second, zap.NewNop())

	_, err := down.ListKeys(context.Background(), false)
	require.Error(t, err)
	require.True(t, errutil.HasCode(err, errutil.CodeBackend))
}
