package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matatika/tap-shopify/pkg/config"
	"github.com/Matatika/tap-shopify/pkg/errors"
)

func TestStaticToken(t *testing.T) {
	cfg := config.NewTapConfig()
	cfg.AccessToken = "1234"
	cfg.Store = "mock-store"
	cfg.UserAgent = "tap-shopify/test"

	a := FromConfig(context.Background(), cfg, nil)
	h, err := a.Headers()
	require.NoError(t, err)

	assert.Equal(t, "1234", h.Get(HeaderAccessToken))
	assert.Equal(t, "tap-shopify/test", h.Get("User-Agent"))
}

func TestStaticTokenWithoutUserAgent(t *testing.T) {
	h, err := NewAPIKeyAuthenticator(StaticToken("abc"), "").Headers()
	require.NoError(t, err)
	assert.Equal(t, "abc", h.Get(HeaderAccessToken))
	assert.Empty(t, h.Get("User-Agent"))
}

func TestClientCredentials(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/admin/oauth/access_token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"shpat_issued","token_type":"bearer","expires_in":86399}`))
	}))
	defer srv.Close()

	cfg := config.NewTapConfig()
	cfg.Store = "mock-store"
	cfg.AdminURL = srv.URL + "/admin"
	cfg.ClientID = "id"
	cfg.ClientSecret = "secret"

	a := FromConfig(context.Background(), cfg, srv.Client())
	for i := 0; i < 3; i++ {
		h, err := a.Headers()
		require.NoError(t, err)
		assert.Equal(t, "shpat_issued", h.Get(HeaderAccessToken))
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "token should be cached")
}

func TestClientCredentialsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := ClientCredentials(context.Background(), srv.Client(), srv.URL, "id", "bad")
	_, err := NewAPIKeyAuthenticator(src, "").Headers()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}
