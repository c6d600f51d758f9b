package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hendrywilliam/siren/src/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	tok, err := Static("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bot abc", tok)

	tok, err = Static("Bot abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bot abc", tok)
}

func TestStaticEmpty(t *testing.T) {
	_, err := Static("").Token(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuthentication))
}

func TestClientCredentialsCachesToken(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"xyz","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	p := NewClientCredentials(context.Background(), ClientCredentialsConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	})
	for i := 0; i < 3; i++ {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer xyz", tok)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestClientCredentialsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	p := NewClientCredentials(context.Background(), ClientCredentialsConfig{
		ClientID:     "client",
		ClientSecret: "wrong",
		TokenURL:     srv.URL,
	})
	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuthentication))
	assert.False(t, errs.IsRetryable(err))
}
