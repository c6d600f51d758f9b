package messages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, h http.HandlerFunc) *MessageAPI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(rest.NewREST(rest.Options{
		BaseURL:              srv.URL,
		Credentials:          credential.Static("abc"),
		RetryInitialInterval: time.Millisecond,
	}))
}

func TestCreateMessage(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/10/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pong", body["content"])
		assert.Equal(t, true, body["tts"])
		assert.Equal(t, map[string]any{"message_id": "99"}, body["message_reference"])

		_, _ = w.Write([]byte(`{"id":"100","channel_id":"10","content":"pong"}`))
	})

	msg, err := api.CreateMessage(context.Background(), "10", NewMessage("pong").TTS().Reply("99").Build())
	require.NoError(t, err)
	assert.Equal(t, "100", msg.ID)
	assert.Equal(t, "10", msg.ChannelID)
}

func TestDeleteMessage(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/channels/10/messages/11", r.URL.Path)
		assert.Equal(t, "spam", r.Header.Get("X-Audit-Log-Reason"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, api.DeleteMessage(context.Background(), "10", "11", "spam"))
}

func TestBuilderNonce(t *testing.T) {
	data := NewMessage("hi").Nonce("n-1").Flags(4).Build()
	assert.Equal(t, "n-1", data.Nonce)
	assert.True(t, data.EnforceNonce)
	assert.Equal(t, 4, data.Flags)
	assert.False(t, data.Tts)
}
