package interactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/rest"
	"github.com/hendrywilliam/siren/src/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, h http.HandlerFunc) *InteractionAPI {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewInteractionAPI(rest.NewREST(rest.Options{BaseURL: srv.URL, Credentials: credential.Static("abc")}))
}

func TestReply(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interactions/1/tok/callback", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("with_response"))

		var body structs.InteractionResponse
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, structs.InteractionResponseTypeChannelMessageWithSource, body.Type)
		require.NotNil(t, body.Data)
		assert.Equal(t, "hello world", body.Data.Content)
		w.WriteHeader(http.StatusOK)
	})

	res, err := api.Reply(context.Background(), "1", "tok", CreateInteractionResponse{
		InteractionResponse: &structs.InteractionResponse{
			Type: structs.InteractionResponseTypeChannelMessageWithSource,
			Data: &structs.InteractionResponseDataMessage{Content: "hello world"},
		},
		WithResponse: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestOriginalResponseLifecycle(t *testing.T) {
	var methods []string
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhooks/app/tok/messages/@original", r.URL.Path)
		methods = append(methods, r.Method)
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "th", r.URL.Query().Get("thread_id"))
			_, _ = w.Write([]byte(`{"id":"5","content":"first"}`))
		case http.MethodPatch:
			_, _ = w.Write([]byte(`{"id":"5","content":"edited"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	msg, err := api.GetOriginal(ctx, "app", "tok", GetOriginalOptions{ThreadID: "th"})
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)

	msg, err = api.EditOriginal(ctx, "app", "tok", EditOriginalOptions{Data: &structs.InteractionResponseDataMessage{Content: "edited"}})
	require.NoError(t, err)
	assert.Equal(t, "edited", msg.Content)

	require.NoError(t, api.DeleteOriginal(ctx, "app", "tok"))
	assert.Equal(t, []string{http.MethodGet, http.MethodPatch, http.MethodDelete}, methods)
}

func TestRegisterCommands(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/applications/app/guilds/g/commands", r.URL.Path)
		var cmds []structs.AppCmd
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmds))
		for i := range cmds {
			cmds[i].ID = "c1"
		}
		_ = json.NewEncoder(w).Encode(cmds)
	})

	registered, err := api.RegisterCommands(context.Background(), "app", "g", DefaultCommands())
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, "c1", registered[0].ID)
	assert.Equal(t, "test", registered[0].Name)
}

func TestRegisterCommandsRejectsInvalidCommands(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	bad := []structs.AppCmd{{Name: "Has Spaces", Description: "x"}}
	_, err := api.RegisterCommands(context.Background(), "app", "", bad)
	assert.ErrorContains(t, err, "invalid chat input name")
}
