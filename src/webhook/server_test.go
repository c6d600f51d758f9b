package webhook

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hendrywilliam/siren/src/events"
	"github.com/hendrywilliam/siren/src/gateway"
	"github.com/hendrywilliam/siren/src/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type interactionRecorder struct {
	events.BaseHandler
	got    []events.InteractionCreate
	source events.Source
}

func (h *interactionRecorder) OnInteractionCreate(ctx events.Context, ev events.InteractionCreate) error {
	h.got = append(h.got, ev)
	h.source = ctx.Source
	return nil
}

type fakeStatus struct {
	info gateway.SessionInfo
}

func (s fakeStatus) IsConnected() bool { return s.info.State == gateway.Connected }
func (s fakeStatus) SessionInfo() (gateway.SessionInfo, bool) {
	return s.info, s.info.State != gateway.Disconnected
}

type fixture struct {
	server   *Server
	priv     ed25519.PrivateKey
	recorder *interactionRecorder
}

func newFixture(t *testing.T, status Status, reg *prometheus.Registry) *fixture {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	recorder := &interactionRecorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{
		PublicKey: hex.EncodeToString(pub),
		Sink:      events.NewDispatcher(events.Options{Handler: recorder, Logger: log}),
		Status:    status,
		Logger:    log,
	}
	if reg != nil {
		opts.Gatherer = reg
	}
	server, err := NewServer(opts)
	require.NoError(t, err)
	return &fixture{server: server, priv: priv, recorder: recorder}
}

func (f *fixture) signed(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	timestamp := "1700000000"
	req.Header.Set("X-Signature-Timestamp", timestamp)
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(ed25519.Sign(f.priv, []byte(timestamp+body))))
	return req
}

func TestNewServerRejectsBadKey(t *testing.T) {
	_, err := NewServer(Options{PublicKey: "zz"})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
	_, err = NewServer(Options{PublicKey: "abcd"})
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	f := newFixture(t, nil, nil)
	res, err := f.server.App().Test(f.signed(`{"id":"1","type":1}`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.JSONEq(t, `{"type":1}`, string(body))
	assert.Empty(t, f.recorder.got)
}

func TestInteractionIsDispatchedFromWebhook(t *testing.T) {
	f := newFixture(t, nil, nil)
	res, err := f.server.App().Test(f.signed(`{"id":"10","token":"tok","type":2,"data":{"name":"test"}}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	require.Len(t, f.recorder.got, 1)
	assert.Equal(t, "10", f.recorder.got[0].ID)
	assert.Equal(t, "tok", f.recorder.got[0].Token)
	assert.Equal(t, events.SourceWebhook, f.recorder.source)
}

func TestSignatureIsVerified(t *testing.T) {
	f := newFixture(t, nil, nil)

	unsigned := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(`{"type":1}`))
	res, err := f.server.App().Test(unsigned)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	tampered := f.signed(`{"type":1}`)
	tampered.Body = io.NopCloser(strings.NewReader(`{"type":2}`))
	res, err = f.server.App().Test(tampered)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	badHex := f.signed(`{"type":1}`)
	badHex.Header.Set("X-Signature-Ed25519", "not-hex")
	res, err = f.server.App().Test(badHex)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, f.recorder.got)
}

func TestMalformedInteraction(t *testing.T) {
	f := newFixture(t, nil, nil)
	res, err := f.server.App().Test(f.signed(`{nope`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fakeStatus{info: gateway.SessionInfo{
		SessionID:  "abc",
		Sequence:   42,
		ShardID:    1,
		ShardCount: 2,
		State:      gateway.Connected,
	}}, nil)
	res, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "connected", body["state"])
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, float64(42), body["sequence"])
	assert.Equal(t, []any{float64(1), float64(2)}, body["shard"])

	down := newFixture(t, fakeStatus{info: gateway.SessionInfo{State: gateway.Reconnecting}}, nil)
	res, err = down.server.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Event("MESSAGE_CREATE")
	f := newFixture(t, nil, reg)

	res, err := f.server.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), `siren_dispatch_events_total{event="MESSAGE_CREATE"} 1`)

	withoutRegistry := newFixture(t, nil, nil)
	res, err = withoutRegistry.server.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
