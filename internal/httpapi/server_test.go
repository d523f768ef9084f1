package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skovald/storyteller/internal/chain"
	"github.com/skovald/storyteller/internal/config"
	"github.com/skovald/storyteller/internal/gate"
	"github.com/skovald/storyteller/internal/payment"
	"github.com/skovald/storyteller/internal/storage"
	"github.com/skovald/storyteller/internal/tts"
)

const (
	wallet    = "0xc566bc1e529a71ece83145f98aac3c818d1311b3"
	token     = "0x3600000000000000000000000000000000000000"
	testStory = "The dragon woke. The sky burned red. The village held its breath. A child stepped forward. Everything changed."
)

type fakeStories struct{}

func (fakeStories) Generate(ctx context.Context, topic string) (string, bool) {
	return testStory, false
}

type fakeAudio struct{}

func (fakeAudio) Synthesize(ctx context.Context, text, filename string) tts.Result {
	return tts.Result{Available: true, Path: "/" + filename + "?v=1"}
}

type fakeRPC struct{}

func (fakeRPC) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (fakeRPC) NativeBalance(ctx context.Context, addr string) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (fakeRPC) PendingNonce(ctx context.Context, addr string) (uint64, error) { return 3, nil }

func (fakeRPC) GasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20_000_000_000), nil
}

func (fakeRPC) LookupTransaction(ctx context.Context, hash string) (*chain.TxInfo, error) {
	return &chain.TxInfo{}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		TokenAddress:   token,
		CreatorAddress: "0x2222222222222222222222222222222222222222",
		ChainID:        315298,
	}
	payments := payment.New(fakeRPC{}, store, cfg, log)
	g := gate.New(store, storage.NewLocks(), fakeStories{}, fakeAudio{}, payments, nil, log)

	srv := httptest.NewServer(NewServer(g, t.TempDir(), log).routes())
	t.Cleanup(srv.Close)

	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return resp, decoded
}

func TestFullScenario(t *testing.T) {
	srv := newTestServer(t)

	// Connect.
	resp, body := postJSON(t, srv.URL+"/connect", map[string]string{"wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", body["status"])
	assert.True(t, strings.EqualFold(wallet, body["wallet"].(string)))

	// Ask for a story: teaser with ellipsis, call to action, canTip.
	resp, body = postJSON(t, srv.URL+"/chat", map[string]string{"message": "dragons", "wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	written := body["written"].(string)
	assert.Contains(t, written, "...")
	assert.Contains(t, written, "Tip $0.50")
	assert.NotContains(t, written, "Everything changed")
	assert.Equal(t, true, body["canTip"])
	assert.NotEmpty(t, body["audio"])

	// Request the tip transaction.
	resp, body = postJSON(t, srv.URL+"/tip", map[string]string{"wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sign_required", body["status"])
	tx := body["tx"].(map[string]any)
	assert.Equal(t, token, tx["to"])
	assert.Equal(t, "0x0", tx["value"])

	// Confirm and unlock.
	resp, body = postJSON(t, srv.URL+"/confirm_tx", map[string]string{"tx_hash": "0xabc", "wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testStory, body["written"])
	assert.True(t, strings.HasSuffix(body["explorer"].(string), "/tx/0xabc"))
}

func TestConnectInvalidAddress(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/connect", map[string]string{"wallet": "0x1234"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
}

func TestChatWithoutMessage(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/chat", map[string]string{"message": "", "wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["reply"], "what story you'd like to hear")
	assert.Nil(t, body["written"])
}

func TestChatWithoutConnectedWallet(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/chat", map[string]string{"message": "dragons", "wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, replyConnectFirst, body["reply"])
}

func TestTipWithoutConnectedWallet(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/tip", map[string]string{"wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, replyConnectForTip, body["reply"])
}

func TestConfirmWithoutHash(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/confirm_tx", map[string]string{"wallet": wallet})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, replyNoTxHash, body["reply"])
}

func TestConfirmWithoutPending(t *testing.T) {
	srv := newTestServer(t)

	_, _ = postJSON(t, srv.URL+"/connect", map[string]string{"wallet": wallet})
	_, _ = postJSON(t, srv.URL+"/chat", map[string]string{"message": "dragons", "wallet": wallet})

	resp, body := postJSON(t, srv.URL+"/confirm_tx", map[string]string{"tx_hash": "0xabc", "wallet": wallet})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["written"], "no full story without an outstanding payment")
	assert.NotEmpty(t, body["reply"])
}

func TestHealthIdempotent(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]string{"status": "healthy"}, body)
	}
}

func TestPostOnlyRoutes(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/connect", "/chat", "/tip", "/confirm_tx"} {
		req, err := http.NewRequest(http.MethodPut, srv.URL+path, nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}
