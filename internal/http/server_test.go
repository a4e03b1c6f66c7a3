package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/wallet-bridge/internal/approval"
	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/chains/chainstest"
	"github.com/quantumauth-io/wallet-bridge/internal/kvstore"
	"github.com/quantumauth-io/wallet-bridge/internal/pairing"
	"github.com/quantumauth-io/wallet-bridge/internal/pending"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/rpc"
	"github.com/quantumauth-io/wallet-bridge/internal/securefile"
	"github.com/quantumauth-io/wallet-bridge/internal/transport/wsbus"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

const (
	testPassword = "hunter2"
	testKey      = "0x1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727"
	testAddr     = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	dapp         = "https://dapp.example"
	testUIToken  = "ui-token-for-tests"
)

var fastKDF = securefile.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1, KeyLen: 32}

type testEnv struct {
	router    *gin.Engine
	vault     *vault.Vault
	ledger    *permissions.Ledger
	chains    *chains.Directory
	approvals *approval.Service
	pairings  *pairing.Table
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := kvstore.NewMemory()

	v, err := vault.New(store, vault.WithKDF(fastKDF))
	require.NoError(t, err)

	client := chainstest.New(11155111)
	dir, err := chains.New(ctx, store, chains.DefaultChains(), chains.SepoliaChainID,
		chains.WithDialer(func(context.Context, string) (chains.ChainClient, error) { return client, nil }))
	require.NoError(t, err)

	ledger, err := permissions.New(ctx, store)
	require.NoError(t, err)

	reg := pending.NewRegistry()
	t.Cleanup(reg.Close)
	svc := approval.NewService(reg, approval.LauncherFunc(func(context.Context, approval.Prompt) error { return nil }), time.Minute)

	am := assets.NewManager(store)
	disp, err := rpc.New(rpc.Deps{Vault: v, Chains: dir, Ledger: ledger, Approvals: svc, Assets: am})
	require.NoError(t, err)

	pairings := pairing.NewTable(time.Minute)
	h, err := NewHandler(Deps{
		Vault:      v,
		Dispatcher: disp,
		Chains:     dir,
		Ledger:     ledger,
		Approvals:  svc,
		Assets:     am,
		Hub:        wsbus.NewHub(),
		Pairings:   pairings,
		UIToken:    testUIToken,
		Version:    "test",
	})
	require.NoError(t, err)

	router, err := NewRouter(h)
	require.NoError(t, err)

	return &testEnv{router: router, vault: v, ledger: ledger, chains: dir, approvals: svc, pairings: pairings}
}

type reqOpt func(*http.Request)

func withUI(r *http.Request) { r.Header.Set(HeaderUI, testUIToken) }

func withSession(s string) reqOpt {
	return func(r *http.Request) { r.Header.Set(HeaderVaultSession, s) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "127.0.0.1:52000"
	req.Host = "127.0.0.1:6137"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) unlock(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/vault/unlock", unlockReq{Password: testPassword}, withUI)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody[unlockResp](t, w)
	require.NotEmpty(t, out.Session)
	return out.Session
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestLoopbackGuards(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		remote string
		host   string
		want   int
	}{
		{name: "loopback", remote: "127.0.0.1:1", host: "127.0.0.1:6137", want: http.StatusOK},
		{name: "ipv6 loopback", remote: "[::1]:1", host: "localhost:6137", want: http.StatusOK},
		{name: "remote peer", remote: "192.0.2.10:1", host: "127.0.0.1:6137", want: http.StatusForbidden},
		{name: "rebinding host", remote: "127.0.0.1:1", host: "evil.example:6137", want: http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.RemoteAddr = tc.remote
			req.Host = tc.host
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAPIRequiresUIHeaderAndLocalOrigin(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/vault/status", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/api/vault/status", nil, withHeader(HeaderUI, "1"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/api/vault/status", nil, withUI, withHeader("Origin", "https://evil.example"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodGet, "/api/vault/status", nil, withUI, withHeader("Origin", "http://127.0.0.1:6137"))
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeBody[vaultStatusResp](t, w)
	assert.False(t, st.Initialized)
	assert.False(t, st.Unlocked)
}

func TestPairExchange(t *testing.T) {
	e := newTestEnv(t)
	offer, err := e.pairings.Issue()
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/relay/tabs", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/pair", pairExchangeReq{PairID: offer.PairID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/pair", pairExchangeReq{PairID: offer.PairID, Code: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/pair", pairExchangeReq{PairID: offer.PairID, Code: offer.Code})
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeBody[pairExchangeResp](t, w)
	assert.True(t, out.OK)
	assert.Equal(t, HeaderExtensionToken, out.Header)

	// consumed
	w = e.do(t, http.MethodPost, "/pair", pairExchangeReq{PairID: offer.PairID, Code: offer.Code})
	assert.Equal(t, http.StatusGone, w.Code)

	w = e.do(t, http.MethodGet, "/relay/tabs", nil, withHeader(HeaderExtensionToken, out.Token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[tabsResp](t, w).Tabs)

	w = e.do(t, http.MethodGet, "/relay/tabs?token="+out.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVaultLifecycle(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/vault/accounts", nil, withUI)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s := e.unlock(t)

	w = e.do(t, http.MethodPost, "/api/vault/unlock", unlockReq{Password: "nope"}, withUI)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/vault/accounts/import", importKeyReq{PrivateKey: testKey, Name: "main"}, withUI, withSession(s))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	acct := decodeBody[vault.Account](t, w)
	assert.Equal(t, common.HexToAddress(testAddr), acct.Address)

	w = e.do(t, http.MethodPost, "/api/vault/accounts/import", importKeyReq{PrivateKey: "0x1234"}, withUI, withSession(s))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/vault/accounts", nil, withUI, withSession(s))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decodeBody[vault.Account](t, w)

	w = e.do(t, http.MethodPost, "/api/vault/accounts/select", selectReq{Address: second.Address.Hex()}, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/vault/accounts", nil, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[accountsResp](t, w)
	assert.Len(t, list.Accounts, 2)
	require.NotNil(t, list.Current)
	assert.Equal(t, second.Address, *list.Current)

	w = e.do(t, http.MethodPost, "/api/vault/accounts/"+testAddr+"/name", renameReq{Name: "savings"}, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "savings", decodeBody[vault.Account](t, w).Name)

	w = e.do(t, http.MethodPost, "/api/vault/accounts/"+testAddr+"/export", nil, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, testKey, decodeBody[exportKeyResp](t, w).PrivateKey)

	w = e.do(t, http.MethodGet, "/api/vault/status", nil, withUI)
	st := decodeBody[vaultStatusResp](t, w)
	assert.True(t, st.Initialized)
	assert.True(t, st.Unlocked)

	w = e.do(t, http.MethodPost, "/api/vault/lock", nil, withUI, withSession(s))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/api/vault/accounts", nil, withUI, withSession(s))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMnemonicRoutes(t *testing.T) {
	e := newTestEnv(t)
	s := e.unlock(t)

	mnemonic, err := vault.GenerateMnemonic()
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/vault/mnemonics", importMnemonicReq{Mnemonic: mnemonic, Count: 2}, withUI, withSession(s))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	wallet := decodeBody[vault.MnemonicWallet](t, w)
	assert.Len(t, wallet.Accounts, 2)

	w = e.do(t, http.MethodPost, "/api/vault/mnemonics/derive", deriveReq{WalletID: wallet.ID}, withUI, withSession(s))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/vault/mnemonics/"+wallet.ID+"/export", nil, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mnemonic, decodeBody[exportMnemonicResp](t, w).Mnemonic)

	w = e.do(t, http.MethodPost, "/api/vault/mnemonics", importMnemonicReq{Mnemonic: "not a real phrase"}, withUI, withSession(s))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/vault/mnemonics/missing/export", nil, withUI, withSession(s))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApprovalDecision(t *testing.T) {
	e := newTestEnv(t)

	type outcome struct {
		approved bool
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		ok, err := e.approvals.RequestConnection(context.Background(), dapp, []common.Address{common.HexToAddress(testAddr)})
		done <- outcome{ok, err}
	}()

	require.Eventually(t, func() bool { return len(e.approvals.Pending()) == 1 }, time.Second, 5*time.Millisecond)

	w := e.do(t, http.MethodGet, "/api/approvals", nil, withUI)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[approvalsResp](t, w)
	require.Len(t, list.Approvals, 1)
	p := list.Approvals[0]
	assert.Equal(t, dapp, p.Origin)
	assert.Equal(t, pending.KindConnection, p.Kind)

	w = e.do(t, http.MethodGet, "/api/approvals/"+string(p.RequestID), nil, withUI)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/api/approvals/"+string(p.RequestID), map[string]any{}, withUI)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	approved := true
	w = e.do(t, http.MethodPost, "/api/approvals/"+string(p.RequestID), decisionReq{Approved: &approved}, withUI)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.True(t, got.approved)
	case <-time.After(time.Second):
		t.Fatal("approval was not delivered")
	}

	w = e.do(t, http.MethodPost, "/api/approvals/"+string(p.RequestID), decisionReq{Approved: &approved}, withUI)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/approvals/"+string(p.RequestID), nil, withUI)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPermissionRoutes(t *testing.T) {
	e := newTestEnv(t)
	s := e.unlock(t)

	_, err := e.ledger.Grant(context.Background(), dapp, []common.Address{common.HexToAddress(testAddr)})
	require.NoError(t, err)

	w := e.do(t, http.MethodGet, "/api/permissions", nil, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code)
	recs := decodeBody[permissionsResp](t, w).Permissions
	require.Len(t, recs, 1)
	assert.Equal(t, dapp, recs[0].Origin)

	w = e.do(t, http.MethodDelete, "/api/permissions?origin="+dapp, nil, withUI, withSession(s))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, e.ledger.Connected(dapp))

	w = e.do(t, http.MethodDelete, "/api/permissions?origin="+dapp, nil, withUI, withSession(s))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChainRoutes(t *testing.T) {
	e := newTestEnv(t)
	s := e.unlock(t)

	w := e.do(t, http.MethodGet, "/api/chains", nil, withUI)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[chainsResp](t, w)
	assert.Equal(t, chains.SepoliaChainID, list.Current)
	assert.Len(t, list.Chains, len(chains.DefaultChains()))

	w = e.do(t, http.MethodPost, "/api/chains/current", switchChainReq{ChainID: "0x1"}, withUI)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/chains/current", switchChainReq{ChainID: "1"}, withUI, withSession(s))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, chains.MainnetChainID, e.chains.Current().ChainID)

	w = e.do(t, http.MethodPost, "/api/chains/current", switchChainReq{ChainID: "0x9999"}, withUI, withSession(s))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/api/chains/0x1", nil, withUI, withSession(s))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodDelete, "/api/chains/"+chains.PolygonChainID, nil, withUI, withSession(s))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAccountQR(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/accounts/"+testAddr+"/qr?size=128", nil, withUI)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = e.do(t, http.MethodGet, "/api/accounts/"+testAddr+"/qr?size=99999", nil, withUI)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodGet, "/api/accounts/nope/qr", nil, withUI)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUIFallback(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/approve?id=abc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	w = e.do(t, http.MethodGet, "/api/unknown", nil, withUI)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApprovalDecisionRejectsForeignPages(t *testing.T) {
	e := newTestEnv(t)

	done := make(chan bool, 1)
	go func() {
		ok, _ := e.approvals.RequestConnection(context.Background(), "http://localhost:3000", []common.Address{common.HexToAddress(testAddr)})
		done <- ok
	}()
	require.Eventually(t, func() bool { return len(e.approvals.Pending()) == 1 }, time.Second, 5*time.Millisecond)
	id := string(e.approvals.Pending()[0].RequestID)
	approved := true

	w := e.do(t, http.MethodOptions, "/api/approvals/"+id, nil,
		withHeader("Origin", "http://localhost:3000"),
		withHeader("Access-Control-Request-Method", http.MethodPost),
		withHeader("Access-Control-Request-Headers", HeaderUI))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	tests := []struct {
		name string
		opts []reqOpt
	}{
		{name: "localhost dapp", opts: []reqOpt{withUI, withHeader("Origin", "http://localhost:3000")}},
		{name: "extension", opts: []reqOpt{withUI, withHeader("Origin", "chrome-extension://abcdefghijklmnop")}},
		{name: "other host port", opts: []reqOpt{withUI, withHeader("Origin", "http://127.0.0.1:9999")}},
		{name: "guessed token", opts: []reqOpt{withHeader(HeaderUI, "1"), withHeader("Origin", "http://127.0.0.1:6137")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/approvals/"+id, decisionReq{Approved: &approved}, tc.opts...)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
	require.Len(t, e.approvals.Pending(), 1)

	w = e.do(t, http.MethodPost, "/api/approvals/"+id, decisionReq{Approved: &approved}, withUI, withHeader("Origin", "http://127.0.0.1:6137"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("approval was not delivered")
	}
}

func TestIsExtensionOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "chrome-extension://abcdefghijklmnop", want: true},
		{origin: "moz-extension://4b1e3f0c-1111-2222-3333-444455556666", want: true},
		{origin: "http://127.0.0.1:6137", want: false},
		{origin: "http://localhost:3000", want: false},
		{origin: "https://dapp.example", want: false},
		{origin: "", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			assert.Equal(t, tc.want, isExtensionOrigin(tc.origin))
		})
	}
}
