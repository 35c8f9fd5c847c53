package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/tokenledger/internal/handler"
	"github.com/jmerrifield20/tokenledger/internal/identity"
	"github.com/jmerrifield20/tokenledger/internal/ledger"
	"github.com/jmerrifield20/tokenledger/internal/service"
)

// ── Test setup ────────────────────────────────────────────────────────────

type testEnv struct {
	router *gin.Engine
	svc    *service.TokenService
	tokens *identity.CallerTokenIssuer
}

func newTokens(t *testing.T) *identity.CallerTokenIssuer {
	t.Helper()
	key, err := identity.LoadOrCreateKey(filepath.Join(t.TempDir(), "signing.pem"))
	if err != nil {
		t.Fatalf("LoadOrCreateKey: %v", err)
	}
	return identity.NewCallerTokenIssuer(key, "http://test", time.Hour)
}

func setupLedgerRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := newTokens(t)
	svc := service.NewTokenService(ledger.NewHost(), zap.NewNop())
	h := handler.NewLedgerHandler(svc, tokens, zap.NewNop())

	r := gin.New()
	h.Register(r.Group("/api/v1"))
	return &testEnv{router: r, svc: svc, tokens: tokens}
}

func (e *testEnv) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if caller != "" {
		tok, err := e.tokens.Issue(ledger.Principal(caller))
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (e *testEnv) initTOK(t *testing.T) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/ledger/init", "owner",
		`{"symbol":"TOK","name":"Token","total_supply":1000,"decimals":2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("init: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestInit_201_thenConflict(t *testing.T) {
	env := setupLedgerRouter(t)
	env.initTOK(t)

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/ledger", "", ""))
	if body["owner"] != "owner" || body["symbol"] != "TOK" {
		t.Errorf("metadata: got %v", body)
	}

	w := env.do(t, http.MethodPost, "/api/v1/ledger/init", "mallory", `{"symbol":"BAD","name":"Bad"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if got := decode(t, w)["code"]; got != "AlreadyInitialized" {
		t.Errorf("code: got %v, want AlreadyInitialized", got)
	}
}

func TestMutations_401_withoutToken(t *testing.T) {
	env := setupLedgerRouter(t)
	for _, path := range []string{"/init", "/approve", "/transfer", "/minters", "/mint", "/cycles/burn"} {
		w := env.do(t, http.MethodPost, "/api/v1/ledger"+path, "", `{}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestTransfer_412_beforeInit(t *testing.T) {
	env := setupLedgerRouter(t)
	w := env.do(t, http.MethodPost, "/api/v1/ledger/transfer", "owner", `{"to":"alice","amount":1}`)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["code"]; got != "NotInitialized" {
		t.Errorf("code: got %v, want NotInitialized", got)
	}
}

func TestQueries_zeroBeforeInit(t *testing.T) {
	env := setupLedgerRouter(t)
	body := decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/total-supply", "", ""))
	if body["total_supply"] != float64(0) {
		t.Errorf("total_supply: got %v, want 0", body["total_supply"])
	}
	body = decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/history", "", ""))
	if body["total"] != float64(0) {
		t.Errorf("history total: got %v, want 0", body["total"])
	}
}

func TestScenario_TOK(t *testing.T) {
	env := setupLedgerRouter(t)
	env.initTOK(t)

	w := env.do(t, http.MethodPost, "/api/v1/ledger/transfer", "owner", `{"to":"alice","amount":300}`)
	if w.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	entry := decode(t, w)
	if entry["index"] != float64(0) || entry["post_balance_from"] != float64(700) {
		t.Errorf("entry: got %v", entry)
	}
	if entry["reason"] != ledger.ReasonTransferNoCycles {
		t.Errorf("reason: got %v", entry["reason"])
	}

	w = env.do(t, http.MethodPost, "/api/v1/ledger/transfer", "alice", `{"to":"bob","amount":400}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overdraft: expected 422, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/ledger/minters", "alice", `{"minter":"alice"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-owner add minter: expected 403, got %d", w.Code)
	}
	if w = env.do(t, http.MethodPost, "/api/v1/ledger/minters", "owner", `{"minter":"alice"}`); w.Code != http.StatusOK {
		t.Fatalf("add minter: expected 200, got %d", w.Code)
	}
	if w = env.do(t, http.MethodPost, "/api/v1/ledger/mint", "alice", `{"to":"bob","display_amount":"0.50"}`); w.Code != http.StatusOK {
		t.Fatalf("mint: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w = env.do(t, http.MethodPost, "/api/v1/ledger/mint", "bob", `{"to":"bob","amount":1}`); w.Code != http.StatusForbidden {
		t.Fatalf("non-minter mint: expected 403, got %d", w.Code)
	}

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/balances/bob", "", ""))
	if body["balance"] != float64(50) || body["display"] != "0.50" {
		t.Errorf("bob: got %v", body)
	}
	body = decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/total-supply", "", ""))
	if body["total_supply"] != float64(1050) || body["display"] != "10.50" {
		t.Errorf("supply: got %v", body)
	}
}

func TestApprove_overwrites(t *testing.T) {
	env := setupLedgerRouter(t)
	env.initTOK(t)

	env.do(t, http.MethodPost, "/api/v1/ledger/approve", "owner", `{"spender":"alice","amount":100}`)
	w := env.do(t, http.MethodPost, "/api/v1/ledger/approve", "owner", `{"spender":"alice","amount":40}`)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", w.Code)
	}

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/allowances/owner/alice", "", ""))
	if body["allowance"] != float64(40) {
		t.Errorf("allowance: got %v, want 40", body["allowance"])
	}
}

func TestAmount_400(t *testing.T) {
	env := setupLedgerRouter(t)
	env.initTOK(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing", `{"to":"alice"}`},
		{"both", `{"to":"alice","amount":1,"display_amount":"1"}`},
		{"too precise", `{"to":"alice","display_amount":"0.001"}`},
		{"negative", `{"to":"alice","display_amount":"-1"}`},
		{"bad principal", `{"to":"has space","amount":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/ledger/transfer", "owner", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestBurnCycles_andReason(t *testing.T) {
	env := setupLedgerRouter(t)
	env.initTOK(t)

	w := env.do(t, http.MethodPost, "/api/v1/ledger/cycles/burn", "owner", `{"amount":9}`)
	if got := decode(t, w)["burnt_cycles"]; got != float64(9) {
		t.Fatalf("burnt_cycles: got %v, want 9", got)
	}
	entry := decode(t, env.do(t, http.MethodPost, "/api/v1/ledger/transfer", "owner", `{"to":"alice","amount":1}`))
	if entry["cycles_burnt"] != float64(9) || entry["reason"] != ledger.ReasonTransferCyclesBurnt {
		t.Errorf("entry: got %v", entry)
	}
	if got := decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/cycles", "", ""))["burnt_cycles"]; got != float64(9) {
		t.Errorf("GET cycles: got %v, want 9", got)
	}
}

func TestHistory_paging(t *testing.T) {
	env := setupLedgerRouter(t)
	env.initTOK(t)
	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/v1/ledger/transfer", "owner", `{"to":"alice","amount":1}`)
	}

	body := decode(t, env.do(t, http.MethodGet, "/api/v1/ledger/history?offset=1&limit=1", "", ""))
	entries, _ := body["entries"].([]any)
	if body["total"] != float64(3) || len(entries) != 1 {
		t.Fatalf("page: got %v", body)
	}
	if idx := entries[0].(map[string]any)["index"]; idx != float64(1) {
		t.Errorf("index: got %v, want 1", idx)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/ledger/history?limit=0", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0: expected 400, got %d", w.Code)
	}
}

// ── Auth ──────────────────────────────────────────────────────────────────

type stubKeyring struct{ secret string }

func (s *stubKeyring) Authenticate(p ledger.Principal, secret string) error {
	if p == "alice" && secret == s.secret {
		return nil
	}
	return identity.ErrBadCredentials
}

func setupAuthRouter(t *testing.T) (*gin.Engine, *identity.CallerTokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := newTokens(t)
	r := gin.New()
	handler.NewAuthHandler(&stubKeyring{secret: "s3cret"}, tokens, zap.NewNop()).Register(r.Group("/api/v1"))
	return r, tokens
}

func TestIssueToken_200(t *testing.T) {
	r, tokens := setupAuthRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token",
		strings.NewReader(`{"principal":"alice","secret":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	tok, _ := decode(t, w)["token"].(string)
	claims, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Caller() != "alice" {
		t.Errorf("caller: got %q, want %q", claims.Caller(), "alice")
	}
}

func TestIssueToken_401(t *testing.T) {
	r, _ := setupAuthRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token",
		strings.NewReader(`{"principal":"alice","secret":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

// ── Rate limit ────────────────────────────────────────────────────────────

func TestRateLimiter_429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(handler.RateLimiter(ctx, 1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes: got %v, want [200 429]", codes)
	}
}

