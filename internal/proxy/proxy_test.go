package proxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
	"github.com/sovereign-arena/level5-proxy/internal/pricing"
)

func newTestServer(t *testing.T) (*Server, *ledger.Ledger) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "arena-proxy-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	l, err := ledger.New(&ledger.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })

	table := pricing.NewTable()
	s := New(Config{ListenAddr: "127.0.0.1:0"}, l, table)

	return s, l
}

func TestScenario1_RegisterDepositSpend(t *testing.T) {
	s, l := newTestServer(t)

	apiToken, depositCode, err := l.CreateAPIToken()
	if err != nil {
		t.Fatalf("CreateAPIToken() error = %v", err)
	}

	// Mirror observes the V3 deposit and activates the token.
	if _, ok, err := l.ActivateToken(depositCode, "agent-pubkey"); err != nil || !ok {
		t.Fatalf("ActivateToken() = (ok=%v, err=%v)", ok, err)
	}
	if err := l.UpdateBalance("agent-pubkey", ledger.MintUSDC, 10_000_000, ledger.TxMirrorDeposit, ""); err != nil {
		t.Fatalf("seed deposit error = %v", err)
	}

	// GET balance.
	req := httptest.NewRequest(http.MethodGet, "/proxy/"+apiToken+"/balance", nil)
	req.SetPathValue("token", apiToken)
	rec := httptest.NewRecorder()
	s.handleBalance(rec, req)

	var balResp struct {
		Pubkey   string           `json:"pubkey"`
		Balances map[string]int64 `json:"balances"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &balResp); err != nil {
		t.Fatalf("unmarshal balance response: %v", err)
	}
	if balResp.Pubkey != "agent-pubkey" || balResp.Balances["USDC"] != 10_000_000 {
		t.Fatalf("balance response = %+v, want pubkey=agent-pubkey USDC=10000000", balResp)
	}

	// Mock chat completion.
	body := []byte(`{"model":"gpt-5.2","messages":[{"role":"user","content":"hi"}]}`)
	req = httptest.NewRequest(http.MethodPost, "/proxy/"+apiToken+"/v1/chat/completions", bytes.NewReader(body))
	req.SetPathValue("token", apiToken)
	req.Header.Set("X-MOCK-UPSTREAM", "true")
	rec = httptest.NewRecorder()
	s.handleOpenAIChat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	newBalance, err := l.GetBalance("agent-pubkey", ledger.MintUSDC)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	// gpt-5.2 is priced at {1500, 4500} micro-USDC per 1k tokens; against
	// the canned mock usage {15, 25}: floor(15*1500/1000 + 25*4500/1000) =
	// floor(22.5 + 112.5) = 135.
	if newBalance != 9_999_865 {
		t.Errorf("balance after mock call = %d, want 9999865", newBalance)
	}
}

func TestScenario3_InsufficientBalance(t *testing.T) {
	s, l := newTestServer(t)

	apiToken, depositCode, err := l.CreateAPIToken()
	if err != nil {
		t.Fatalf("CreateAPIToken() error = %v", err)
	}
	if _, ok, err := l.ActivateToken(depositCode, "agent-broke"); err != nil || !ok {
		t.Fatalf("ActivateToken() = (ok=%v, err=%v)", ok, err)
	}

	body := []byte(`{"model":"gpt-5.2"}`)
	req := httptest.NewRequest(http.MethodPost, "/proxy/"+apiToken+"/v1/chat/completions", bytes.NewReader(body))
	req.SetPathValue("token", apiToken)
	req.Header.Set("X-MOCK-UPSTREAM", "true")
	rec := httptest.NewRecorder()
	s.handleOpenAIChat(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Insufficient") {
		t.Errorf("body = %q, want substring Insufficient", rec.Body.String())
	}
}

func TestScenario4_InvalidToken(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/proxy/invalid-uuid/v1/messages", bytes.NewReader([]byte(`{}`)))
	req.SetPathValue("token", "invalid-uuid")
	rec := httptest.NewRecorder()
	s.handleAnthropicMessages(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid or inactive") {
		t.Errorf("body = %q, want substring 'Invalid or inactive'", rec.Body.String())
	}
}

func TestScenario5_StreamingAnthropicMock(t *testing.T) {
	s, l := newTestServer(t)

	apiToken, depositCode, err := l.CreateAPIToken()
	if err != nil {
		t.Fatalf("CreateAPIToken() error = %v", err)
	}
	if _, ok, err := l.ActivateToken(depositCode, "agent-stream"); err != nil || !ok {
		t.Fatalf("ActivateToken() = (ok=%v, err=%v)", ok, err)
	}
	if err := l.UpdateBalance("agent-stream", ledger.MintUSDC, 1_000_000, ledger.TxMirrorDeposit, ""); err != nil {
		t.Fatalf("seed deposit error = %v", err)
	}

	body := []byte(`{"model":"claude-sonnet-4-5-20250929","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/proxy/"+apiToken+"/v1/messages", bytes.NewReader(body))
	req.SetPathValue("token", apiToken)
	req.Header.Set("X-MOCK-UPSTREAM", "true")
	rec := httptest.NewRecorder()
	s.handleAnthropicMessages(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream prefix", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "event: message_start") || !strings.Contains(rec.Body.String(), "event: message_delta") {
		t.Errorf("body missing expected SSE events: %s", rec.Body.String())
	}

	newBalance, err := l.GetBalance("agent-stream", ledger.MintUSDC)
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if newBalance >= 1_000_000 {
		t.Errorf("balance = %d, want strictly less than 1000000 after streaming call", newBalance)
	}
}

func TestScenario7_AnthropicBetaHeaderPassthrough(t *testing.T) {
	var gotBeta, gotVersion, gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBeta = r.Header.Get("anthropic-beta")
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer upstream.Close()

	s, l := newTestServer(t)
	s.cfg.AnthropicBaseURL = upstream.URL
	s.cfg.AnthropicAPIKey = "server-side-key"

	apiToken, depositCode, err := l.CreateAPIToken()
	if err != nil {
		t.Fatalf("CreateAPIToken() error = %v", err)
	}
	if _, ok, err := l.ActivateToken(depositCode, "agent-beta"); err != nil || !ok {
		t.Fatalf("ActivateToken() = (ok=%v, err=%v)", ok, err)
	}
	if err := l.UpdateBalance("agent-beta", ledger.MintUSDC, 1_000_000, ledger.TxMirrorDeposit, ""); err != nil {
		t.Fatalf("seed deposit error = %v", err)
	}

	body := []byte(`{"model":"claude-sonnet-4-5-20250929","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/proxy/"+apiToken+"/v1/messages", bytes.NewReader(body))
	req.SetPathValue("token", apiToken)
	req.Header.Set("anthropic-beta", "context-management-2025-01-01")
	req.Header.Set("anthropic-version", "2025-01-01")
	rec := httptest.NewRecorder()
	s.handleAnthropicMessages(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if gotBeta != "context-management-2025-01-01" {
		t.Errorf("upstream anthropic-beta = %q, want context-management-2025-01-01", gotBeta)
	}
	if gotVersion != "2025-01-01" {
		t.Errorf("upstream anthropic-version = %q, want client override 2025-01-01", gotVersion)
	}
	if gotKey != "server-side-key" {
		t.Errorf("upstream x-api-key = %q, want server-side-key", gotKey)
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "arena_ready" || resp["agent"] != "Level5" {
		t.Errorf("health response = %+v, want status=arena_ready agent=Level5", resp)
	}
}

func TestHandleRegister(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/register", nil)
	rec := httptest.NewRecorder()
	s.handleRegister(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.APIToken == "" || resp.DepositCode == "" || resp.Status != "pending_deposit" {
		t.Errorf("register response = %+v", resp)
	}
}

func TestHandleAdminStats(t *testing.T) {
	s, l := newTestServer(t)

	if err := l.UpdateBalance("agent-x", ledger.MintUSDC, 1000, ledger.TxMirrorDeposit, ""); err != nil {
		t.Fatalf("seed error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)
	rec := httptest.NewRecorder()
	s.handleAdminStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats ledger.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.TotalDeposits != 1000 {
		t.Errorf("TotalDeposits = %d, want 1000", stats.TotalDeposits)
	}
}
