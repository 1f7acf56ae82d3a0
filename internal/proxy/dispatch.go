package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sovereign-arena/level5-proxy/internal/pricing"
)

// dialect identifies which upstream wire format a route speaks.
type dialect int

const (
	dialectOpenAI dialect = iota
	dialectAnthropic
)

// requestEnvelope is the subset of the client body dispatch needs to read;
// unknown fields are ignored and left in rawBody for verbatim forwarding.
type requestEnvelope struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

func (s *Server) handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	s.handleProxyRequest(w, r, dialectOpenAI)
}

func (s *Server) handleAnthropicMessages(w http.ResponseWriter, r *http.Request) {
	s.handleProxyRequest(w, r, dialectAnthropic)
}

func (s *Server) handleProxyRequest(w http.ResponseWriter, r *http.Request, d dialect) {
	pubkey, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if !s.admit(w, pubkey) {
		return
	}

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var env requestEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		// Malformed JSON still dispatches; model defaults apply and the
		// mock/real paths below treat it as non-streaming.
		env.Model = ""
	}
	model := env.Model
	if model == "" {
		model = "unknown"
	}

	isMock := strings.EqualFold(r.Header.Get("X-MOCK-UPSTREAM"), "true")

	if isMock {
		s.dispatchMock(w, pubkey, model, env.Stream, d)
		return
	}

	s.dispatchUpstream(w, r, pubkey, model, rawBody, env.Stream, d)
}

// debitForUsage computes cost from usage under model and applies the
// USDC-first/SOL-fallback debit policy, returning
// pricing.ErrInsufficientFunds if funds fall short. It writes nothing to the
// client: the mock path turns the error into a 402, while the upstream paths
// have already relayed the body and only log it.
func (s *Server) debitForUsage(pubkey, model string, usage pricing.Usage, usageJSON string) error {
	cost := s.pricing.CostUSDC(usage, model)
	_, err := pricing.DebitAgent(s.ledger, pubkey, cost, usageJSON)
	return err
}

func usageJSON(usage pricing.Usage) string {
	b, err := json.Marshal(map[string]int64{
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
	})
	if err != nil {
		return fmt.Sprintf(`{"input_tokens":%d,"output_tokens":%d}`, usage.InputTokens, usage.OutputTokens)
	}
	return string(b)
}
