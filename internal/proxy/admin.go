package proxy

import (
	"net/http"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
)

// registerResponse is the body returned by POST /v1/register.
type registerResponse struct {
	APIToken     string `json:"api_token"`
	DepositCode  string `json:"deposit_code"`
	BaseURL      string `json:"base_url"`
	Status       string `json:"status"`
	Instructions string `json:"instructions"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	apiToken, depositCode, err := s.ledger.CreateAPIToken()
	if err != nil {
		s.log.Error("handleRegister: create api token failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		APIToken:    apiToken,
		DepositCode: depositCode,
		BaseURL:     s.baseURL(r),
		Status:      "pending_deposit",
		Instructions: "Send SOL or USDC to the deposit address derived from deposit_code " +
			depositCode + " on the configured program. Your API token activates on first deposit.",
	})
}

func (s *Server) baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// pricingResponse is the body returned by GET /v1/pricing.
type pricingResponse struct {
	Models  map[string]pricingEntry `json:"models"`
	Default pricingEntry            `json:"default"`
	Mints   map[string]mintMeta     `json:"mints"`
}

type pricingEntry struct {
	InputMicroUSDCPer1K  int64 `json:"input_micro_usdc_per_1k"`
	OutputMicroUSDCPer1K int64 `json:"output_micro_usdc_per_1k"`
}

type mintMeta struct {
	Symbol   string  `json:"symbol"`
	Decimals uint8   `json:"decimals"`
	USDRate  float64 `json:"usd_rate"`
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	models := make(map[string]pricingEntry)
	for model, rate := range s.pricing.Entries() {
		models[model] = pricingEntry{
			InputMicroUSDCPer1K:  rate.InputMicroUSDCPer1K,
			OutputMicroUSDCPer1K: rate.OutputMicroUSDCPer1K,
		}
	}
	def := s.pricing.DefaultRate()

	mints := make(map[string]mintMeta)
	for _, mint := range []ledger.Mint{ledger.MintUSDC, ledger.MintSOL} {
		tc, err := s.ledger.GetTokenConfig(mint)
		if err != nil {
			s.log.Warn("handlePricing: get token config failed", "mint", mint, "error", err)
			continue
		}
		mints[string(mint)] = mintMeta{Symbol: tc.Symbol, Decimals: tc.Decimals, USDRate: tc.USDRate}
	}

	writeJSON(w, http.StatusOK, pricingResponse{
		Models: models,
		Default: pricingEntry{
			InputMicroUSDCPer1K:  def.InputMicroUSDCPer1K,
			OutputMicroUSDCPer1K: def.OutputMicroUSDCPer1K,
		},
		Mints: mints,
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.GetStats()
	if err != nil {
		s.log.Error("handleAdminStats: get stats failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "arena_ready",
		"agent":  "Level5",
	})
}
