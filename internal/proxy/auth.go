package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
	"github.com/sovereign-arena/level5-proxy/pkg/helpers"
)

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// authenticate resolves the URL-embedded api_token to a pubkey. The token
// itself is the capability; there is no signature to verify.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (pubkey string, ok bool) {
	token := r.PathValue("token")

	pubkey, found, err := s.ledger.GetPubkeyFromToken(token)
	if err != nil {
		s.log.Error("authenticate: ledger lookup failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return "", false
	}
	if !found {
		writeJSONError(w, http.StatusUnauthorized, "Invalid or inactive API token")
		return "", false
	}
	return pubkey, true
}

// admit sums all balances for pubkey and rejects if the agent has no funds
// at all in any mint.
func (s *Server) admit(w http.ResponseWriter, pubkey string) bool {
	balances, err := s.ledger.GetAllBalances(pubkey)
	if err != nil {
		s.log.Error("admit: get balances failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return false
	}

	var total int64
	for _, b := range balances {
		total += b
	}
	if total <= 0 {
		writeJSONError(w, http.StatusPaymentRequired, "Insufficient Deposit Balance")
		return false
	}
	return true
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	pubkey, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	balances, err := s.ledger.GetAllBalances(pubkey)
	if err != nil {
		s.log.Error("handleBalance: get balances failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	out := make(map[string]int64, len(balances))
	for mint, bal := range balances {
		out[string(mint)] = bal
	}
	// Ensure both well-known mints are present even at zero, so clients
	// don't need to special-case an absent key.
	if _, ok := out[string(ledger.MintUSDC)]; !ok {
		out[string(ledger.MintUSDC)] = 0
	}
	if _, ok := out[string(ledger.MintSOL)]; !ok {
		out[string(ledger.MintSOL)] = 0
	}

	display := make(map[string]string, len(out))
	for mintStr, bal := range out {
		tc, err := s.ledger.GetTokenConfig(ledger.Mint(mintStr))
		if err != nil {
			continue
		}
		display[mintStr] = helpers.FormatAmount(bal, tc.Decimals)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pubkey":   pubkey,
		"balances": out,
		"display":  display,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
