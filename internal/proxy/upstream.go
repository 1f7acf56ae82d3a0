package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sovereign-arena/level5-proxy/internal/pricing"
)

// usageEnvelope parses both Anthropic and OpenAI non-streaming usage
// shapes; normalization happens in normalize().
type usageEnvelope struct {
	// Anthropic
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	// OpenAI
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (u usageEnvelope) normalize(d dialect) pricing.Usage {
	if d == dialectOpenAI {
		return pricing.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
	}
	return pricing.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}

type nonStreamBody struct {
	Usage usageEnvelope `json:"usage"`
}

func (s *Server) upstreamTarget(d dialect) (baseURL, path string) {
	if d == dialectOpenAI {
		return s.cfg.OpenAIBaseURL, "/v1/chat/completions"
	}
	return s.cfg.AnthropicBaseURL, "/v1/messages"
}

func (s *Server) buildUpstreamRequest(r *http.Request, d dialect, body []byte, streaming bool) (*http.Request, error) {
	baseURL, path := s.upstreamTarget(d)
	if baseURL == "" {
		return nil, fmt.Errorf("no upstream base URL configured for dialect")
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	switch d {
	case dialectOpenAI:
		if s.cfg.OpenAIAPIKey == "" {
			return nil, errMissingUpstreamKey
		}
		req.Header.Set("Authorization", "Bearer "+s.cfg.OpenAIAPIKey)
	case dialectAnthropic:
		if s.cfg.AnthropicAPIKey == "" {
			return nil, errMissingUpstreamKey
		}
		req.Header.Set("x-api-key", s.cfg.AnthropicAPIKey)
		req.Header.Set("anthropic-version", s.cfg.AnthropicVersion)

		for name, values := range r.Header {
			if strings.HasPrefix(strings.ToLower(name), "anthropic-") {
				for _, v := range values {
					req.Header.Set(name, v)
				}
			}
		}
	}

	if streaming {
		req.Header.Set("Accept-Encoding", "identity")
	}

	return req, nil
}

var errMissingUpstreamKey = fmt.Errorf("missing upstream API key")

func (s *Server) dispatchUpstream(w http.ResponseWriter, r *http.Request, pubkey, model string, rawBody []byte, streaming bool, d dialect) {
	req, err := s.buildUpstreamRequest(r, d, rawBody, streaming)
	if err != nil {
		if err == errMissingUpstreamKey {
			writeJSONError(w, http.StatusInternalServerError, "server misconfiguration: missing upstream API key")
			return
		}
		writeJSONError(w, http.StatusBadGateway, "failed to build upstream request")
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("upstream request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if streaming {
		s.relayStream(w, resp, pubkey, model, d)
		return
	}

	s.relayNonStream(w, resp, pubkey, model, d)
}

func (s *Server) relayNonStream(w http.ResponseWriter, resp *http.Response, pubkey, model string, d dialect) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to read upstream response")
		return
	}

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed nonStreamBody
		if err := json.Unmarshal(body, &parsed); err == nil {
			usage := parsed.Usage.normalize(d)
			if err := s.debitForUsage(pubkey, model, usage, usageJSON(usage)); err != nil {
				s.log.Warn("non-stream debit failed after relay", "pubkey", pubkey, "error", err)
			}
		}
	}
}
