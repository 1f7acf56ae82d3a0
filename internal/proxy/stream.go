package proxy

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sovereign-arena/level5-proxy/internal/pricing"
)

// ssePayload covers both dialects' usage-bearing event shapes. Anthropic
// nests input token usage inside message_start.message.usage and output
// token usage inside message_delta.usage; OpenAI carries prompt/completion
// tokens directly on a top-level usage field of whichever chunk includes
// it (normally the last one, when the client requested usage reporting).
type ssePayload struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens int64 `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens     int64 `json:"output_tokens"`
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// accumulateUsage folds one SSE data-line payload into the running usage
// total for the dialect in play. Malformed JSON is ignored — it is not this
// observer's job to fail a stream it is only watching, not decoding for the
// client.
func accumulateUsage(usage *pricing.Usage, raw string, d dialect) {
	var p ssePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return
	}

	if d == dialectAnthropic {
		switch p.Type {
		case "message_start":
			usage.InputTokens += p.Message.Usage.InputTokens
		case "message_delta":
			usage.OutputTokens += p.Usage.OutputTokens
		}
		return
	}

	if p.Usage.PromptTokens != 0 || p.Usage.CompletionTokens != 0 {
		usage.InputTokens = p.Usage.PromptTokens
		usage.OutputTokens = p.Usage.CompletionTokens
	}
}

// relayStream pipes the upstream SSE body through to the client verbatim,
// line by line, while a non-destructive observer over the same lines
// accumulates usage. Debit happens once, after the upstream stream closes,
// per the ordering contract of spec §5 — never per-chunk, and never
// retroactively failing bytes already sent to the client.
func (s *Server) relayStream(w http.ResponseWriter, resp *http.Response, pubkey, model string, d dialect) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)

	var usage pricing.Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		w.Write([]byte(line))
		w.Write([]byte("\n"))
		if canFlush {
			flusher.Flush()
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}
		accumulateUsage(&usage, payload, d)
	}

	if err := scanner.Err(); err != nil {
		// Client disconnect or upstream connection drop mid-stream: usage
		// collected so far is discarded and no debit occurs, per spec.
		s.log.Debug("stream interrupted before completion, discarding usage", "pubkey", pubkey, "error", err)
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	if err := s.debitForUsage(pubkey, model, usage, usageJSON(usage)); err != nil {
		s.log.Warn("stream debit failed after relay", "pubkey", pubkey, "model", model, "error", err)
	}
}
