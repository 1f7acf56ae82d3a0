package proxy

import (
	"fmt"
	"net/http"

	"github.com/sovereign-arena/level5-proxy/internal/pricing"
)

// mockUsage is the canned usage figure for every mock call, per spec.
var mockUsage = pricing.Usage{InputTokens: 15, OutputTokens: 25}

const mockAnthropicSSE = `event: message_start
data: {"type":"message_start","message":{"id":"msg_mock","model":"%s","usage":{"input_tokens":15,"output_tokens":0}}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"mock response"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":25}}

`

const mockOpenAISSE = `data: {"id":"chatcmpl-mock","object":"chat.completion.chunk","model":"%s","choices":[{"delta":{"content":"mock response"},"index":0}]}

data: [DONE]

`

// dispatchMock serves the canned testing path: usage is fixed ({15, 25})
// so the debit happens before any response bytes are written, letting a
// failed debit surface as a 402 rather than a completed-looking response.
func (s *Server) dispatchMock(w http.ResponseWriter, pubkey, model string, streaming bool, d dialect) {
	usage := mockUsage

	if err := s.debitForUsage(pubkey, model, usage, usageJSON(usage)); err != nil {
		writeJSONError(w, http.StatusPaymentRequired, "Insufficient Deposit Balance")
		return
	}

	if streaming {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		var body string
		switch d {
		case dialectAnthropic:
			body = fmt.Sprintf(mockAnthropicSSE, model)
		default:
			body = fmt.Sprintf(mockOpenAISSE, model)
		}
		w.Write([]byte(body))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		return
	}

	var body map[string]interface{}
	switch d {
	case dialectAnthropic:
		body = map[string]interface{}{
			"id":    "msg_mock",
			"model": model,
			"content": []map[string]string{
				{"type": "text", "text": "mock response"},
			},
			"usage": map[string]int64{"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens},
		}
	default:
		body = map[string]interface{}{
			"id":    "chatcmpl-mock",
			"model": model,
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "mock response"}},
			},
			"usage": map[string]int64{"prompt_tokens": usage.InputTokens, "completion_tokens": usage.OutputTokens},
		}
	}
	writeJSON(w, http.StatusOK, body)
}
