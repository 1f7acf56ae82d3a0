// Package proxy implements the metered reverse proxy: URL-token auth,
// balance admission, upstream dispatch (mock and real), usage extraction
// from synchronous and streamed responses, and debit via pricing.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sovereign-arena/level5-proxy/internal/ledger"
	"github.com/sovereign-arena/level5-proxy/internal/pricing"
	"github.com/sovereign-arena/level5-proxy/pkg/logging"
)

// Config holds the upstream credentials and base URLs the proxy dispatches
// to, plus the local listen address.
type Config struct {
	ListenAddr        string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	AnthropicVersion  string
}

const (
	upstreamConnectTimeout = 10 * time.Second
	upstreamReadTimeout    = 300 * time.Second
	upstreamWriteTimeout   = 10 * time.Second
)

// Server is the HTTP surface of the metering proxy.
type Server struct {
	cfg     Config
	ledger  *ledger.Ledger
	pricing *pricing.Table
	client  *http.Client
	log     *logging.Logger

	listener net.Listener
	server   *http.Server
}

// New constructs a Server. Call Start to begin serving.
func New(cfg Config, l *ledger.Ledger, table *pricing.Table) *Server {
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = "2023-06-01"
	}

	return &Server{
		cfg:     cfg,
		ledger:  l,
		pricing: table,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: upstreamConnectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: upstreamReadTimeout,
			},
		},
		log: logging.GetDefault().Component("proxy"),
	}
}

// Start binds the listen address and begins serving in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("POST /proxy/{token}/v1/chat/completions", s.handleOpenAIChat)
	mux.HandleFunc("POST /proxy/{token}/v1/messages", s.handleAnthropicMessages)
	mux.HandleFunc("GET /proxy/{token}/balance", s.handleBalance)

	mux.HandleFunc("POST /v1/register", s.handleRegister)
	mux.HandleFunc("GET /v1/pricing", s.handlePricing)
	mux.HandleFunc("GET /v1/admin/stats", s.handleAdminStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("OPTIONS /", s.handleCORSPreflight)

	s.server = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  upstreamReadTimeout,
		WriteTimeout: 0, // streaming responses hold the connection open past WriteTimeout
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("proxy server error", "error", err)
		}
	}()

	s.log.Info("proxy server started", "addr", s.cfg.ListenAddr)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleCORSPreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware mirrors teacher precedent: permissive CORS for clients
// calling from arbitrary origins (agent tooling, browser-based dashboards).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, anthropic-version, anthropic-beta")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
