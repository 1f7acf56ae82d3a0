// Package rpcclient is a minimal JSON-RPC 2.0 client for the Solana RPC
// methods the liquid mirror needs, plus a WebSocket leg for account
// subscriptions.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Client is a JSON-RPC 2.0 HTTP client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	requestID  atomic.Uint64
}

// New constructs a Client against rpcURL using timeout as the default
// per-request budget. Individual calls may override it via ctx.
func New(rpcURL string, timeout time.Duration) *Client {
	return &Client{
		rpcURL: rpcURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := c.requestID.Add(1)

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      uint64          `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse rpc response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", response.Error.Code, response.Error.Message)
	}

	return response.Result, nil
}

// ProgramAccount is one entry of a getProgramAccounts result.
type ProgramAccount struct {
	Pubkey  string
	Data    []byte
	Lamports uint64
}

// GetProgramAccounts fetches every account owned by programID, base64
// encoded at confirmed commitment. Per spec timeout budget, callers should
// scope ctx to 30s.
func (c *Client) GetProgramAccounts(ctx context.Context, programID string) ([]ProgramAccount, error) {
	params := []interface{}{
		programID,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}

	raw, err := c.call(ctx, "getProgramAccounts", params)
	if err != nil {
		return nil, fmt.Errorf("getProgramAccounts: %w", err)
	}

	var entries []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data     [2]string `json:"data"`
			Lamports uint64    `json:"lamports"`
		} `json:"account"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse getProgramAccounts result: %w", err)
	}

	accounts := make([]ProgramAccount, 0, len(entries))
	for _, e := range entries {
		data, err := decodeBase64Data(e.Account.Data)
		if err != nil {
			continue
		}
		accounts = append(accounts, ProgramAccount{
			Pubkey:   e.Pubkey,
			Data:     data,
			Lamports: e.Account.Lamports,
		})
	}
	return accounts, nil
}

// GetAccountInfo fetches a single account's data. Per spec timeout budget,
// callers should scope ctx to 10s. Returns (nil, nil) if the account does
// not exist.
func (c *Client) GetAccountInfo(ctx context.Context, address string) ([]byte, error) {
	params := []interface{}{
		address,
		map[string]interface{}{
			"encoding":   "base64",
			"commitment": "confirmed",
		},
	}

	raw, err := c.call(ctx, "getAccountInfo", params)
	if err != nil {
		return nil, fmt.Errorf("getAccountInfo: %w", err)
	}

	var result struct {
		Value *struct {
			Data [2]string `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse getAccountInfo result: %w", err)
	}
	if result.Value == nil {
		return nil, nil
	}

	return decodeBase64Data(result.Value.Data)
}
