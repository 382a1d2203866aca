package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"lottochain/crypto"
)

// Client is a thin JSON-RPC client for the lotto server.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	nextID     atomic.Int64
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// NewClient constructs a client targeting cfg.URL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        strings.TrimSpace(cfg.URL),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Call invokes method with positional params and decodes the result into out.
// Server-side failures are returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return errors.New("rpc: client not configured")
	}
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("rpc: decode response (status %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rpc: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("rpc: empty result")
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// Submit signs instruction with key and sends it as a signed request.
func (c *Client) Submit(ctx context.Context, key *crypto.PrivateKey, method string, instruction interface{}, out interface{}) error {
	params, err := SignInstruction(key, method, instruction)
	if err != nil {
		return err
	}
	return c.Call(ctx, method, []interface{}{params}, out)
}

// SignInstruction serialises instruction and wraps it in a signed envelope.
func SignInstruction(key *crypto.PrivateKey, method string, instruction interface{}) (SignedParams, error) {
	if key == nil {
		return SignedParams{}, errors.New("rpc: signing key required")
	}
	payload, err := json.Marshal(instruction)
	if err != nil {
		return SignedParams{}, fmt.Errorf("rpc: encode instruction: %w", err)
	}
	sig, err := crypto.SignRequest(key, method, payload)
	if err != nil {
		return SignedParams{}, err
	}
	return SignedParams{
		Signer:    key.PubKey().String(),
		Signature: sig.String(),
		Payload:   string(payload),
	}, nil
}
