package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/condwatch/indexer/internal/coretypes"
)

// jsonrpcRequest/jsonrpcResponse are the standard JSON-RPC 2.0 envelope,
// sent over a plain HTTP POST for the unary endpoint (the pubsub half
// lives in pubsub.go over the wss endpoint).
type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpcError   `json:"error"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string {
	return fmt.Sprintf("chain: rpc error %d: %s", e.Code, e.Message)
}

// Client is the unary half of the chain client: a JSON-RPC-over-HTTP
// wrapper exposing only the methods the indexer needs.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   uint64
}

// NewClient builds a client for the unary endpoint. No connection is established until
// the first call; http.Client pools its own transport.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint, http: http.DefaultClient}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := atomic.AddUint64(&c.nextID, 1)
	body, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("chain: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chain: transport: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("chain: read response: %w", err)
	}
	var rpcResp jsonrpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("chain: unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out != nil {
		return json.Unmarshal(rpcResp.Result, out)
	}
	return nil
}

// GetTokenAccount fetches and unpacks an SPL-token account, reporting
// found=false if the account does not exist on chain.
func (c *Client) GetTokenAccount(ctx context.Context, account coretypes.Pubkey) (TokenAccountInfo, bool, error) {
	var resp struct {
		Context ContextSlot `json:"context"`
		Value   *struct {
			Data parsedTokenAccountInfo `json:"data"`
		} `json:"value"`
	}
	cfg := map[string]interface{}{
		"encoding":   string(EncodingJSONParsed),
		"commitment": string(CommitmentConfirmed),
	}
	if err := c.call(ctx, "getAccountInfo", []interface{}{account.String(), cfg}, &resp); err != nil {
		return TokenAccountInfo{}, false, err
	}
	if resp.Value == nil {
		return TokenAccountInfo{}, false, nil
	}
	info := resp.Value.Data.Parsed.Info
	return TokenAccountInfo{
		Mint:   info.Mint,
		Owner:  info.Owner,
		Amount: info.TokenAmount.Amount,
		Slot:   resp.Context.Slot,
	}, true, nil
}

// RecentSignatures returns getSignaturesForAddress results in
// reverse-chronological order, filtered of errored entries.
func (c *Client) RecentSignatures(ctx context.Context, account coretypes.Pubkey, limit int) ([]SignatureInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	var raw []SignatureInfo
	cfg := map[string]interface{}{
		"limit":      limit,
		"commitment": string(CommitmentConfirmed),
	}
	if err := c.call(ctx, "getSignaturesForAddress", []interface{}{account.String(), cfg}, &raw); err != nil {
		return nil, err
	}
	out := raw[:0]
	for _, s := range raw {
		if s.Err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
