// Package chainb implements ChainBClient: the non-EVM, NEAR-shaped side of
// a swap — JSON-RPC query/call_function reads and broadcast_tx_commit
// writes, with string-decimal amounts and string-nanosecond timelocks.
package chainb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("chainb")

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Name    string          `json:"name"`
	Cause   json.RawMessage `json:"cause"`
	Message string          `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Name, e.Message, e.Cause)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcClient is a minimal JSON-RPC 2.0 transport over HTTP, failing over from
// the primary to a backup endpoint the way a node operator would configure
// a pair of public/private RPC providers.
type rpcClient struct {
	http       *http.Client
	primaryURL string
	backupURL  string
	requestSeq int
}

func newRPCClient(primaryURL, backupURL string) *rpcClient {
	return &rpcClient{
		http:       &http.Client{Timeout: 15 * time.Second},
		primaryURL: primaryURL,
		backupURL:  backupURL,
	}
}

func (c *rpcClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	c.requestSeq++
	req := rpcRequest{JSONRPC: "2.0", ID: fmt.Sprintf("swaporch-%d", c.requestSeq), Method: method, Params: params}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshal rpc request: %v", errkind.ErrInternal, err)
	}

	resp, err := c.post(ctx, c.primaryURL, body)
	if err != nil && c.backupURL != "" {
		log.Warn("primary chain B RPC failed, trying backup", "method", method, "err", err)
		resp, err = c.post(ctx, c.backupURL, body)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrRPCFailure, method, err)
	}

	if resp.Error != nil {
		return fmt.Errorf("%w: %s: %v", errkind.ErrChainRejection, method, resp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%w: decode %s result: %v", errkind.ErrInternal, method, err)
		}
	}
	return nil
}

func (c *rpcClient) post(ctx context.Context, url string, body []byte) (*rpcResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
