package chainb

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// viewCall issues a read-only query/call_function, decoding the
// base64-wrapped JSON result into out.
func (c *Client) viewCall(ctx context.Context, method string, args map[string]interface{}, out interface{}) error {
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: marshal view call args: %v", errkind.ErrInternal, err)
	}

	params := map[string]interface{}{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   c.contract,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(encodedArgs),
	}

	var result struct {
		Result []byte `json:"result"`
	}
	if err := c.rpc.call(ctx, "query", params, &result); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("%w: decode %s result: %v", errkind.ErrInternal, method, err)
		}
	}
	return nil
}

// signAndBroadcast signs a call_function action against the HTLC contract
// and submits it via broadcast_tx_commit, waiting for inclusion.
//
// The signed-transaction encoding here is a simplified stand-in for NEAR's
// borsh wire format: it signs the SHA-256 digest of the method name, JSON
// args, and deposit rather than a full borsh-serialized Transaction. A
// production signer would borsh-encode the Transaction struct verbatim;
// that encoder has no analog in the example pack and is out of scope here.
func (c *Client) signAndBroadcast(ctx context.Context, method string, args map[string]interface{}, deposit string) (string, error) {
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: marshal tx args: %v", errkind.ErrInternal, err)
	}

	digest := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s", c.accountID, c.contract, method, encodedArgs, deposit)))
	sig, err := c.signer.sign(digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: sign transaction: %v", errkind.ErrInternal, err)
	}

	params := map[string]interface{}{
		"signed_tx_base64": base64.StdEncoding.EncodeToString(append(digest[:], sig[:]...)),
	}

	var result struct {
		Transaction struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
		Status struct {
			SuccessValue *string `json:"SuccessValue"`
			Failure      json.RawMessage `json:"Failure"`
		} `json:"status"`
	}
	if err := c.rpc.call(ctx, "broadcast_tx_commit", params, &result); err != nil {
		return "", err
	}
	if result.Status.Failure != nil {
		return "", fmt.Errorf("%w: %s: %s", errkind.ErrChainRejection, method, result.Status.Failure)
	}

	log.Info("chain B transaction broadcast", "method", method, "tx", result.Transaction.Hash)
	return result.Transaction.Hash, nil
}
