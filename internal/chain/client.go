// Package chain queries the Solana blockchain for activity on deposit
// addresses. It is read-only: nothing here ever signs or submits anything.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is one transaction touching a deposit address, oldest first in
// listings. Amount is the inbound SOL delta; zero for outbound or no-op
// transactions, which still appear so the caller can move its watermark past
// them.
type Transfer struct {
	Signature string          // Transaction signature, the system-wide idempotency key
	Amount    decimal.Decimal // SOL received by the address, zero if none
	Final     bool            // Whether the transaction reached the required commitment
}

// Client is the blockchain query collaborator.
type Client interface {
	// ListTransactions returns transactions for an address newer than
	// sinceSig (exclusive), oldest first. sinceSig may be empty on the
	// first scan.
	ListTransactions(ctx context.Context, address, sinceSig string) ([]Transfer, error)
	// Balance returns the current SOL balance of an address.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}

// signatureBatch caps how much history one poll cycle pulls per address.
const signatureBatch = 20

// RPCClient talks JSON-RPC to a Solana node.
type RPCClient struct {
	url        string
	commitment string // Commitment a deposit must reach to count as final
	http       *http.Client
}

// NewRPCClient creates a client for the given RPC endpoint. commitment is
// "confirmed" or "finalized".
func NewRPCClient(url, commitment string) *RPCClient {
	return &RPCClient{
		url:        url,
		commitment: commitment,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcRequest struct {
	Jsonrpc string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type signatureInfo struct {
	Signature          string          `json:"signature"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

type transactionResult struct {
	Meta *struct {
		Err          json.RawMessage `json:"err"`
		PreBalances  []uint64        `json:"preBalances"`
		PostBalances []uint64        `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

// call performs one JSON-RPC round trip and unmarshals the result into out.
func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{Jsonrpc: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain: rpc %s returned status %d", method, resp.StatusCode)
	}
	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("chain: rpc %s failed: %d %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if out == nil || envelope.Result == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// ListTransactions lists transactions touching an address since the given
// signature, oldest first.
func (c *RPCClient) ListTransactions(ctx context.Context, address, sinceSig string) ([]Transfer, error) {
	opts := map[string]any{"limit": signatureBatch, "commitment": "confirmed"}
	if sinceSig != "" {
		opts["until"] = sinceSig
	}
	var sigs []signatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", []any{address, opts}, &sigs); err != nil {
		return nil, err
	}
	// The node returns newest first; walk backwards so callers process in
	// chain order.
	transfers := make([]Transfer, 0, len(sigs))
	for i := len(sigs) - 1; i >= 0; i-- {
		info := sigs[i]
		if len(info.Err) > 0 && string(info.Err) != "null" {
			continue // Transaction itself failed on-chain, nothing to credit
		}
		final := commitmentRank(info.ConfirmationStatus) >= commitmentRank(c.commitment)
		if !final {
			// Not settled yet; amount is not worth fetching, the caller
			// will see it again next cycle.
			transfers = append(transfers, Transfer{Signature: info.Signature})
			continue
		}
		amount, err := c.inboundAmount(ctx, info.Signature, address)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, Transfer{Signature: info.Signature, Amount: amount, Final: true})
	}
	return transfers, nil
}

// inboundAmount fetches a transaction and computes how much SOL the address
// received in it.
func (c *RPCClient) inboundAmount(ctx context.Context, signature, address string) (decimal.Decimal, error) {
	params := []any{signature, map[string]any{
		"encoding":                       "json",
		"commitment":                     c.commitment,
		"maxSupportedTransactionVersion": 0,
	}}
	var tx transactionResult
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return decimal.Zero, err
	}
	if tx.Meta == nil {
		return decimal.Zero, nil
	}
	for i, key := range tx.Transaction.Message.AccountKeys {
		if key != address || i >= len(tx.Meta.PreBalances) || i >= len(tx.Meta.PostBalances) {
			continue
		}
		lamports := int64(tx.Meta.PostBalances[i]) - int64(tx.Meta.PreBalances[i])
		if lamports <= 0 {
			return decimal.Zero, nil
		}
		// 1 SOL = 1e9 lamports
		return decimal.New(lamports, -9), nil
	}
	return decimal.Zero, nil
}

// Balance returns the current balance of an address.
func (c *RPCClient) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	var res balanceResult
	if err := c.call(ctx, "getBalance", []any{address, map[string]any{"commitment": c.commitment}}, &res); err != nil {
		return decimal.Zero, err
	}
	return decimal.New(int64(res.Value), -9), nil
}

// commitmentRank orders Solana commitment levels.
func commitmentRank(level string) int {
	switch level {
	case "finalized":
		return 2
	case "confirmed":
		return 1
	default:
		return 0
	}
}
