// Package wallet broadcasts outbound transfers through monero-wallet-rpc.
// Transfers are irreversible: a failed call does not mean no transaction was
// broadcast, and callers must treat post-send ambiguity accordingly.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	id "veil/pkg/domain"
	dErrors "veil/pkg/domain-errors"
)

const defaultTimeout = 60 * time.Second

// piconero per XMR: wallet-rpc amounts are atomic units.
var atomicUnitsPerCoin = decimal.New(1, 12)

// TransferError wraps any failure of an outbound transfer. The Broadcast
// flag is always unknown-false: the transaction may have reached the network
// before the failure.
type TransferError struct {
	Address string
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer to %s failed: %v", e.Address, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// MoneroClient is a monero-wallet-rpc JSON-RPC 2.0 client.
type MoneroClient struct {
	rpcURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*MoneroClient)

func WithHTTPClient(c *http.Client) Option {
	return func(m *MoneroClient) {
		if c != nil {
			m.httpClient = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *MoneroClient) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func New(rpcURL string, opts ...Option) (*MoneroClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("wallet RPC URL is required")
	}
	m := &MoneroClient{
		rpcURL:     rpcURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Send broadcasts amount (in whole coins) to address and returns the
// transaction hash.
func (m *MoneroClient) Send(ctx context.Context, address string, amount decimal.Decimal) (id.TxHash, error) {
	if address == "" {
		return "", &TransferError{Address: address, Err: dErrors.New(dErrors.CodeInvalidInput, "destination address is required")}
	}
	if amount.Sign() <= 0 {
		return "", &TransferError{Address: address, Err: dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")}
	}

	// wallet-rpc takes integer atomic units; truncation rounds down so we
	// never overspend the computed amount
	atomic := amount.Mul(atomicUnitsPerCoin).Truncate(0)

	params := struct {
		Destinations []struct {
			Amount  int64  `json:"amount"`
			Address string `json:"address"`
		} `json:"destinations"`
		Priority     int  `json:"priority"`
		GetTxKey     bool `json:"get_tx_key"`
		DoNotRelay   bool `json:"do_not_relay"`
		GetTxHex     bool `json:"get_tx_hex"`
	}{
		Destinations: []struct {
			Amount  int64  `json:"amount"`
			Address string `json:"address"`
		}{{Amount: atomic.IntPart(), Address: address}},
		Priority: 1,
		GetTxKey: true,
	}

	var result struct {
		TxHash string `json:"tx_hash"`
	}
	if err := m.call(ctx, "transfer", params, &result); err != nil {
		return "", &TransferError{Address: address, Err: err}
	}
	if result.TxHash == "" {
		return "", &TransferError{Address: address, Err: dErrors.New(dErrors.CodeInternal, "wallet returned no tx hash")}
	}

	m.logger.Info("transfer broadcast", "tx_hash", result.TxHash, "amount", amount.String())
	return id.TxHash(result.TxHash), nil
}

func (m *MoneroClient) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode wallet request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.rpcURL, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build wallet request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "wallet RPC unreachable")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "read wallet response")
	}
	if resp.StatusCode != http.StatusOK {
		return dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("wallet RPC returned %d", resp.StatusCode))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode wallet response")
	}
	if decoded.Error != nil {
		return dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("wallet rejected %s: %s (code %d)", method, decoded.Error.Message, decoded.Error.Code))
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode wallet result")
		}
	}
	return nil
}
