package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	contentTypeJSON          = "application/json"
	flashbotsXHeader         = "X-Flashbots-Signature"
	methodSendPrivateTx      = "eth_sendPrivateTransaction"
	methodCancelPrivateTx    = "eth_cancelPrivateTransaction"
	defaultMaxBlocksInFuture = 25
)

// Client submits liquidation transactions to a Flashbots relay so they
// skip the public mempool
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	logger     *zap.Logger

	// BlockNumber, when set, bounds inclusion to MaxBlocks ahead of it
	BlockNumber func(ctx context.Context) (uint64, error)
	MaxBlocks   uint64
}

// NewClient creates a relay client. authKey only signs requests; it never
// holds funds.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 3,
		},
		relayURL:   relayURL,
		authSigner: authKey,
		logger:     logger,
		MaxBlocks:  defaultMaxBlocksInFuture,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type privateTxParams struct {
	Tx             string `json:"tx"`
	MaxBlockNumber string `json:"maxBlockNumber,omitempty"`
}

// SendTransaction submits a signed transaction with eth_sendPrivateTransaction
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	params := privateTxParams{Tx: hexutil.Encode(raw)}
	if c.BlockNumber != nil {
		current, err := c.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		params.MaxBlockNumber = hexutil.EncodeUint64(current + c.MaxBlocks)
	}

	var hash common.Hash
	if err := c.call(ctx, methodSendPrivateTx, []interface{}{params}, &hash); err != nil {
		return err
	}

	c.logger.Info("Private transaction submitted",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("relay_hash", hash.Hex()),
		zap.String("max_block", params.MaxBlockNumber))
	return nil
}

// CancelTransaction asks the relay to stop forwarding a private transaction
func (c *Client) CancelTransaction(ctx context.Context, txHash common.Hash) (bool, error) {
	var cancelled bool
	params := map[string]string{"txHash": txHash.Hex()}
	if err := c.call(ctx, methodCancelPrivateTx, []interface{}{params}, &cancelled); err != nil {
		return false, err
	}
	return cancelled, nil
}

// signature returns the relay authentication header for payload
func (c *Client) signature(payload []byte) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authSigner,
	)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authSigner.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	header, err := c.signature(payload)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flashbots request failed: %s", string(body))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: %w", method, decoded.Error)
	}
	if result == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
