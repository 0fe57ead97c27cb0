package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flashscan/types"
)

const (
	contentTypeJSON  = "application/json"
	flashbotsXHeader = "X-Flashbots-Signature"
	methodSendBundle = "eth_sendBundle"
	methodCallBundle = "eth_callBundle"
)

// ChainReader is the subset of ethclient.Client needed to sign a bundle
// transaction
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Config fixes the relay endpoint and request policy
type Config struct {
	RelayURL string
	Timeout  time.Duration
	// SimulateOnly sends eth_callBundle instead of eth_sendBundle
	SimulateOnly bool
	// RequestsPerSecond <= 0 disables rate limiting
	RequestsPerSecond float64
	BurstSize         int
	WaitTimeout       time.Duration
}

// RPCError is the structured error field of a relay response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

func (e *RPCError) Unwrap() error {
	return types.ErrRelayRejected
}

// Client signs bundle transactions and submits them to a Flashbots relay
type Client struct {
	cfg        Config
	httpClient *http.Client
	chain      ChainReader
	authSigner *ecdsa.PrivateKey
	txSigner   *ecdsa.PrivateKey
	limiter    *rate.Limiter
	logger     *zap.Logger
	nextID     atomic.Uint64
}

// NewClient creates a new Flashbots client. authKey signs the relay request
// header, txKey signs the bundle transaction.
func NewClient(cfg Config, chain ChainReader, authKey, txKey *ecdsa.PrivateKey, logger *zap.Logger) (*Client, error) {
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("relay url is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	if authKey == nil {
		return nil, fmt.Errorf("%w: relay auth key is required", types.ErrSigningFailed)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		chain:      chain,
		authSigner: authKey,
		txSigner:   txKey,
		logger:     logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// SignerAddress returns the address bundle transactions are sent from
func (c *Client) SignerAddress() common.Address {
	if c.txSigner == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.txSigner.PublicKey)
}

// Submit signs desc and sends it to the relay in exactly one request. Failures
// are reported in the result, never returned.
func (c *Client) Submit(ctx context.Context, desc *types.BundleDescriptor) *types.SubmissionResult {
	if desc == nil {
		return errorResult(fmt.Errorf("bundle descriptor is required"))
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return errorResult(err)
	}

	tx, err := c.signTransaction(ctx, desc)
	if err != nil {
		return errorResult(err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return errorResult(fmt.Errorf("%w: failed to encode transaction: %v", types.ErrSigningFailed, err))
	}

	latest, err := c.chain.BlockNumber(ctx)
	if err != nil {
		return errorResult(fmt.Errorf("failed to get block number: %w", err))
	}
	targetBlock := latest + 1

	method := methodSendBundle
	if c.cfg.SimulateOnly {
		method = methodCallBundle
	}

	params := map[string]interface{}{
		"txs":         []string{hexutil.Encode(raw)},
		"blockNumber": hexutil.EncodeUint64(targetBlock),
	}
	if c.cfg.SimulateOnly {
		params["stateBlockNumber"] = "latest"
	}

	result := &types.SubmissionResult{TxHash: tx.Hash()}
	resp, err := c.call(ctx, method, params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			result.Status = types.SubmissionRejected
		} else {
			result.Status = types.SubmissionError
		}
		result.Err = err
		c.logger.Warn("Bundle submission failed",
			zap.String("method", method),
			zap.Uint64("targetBlock", targetBlock),
			zap.String("tx", tx.Hash().Hex()),
			zap.Error(err))
		return result
	}

	var ack struct {
		BundleHash string `json:"bundleHash"`
	}
	if len(resp) > 0 && string(resp) != "null" {
		if err := json.Unmarshal(resp, &ack); err != nil {
			c.logger.Debug("Unrecognized relay result", zap.ByteString("result", resp))
		}
	}

	result.Status = types.SubmissionAccepted
	result.BundleHash = ack.BundleHash
	c.logger.Info("Bundle submitted",
		zap.String("method", method),
		zap.Uint64("targetBlock", targetBlock),
		zap.String("tx", tx.Hash().Hex()),
		zap.String("bundleHash", ack.BundleHash))
	return result
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.cfg.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WaitTimeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("relay rate limit: %w", err)
	}
	return nil
}

// signTransaction builds the dynamic-fee transaction for desc using the chain
// id reported by the node
func (c *Client) signTransaction(ctx context.Context, desc *types.BundleDescriptor) (*ethtypes.Transaction, error) {
	if c.txSigner == nil {
		return nil, fmt.Errorf("%w: transaction key is not configured", types.ErrSigningFailed)
	}

	chainID, err := c.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if desc.ChainID != nil && desc.ChainID.Cmp(chainID) != 0 {
		return nil, fmt.Errorf("%w: bundle built for chain %s, node reports %s", types.ErrSigningFailed, desc.ChainID, chainID)
	}

	nonce, err := c.chain.PendingNonceAt(ctx, c.SignerAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	to := desc.Recipient
	txData := &ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: desc.Fee.MaxPriorityFeePerGas,
		GasFeeCap: desc.Fee.MaxFeePerGas,
		Gas:       desc.GasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      desc.Payload,
	}

	tx, err := ethtypes.SignNewTx(c.txSigner, ethtypes.LatestSignerForChainID(chainID), txData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSigningFailed, err)
	}
	return tx, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one signed JSON-RPC request against the relay
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RelayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	header, err := c.authHeader(payload)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out rpcResponse
	if err := json.Unmarshal(body, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("flashbots request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flashbots request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return out.Result, nil
}

// authHeader signs keccak(payload) as an EIP-191 message: "address:signature"
func (c *Client) authHeader(payload []byte) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authSigner,
	)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign request: %v", types.ErrSigningFailed, err)
	}

	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authSigner.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

func errorResult(err error) *types.SubmissionResult {
	return &types.SubmissionResult{Status: types.SubmissionError, Err: err}
}
