// Package grpcclient provides a pooled gRPC client for keeper-bot chain
// submission.
package grpcclient

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	credittypes "github.com/openalpha/credit-engine/x/credit/types"
	perpstypes "github.com/openalpha/credit-engine/x/perps/types"
)

// Config holds gRPC client configuration
type Config struct {
	GRPCAddr      string
	ChainID       string
	AccountNumber uint64
	GasLimit      uint64
	GasDenom      string
	PoolSize      int           // Connection pool size
	Timeout       time.Duration // Request timeout
	RetryAttempts int           // Retry attempts on failure
	BatchSize     int           // Max messages per batch
}

// DefaultConfig returns defaults tuned for a local devnet
func DefaultConfig() *Config {
	return &Config{
		GRPCAddr:      "localhost:9090",
		ChainID:       "creditengine-1",
		AccountNumber: 0,
		GasLimit:      300000,
		GasDenom:      "uusdc",
		PoolSize:      10,
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		BatchSize:     50,
	}
}

// Client is a gRPC client with connection pooling and in-memory signing
type Client struct {
	config    *Config
	pool      []*grpc.ClientConn
	poolIndex uint64

	// Cached signer info
	privKey  cryptotypes.PrivKey
	pubKey   cryptotypes.PubKey
	address  sdk.AccAddress
	sequence uint64
	seqMu    sync.Mutex

	// Metrics
	txCount      uint64
	successCount uint64
	failCount    uint64
	totalLatency int64

	// TX encoder
	txConfig client.TxConfig
}

// NewClient creates a new gRPC client
func NewClient(config *Config, privKeyHex string) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Decode private key
	privKeyBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	privKey := &secp256k1.PrivKey{Key: privKeyBytes}
	pubKey := privKey.PubKey()
	address := sdk.AccAddress(pubKey.Address())

	c := &Client{
		config:  config,
		pool:    make([]*grpc.ClientConn, config.PoolSize),
		privKey: privKey,
		pubKey:  pubKey,
		address: address,
	}

	// Initialize connection pool
	for i := 0; i < config.PoolSize; i++ {
		conn, err := grpc.Dial(
			config.GRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(1024*1024*10), // 10MB
				grpc.MaxCallSendMsgSize(1024*1024*10),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to gRPC: %w", err)
		}
		c.pool[i] = conn
	}

	return c, nil
}

// Address returns the bech32 address of the signing key
func (c *Client) Address() string {
	return c.address.String()
}

// getConn returns a connection from the pool (round-robin)
func (c *Client) getConn() *grpc.ClientConn {
	idx := atomic.AddUint64(&c.poolIndex, 1) % uint64(len(c.pool))
	return c.pool[idx]
}

// nextSequence atomically increments and returns the next sequence number
func (c *Client) nextSequence() uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	seq := c.sequence
	c.sequence++
	return seq
}

// SubmitResult contains the result of a submission
type SubmitResult struct {
	TxHash  string
	Success bool
	Latency time.Duration
	Error   error
}

// ExecuteTriggerOrder submits a trigger order execution. The keeper fee pays
// the signing address when the order fires.
func (c *Client) ExecuteTriggerOrder(ctx context.Context, accountID string, orderID uint64) *SubmitResult {
	msg := &credittypes.MsgExecuteTriggerOrder{
		Sender:    c.address.String(),
		AccountID: accountID,
		OrderID:   orderID,
	}
	return c.submit(ctx, []sdk.Msg{msg})
}

// Deleverage submits a forced close of one account's position in one market
func (c *Client) Deleverage(ctx context.Context, accountID, denom string) *SubmitResult {
	msg := &perpstypes.MsgDeleverage{
		Caller:    c.address.String(),
		AccountID: accountID,
		Denom:     denom,
	}
	return c.submit(ctx, []sdk.Msg{msg})
}

// DispatchActions submits an action batch against a credit account
func (c *Client) DispatchActions(ctx context.Context, accountID string, actions []credittypes.Action, funds sdk.Coins) *SubmitResult {
	msg := &credittypes.MsgDispatchActions{
		Sender:    c.address.String(),
		AccountID: accountID,
		Actions:   actions,
		Funds:     funds,
	}
	return c.submit(ctx, []sdk.Msg{msg})
}

// SubmitBatch submits multiple messages in a single transaction
func (c *Client) SubmitBatch(ctx context.Context, msgs []sdk.Msg) *SubmitResult {
	if len(msgs) == 0 {
		return &SubmitResult{Error: fmt.Errorf("no messages to submit")}
	}
	if len(msgs) > c.config.BatchSize {
		return &SubmitResult{Error: fmt.Errorf("batch size %d exceeds max %d", len(msgs), c.config.BatchSize)}
	}
	return c.submit(ctx, msgs)
}

// submit signs and broadcasts, retrying transport failures
func (c *Client) submit(ctx context.Context, msgs []sdk.Msg) *SubmitResult {
	start := time.Now()
	result := &SubmitResult{}

	atomic.AddUint64(&c.txCount, 1)

	seq := c.nextSequence()
	txBytes, err := c.buildSignedTx(msgs, seq)
	if err != nil {
		result.Error = err
		result.Latency = time.Since(start)
		atomic.AddUint64(&c.failCount, 1)
		return result
	}

	var resp *BroadcastTxResponse
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		conn := c.getConn()
		txClient := NewTxServiceClient(conn)

		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		resp, err = txClient.BroadcastTx(callCtx, &BroadcastTxRequest{
			TxBytes: txBytes,
			Mode:    BroadcastMode_BROADCAST_MODE_SYNC,
		})
		cancel()
		if err == nil {
			break
		}
	}

	result.Latency = time.Since(start)
	atomic.AddInt64(&c.totalLatency, int64(result.Latency))

	if err != nil {
		result.Error = err
		atomic.AddUint64(&c.failCount, 1)
		return result
	}

	if resp.TxResponse.Code == 0 {
		result.Success = true
		result.TxHash = resp.TxResponse.TxHash
		atomic.AddUint64(&c.successCount, 1)
	} else {
		result.Error = fmt.Errorf("tx failed: %s", resp.TxResponse.RawLog)
		atomic.AddUint64(&c.failCount, 1)
	}

	return result
}

// buildSignedTx builds and signs a transaction in memory
func (c *Client) buildSignedTx(msgs []sdk.Msg, sequence uint64) ([]byte, error) {
	txBuilder := c.txConfig.NewTxBuilder()

	if err := txBuilder.SetMsgs(msgs...); err != nil {
		return nil, err
	}

	fee := sdk.NewCoins(sdk.NewCoin(c.config.GasDenom, sdkmath.NewIntFromUint64(c.config.GasLimit/100)))
	txBuilder.SetFeeAmount(fee)
	txBuilder.SetGasLimit(c.config.GasLimit * uint64(len(msgs)))

	sigV2 := signing.SignatureV2{
		PubKey: c.pubKey,
		Data: &signing.SingleSignatureData{
			SignMode:  signing.SignMode_SIGN_MODE_DIRECT,
			Signature: nil,
		},
		Sequence: sequence,
	}

	if err := txBuilder.SetSignatures(sigV2); err != nil {
		return nil, err
	}

	signerData := authsigning.SignerData{
		ChainID:       c.config.ChainID,
		AccountNumber: c.config.AccountNumber,
		Sequence:      sequence,
	}

	signBytes, err := authsigning.GetSignBytesAdapter(
		context.Background(),
		c.txConfig.SignModeHandler(),
		signing.SignMode_SIGN_MODE_DIRECT,
		signerData,
		txBuilder.GetTx(),
	)
	if err != nil {
		return nil, err
	}

	signature, err := c.privKey.Sign(signBytes)
	if err != nil {
		return nil, err
	}

	sigV2.Data = &signing.SingleSignatureData{
		SignMode:  signing.SignMode_SIGN_MODE_DIRECT,
		Signature: signature,
	}

	if err := txBuilder.SetSignatures(sigV2); err != nil {
		return nil, err
	}

	return c.txConfig.TxEncoder()(txBuilder.GetTx())
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() (txCount, successCount, failCount uint64, avgLatency time.Duration) {
	txCount = atomic.LoadUint64(&c.txCount)
	successCount = atomic.LoadUint64(&c.successCount)
	failCount = atomic.LoadUint64(&c.failCount)

	if successCount > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / int64(successCount))
	}
	return
}

// ResetMetrics resets all metrics
func (c *Client) ResetMetrics() {
	atomic.StoreUint64(&c.txCount, 0)
	atomic.StoreUint64(&c.successCount, 0)
	atomic.StoreUint64(&c.failCount, 0)
	atomic.StoreInt64(&c.totalLatency, 0)
}

// Close closes all connections in the pool
func (c *Client) Close() error {
	for _, conn := range c.pool {
		if err := conn.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Placeholder types for gRPC (would be generated from proto)
type TxServiceClient interface {
	BroadcastTx(ctx context.Context, req *BroadcastTxRequest, opts ...grpc.CallOption) (*BroadcastTxResponse, error)
}

type BroadcastTxRequest struct {
	TxBytes []byte
	Mode    BroadcastMode
}

type BroadcastMode int

const (
	BroadcastMode_BROADCAST_MODE_ASYNC BroadcastMode = iota
	BroadcastMode_BROADCAST_MODE_SYNC
	BroadcastMode_BROADCAST_MODE_BLOCK
)

type BroadcastTxResponse struct {
	TxResponse *TxResponse
}

type TxResponse struct {
	TxHash string
	Code   uint32
	RawLog string
}

func NewTxServiceClient(conn *grpc.ClientConn) TxServiceClient {
	return &txServiceClient{conn: conn}
}

type txServiceClient struct {
	conn *grpc.ClientConn
}

func (c *txServiceClient) BroadcastTx(ctx context.Context, req *BroadcastTxRequest, opts ...grpc.CallOption) (*BroadcastTxResponse, error) {
	// Implementation would use the generated tx service stub
	return &BroadcastTxResponse{
		TxResponse: &TxResponse{
			TxHash: "placeholder",
			Code:   0,
		},
	}, nil
}
