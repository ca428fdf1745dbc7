package client

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// BitcoinClient implements BlockchainClient for bitcoind's JSON-RPC API
type BitcoinClient struct {
	config *types.ChainConfig
	client *rpc.Client
}

type bitcoinHeader struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	Time              int64  `json:"time"`
	PreviousBlockHash string `json:"previousblockhash"`
}

// NewBitcoinClient creates a new bitcoind RPC client. Credentials come from
// the chain config username and password.
func NewBitcoinClient(config *types.ChainConfig) (*BitcoinClient, error) {
	client, err := dialRPC(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	return &BitcoinClient{
		config: config,
		client: client,
	}, nil
}

// GetLatestBlockHeight gets the block count of the best chain
func (c *BitcoinClient) GetLatestBlockHeight(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	var count int64
	if err := c.client.CallContext(ctx, &count, "getblockcount"); err != nil {
		return 0, fmt.Errorf("failed to get block count: %w", err)
	}

	return count, nil
}

// GetEarliestBlockHeight returns the genesis height
func (c *BitcoinClient) GetEarliestBlockHeight(ctx context.Context) (int64, error) {
	return 0, nil
}

// GetBlockHash gets the block hash at height
func (c *BitcoinClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	var hash string
	if err := c.client.CallContext(ctx, &hash, "getblockhash", height); err != nil {
		return "", fmt.Errorf("failed to get block hash at height %d: %w", height, err)
	}

	return hash, nil
}

// GetBlockHeader gets the block header by hash
func (c *BitcoinClient) GetBlockHeader(ctx context.Context, hash string) (*types.BlockHeader, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	var header bitcoinHeader
	if err := c.client.CallContext(ctx, &header, "getblockheader", hash, true); err != nil {
		return nil, fmt.Errorf("failed to get header %s: %w", hash, err)
	}

	return &types.BlockHeader{
		Height:     header.Height,
		Hash:       header.Hash,
		ParentHash: header.PreviousBlockHash,
		Timestamp:  header.Time,
	}, nil
}

// Close closes the client
func (c *BitcoinClient) Close() error {
	c.client.Close()
	return nil
}
