package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// EthereumClient implements BlockchainClient for EVM chains
type EthereumClient struct {
	config *types.ChainConfig
	client *ethclient.Client
}

// NewEthereumClient creates a new EVM JSON-RPC client
func NewEthereumClient(config *types.ChainConfig) (*EthereumClient, error) {
	rpcClient, err := dialRPC(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	return &EthereumClient{
		config: config,
		client: ethclient.NewClient(rpcClient),
	}, nil
}

// GetLatestBlockHeight gets the latest block number
func (c *EthereumClient) GetLatestBlockHeight(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	number, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}

	return int64(number), nil
}

// GetEarliestBlockHeight returns the genesis block number
func (c *EthereumClient) GetEarliestBlockHeight(ctx context.Context) (int64, error) {
	return 0, nil
}

// GetBlockHash gets the block hash at height
func (c *EthereumClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, big.NewInt(height))
	if err != nil {
		return "", fmt.Errorf("failed to get header at height %d: %w", height, err)
	}

	return header.Hash().Hex(), nil
}

// GetBlockHeader gets the block header by hash
func (c *EthereumClient) GetBlockHeader(ctx context.Context, hash string) (*types.BlockHeader, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	header, err := c.client.HeaderByHash(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get header %s: %w", hash, err)
	}

	return &types.BlockHeader{
		Height:     header.Number.Int64(),
		Hash:       header.Hash().Hex(),
		ParentHash: header.ParentHash.Hex(),
		Timestamp:  int64(header.Time),
	}, nil
}

// Close closes the client
func (c *EthereumClient) Close() error {
	c.client.Close()
	return nil
}
