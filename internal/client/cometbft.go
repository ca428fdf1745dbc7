package client

import (
	"context"
	"encoding/hex"
	"fmt"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// CometBFTClient implements BlockchainClient for CometBFT based chains
type CometBFTClient struct {
	config *types.ChainConfig
	client *rpchttp.HTTP
}

// NewCometBFTClient creates a new CometBFT RPC client
func NewCometBFTClient(config *types.ChainConfig) (*CometBFTClient, error) {
	client, err := rpchttp.New(config.RPCEndpoint, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	return &CometBFTClient{
		config: config,
		client: client,
	}, nil
}

// GetLatestBlockHeight gets the latest block height
func (c *CometBFTClient) GetLatestBlockHeight(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	status, err := c.client.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get status: %w", err)
	}

	return status.SyncInfo.LatestBlockHeight, nil
}

// GetEarliestBlockHeight gets the earliest height a pruned node still serves
func (c *CometBFTClient) GetEarliestBlockHeight(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	status, err := c.client.Status(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get status: %w", err)
	}

	if status.SyncInfo.EarliestBlockHeight < 1 {
		return 1, nil
	}
	return status.SyncInfo.EarliestBlockHeight, nil
}

// GetBlockHash gets the block hash at height
func (c *CometBFTClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	info, err := c.client.BlockchainInfo(ctx, height, height)
	if err != nil {
		return "", fmt.Errorf("failed to get block meta at height %d: %w", height, err)
	}

	for _, meta := range info.BlockMetas {
		if meta != nil && meta.Header.Height == height {
			return meta.BlockID.Hash.String(), nil
		}
	}

	return "", fmt.Errorf("no block meta at height %d", height)
}

// GetBlockHeader gets the block header by hash
func (c *CometBFTClient) GetBlockHeader(ctx context.Context, hash string) (*types.BlockHeader, error) {
	raw, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash %q: %w", hash, err)
	}

	ctx, cancel := withTimeout(ctx, c.config.Timeout)
	defer cancel()

	result, err := c.client.HeaderByHash(ctx, cmtbytes.HexBytes(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to get header %s: %w", hash, err)
	}

	if result == nil || result.Header == nil {
		return nil, fmt.Errorf("nil header result for %s", hash)
	}

	return &types.BlockHeader{
		Height:     result.Header.Height,
		Hash:       result.Header.Hash().String(),
		ParentHash: result.Header.LastBlockID.Hash.String(),
		Timestamp:  result.Header.Time.Unix(),
	}, nil
}

// Close closes the client
func (c *CometBFTClient) Close() error {
	if c.client != nil && c.client.IsRunning() {
		return c.client.Stop()
	}
	return nil
}
