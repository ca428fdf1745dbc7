package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/stablelabs/blocktime-drift/pkg/types"
)

// Supported providers
const (
	ProviderCometBFT = "cometbft"
	ProviderEthereum = "ethereum"
	ProviderBitcoin  = "bitcoin"
)

const defaultTimeout = 30 * time.Second

// BlockchainClient interface for blockchain interactions
type BlockchainClient interface {
	GetLatestBlockHeight(ctx context.Context) (int64, error)
	// GetEarliestBlockHeight returns the lowest height the node still serves
	GetEarliestBlockHeight(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlockHeader(ctx context.Context, hash string) (*types.BlockHeader, error)
	Close() error
}

// Providers lists the supported provider names
func Providers() []string {
	return []string{ProviderCometBFT, ProviderEthereum, ProviderBitcoin}
}

// New creates the client for config.Provider
func New(config *types.ChainConfig) (BlockchainClient, error) {
	if config.RPCEndpoint == "" {
		return nil, fmt.Errorf("RPC endpoint is required")
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	switch strings.ToLower(config.Provider) {
	case ProviderCometBFT, "":
		return NewCometBFTClient(config)
	case ProviderEthereum:
		return NewEthereumClient(config)
	case ProviderBitcoin:
		return NewBitcoinClient(config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (must be one of %s)", config.Provider, strings.Join(Providers(), ", "))
	}
}

// withTimeout bounds a single RPC call
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// dialRPC opens a JSON-RPC client, adding HTTP basic auth when credentials
// are configured
func dialRPC(config *types.ChainConfig) (*rpc.Client, error) {
	var opts []rpc.ClientOption
	if config.Username != "" || config.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(config.Username + ":" + config.Password))
		opts = append(opts, rpc.WithHTTPAuth(func(h http.Header) error {
			h.Set("Authorization", "Basic "+credentials)
			return nil
		}))
	}

	ctx, cancel := withTimeout(context.Background(), config.Timeout)
	defer cancel()

	return rpc.DialOptions(ctx, config.RPCEndpoint, opts...)
}
