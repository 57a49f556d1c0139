package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// EthClient JSON-RPC connection to an EVM chain.
type EthClient struct {
	*ethclient.Client
	chainID *big.Int
}

// NewEthClient dials rpcURL and confirms the node answers before any balance is queried.
func NewEthClient(ctx context.Context, rpcURL string) (*EthClient, error) {
	if rpcURL == "" {
		return nil, errors.New("rpc url is required")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcURL)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "not connected to a provider at %s", rpcURL)
	}

	return &EthClient{Client: client, chainID: chainID}, nil
}

// ConnectedChainID returns the chain id reported while dialing.
func (c *EthClient) ConnectedChainID() *big.Int { return c.chainID }
