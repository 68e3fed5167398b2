package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/noah-isme/kyc-attestation-api/pkg/config"
)

// Dial connects to the ledger RPC endpoint and checks that it serves the
// configured chain and that the contract address carries code.
func Dial(ctx context.Context, cfg config.LedgerConfig) (*ethclient.Client, *big.Int, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, nil, fmt.Errorf("invalid LEDGER_CONTRACT_ADDRESS %q", cfg.ContractAddress)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	if cfg.ChainID > 0 && chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		client.Close()
		return nil, nil, fmt.Errorf("ledger rpc serves chain %s, expected %d", chainID, cfg.ChainID)
	}

	code, err := client.CodeAt(ctx, common.HexToAddress(cfg.ContractAddress), nil)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("read contract code: %w", err)
	}
	if len(code) == 0 {
		client.Close()
		return nil, nil, fmt.Errorf("no contract deployed at %s", cfg.ContractAddress)
	}

	return client, chainID, nil
}
