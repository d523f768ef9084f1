// Package chain wraps the EVM JSON-RPC collaborator: address validation,
// balance and nonce lookups, and transaction inspection for tip verification.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// balanceOf(address) selector.
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client is an EVM RPC client bound to one chain.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// TxInfo describes a mined transaction as needed for tip verification.
type TxInfo struct {
	From      string // checksum sender recovered from the signature
	To        string // checksum recipient (empty for contract creation)
	Succeeded bool   // receipt status == 1
}

// Dial connects to the RPC endpoint.
func Dial(rpcURL string, chainID int64) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		eth:     eth,
		chainID: big.NewInt(chainID),
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ValidateAddress checks a hex account address and returns its EIP-55
// checksum form.
func ValidateAddress(s string) (string, bool) {
	if !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}

// TokenBalance returns the ERC-20 balance of owner via eth_call balanceOf.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	tokenAddr := common.HexToAddress(token)
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(common.HexToAddress(owner).Bytes(), 32)...)

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	return new(big.Int).SetBytes(out), nil
}

// NativeBalance returns the native-currency balance of addr.
func (c *Client) NativeBalance(ctx context.Context, addr string) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

// PendingNonce returns the next nonce for addr including pending transactions.
func (c *Client) PendingNonce(ctx context.Context, addr string) (uint64, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, common.HexToAddress(addr))
	if err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

// GasPrice returns the current suggested gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	return price, nil
}

// LookupTransaction fetches a transaction and its receipt. Pending or
// unknown transactions return an error so callers can ask the user to retry
// after the transaction lands.
func (c *Client) LookupTransaction(ctx context.Context, hash string) (*TxInfo, error) {
	txHash := common.HexToHash(hash)

	tx, isPending, err := c.eth.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	if isPending {
		return nil, fmt.Errorf("transaction %s not mined yet", hash)
	}

	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}

	info := &TxInfo{
		From:      from.Hex(),
		Succeeded: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if tx.To() != nil {
		info.To = tx.To().Hex()
	}

	return info, nil
}
