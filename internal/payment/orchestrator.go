// Package payment builds unsigned tip transactions and owns the single code
// path that can unlock a session.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/skovald/storyteller/internal/chain"
	"github.com/skovald/storyteller/internal/config"
	"github.com/skovald/storyteller/internal/storage"
)

// Tip economics and transaction parameters. The tip amount is fixed server
// side and never taken from request input.
const (
	tipAmountUnits   = 500000 // $0.50 in the token's 6-decimal base units
	gasLimitHex      = "0x186A0"
	transferSelector = "a9059cbb" // transfer(address,uint256)
)

var (
	// minGasReserveWei is 0.001 native currency, the floor below which the
	// user cannot cover gas for the tip.
	minGasReserveWei = big.NewInt(1_000_000_000_000_000)

	// minGasPriceWei floors the gas price at 15 gwei to avoid stuck
	// transactions on a quiet testnet.
	minGasPriceWei = big.NewInt(15_000_000_000)
)

// User-facing insufficiency reasons. Distinct so the client can point the
// user at the right faucet.
const (
	ReasonTokenInsufficient = "Not enough USDC! Get test USDC from faucet.arc.network"
	ReasonGasInsufficient   = "Not enough ETH for gas fees! Get test ETH from faucet"

	reasonNoPending   = "No payment request found. Request a tip first!"
	reasonNotMined    = "Transaction not found on-chain yet. Try again in a moment."
	reasonNotMatching = "Transaction does not match the expected tip payment."
)

// TxRequest is the unsigned transaction descriptor handed to the client for
// signing. Field names are part of the wire contract.
type TxRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Data     string `json:"data"`
	ChainID  string `json:"chainId"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Nonce    string `json:"nonce"`
}

// RPC is the chain collaborator surface the orchestrator needs.
type RPC interface {
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	NativeBalance(ctx context.Context, addr string) (*big.Int, error)
	PendingNonce(ctx context.Context, addr string) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	LookupTransaction(ctx context.Context, hash string) (*chain.TxInfo, error)
}

// Orchestrator validates wallets, builds tip transactions, and confirms
// submitted hashes against outstanding payment requests.
type Orchestrator struct {
	rpc            RPC
	storage        *storage.Storage
	tokenAddress   string
	creatorAddress string
	chainID        int64
	verifyOnChain  bool
	log            *slog.Logger
}

// New creates a new Orchestrator
func New(rpc RPC, store *storage.Storage, cfg *config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		rpc:            rpc,
		storage:        store,
		tokenAddress:   cfg.TokenAddress,
		creatorAddress: cfg.CreatorAddress,
		chainID:        cfg.ChainID,
		verifyOnChain:  cfg.VerifyOnChain,
		log:            log,
	}
}

// ValidateAddress checks a wallet address and returns its checksum form.
func (o *Orchestrator) ValidateAddress(input string) (string, bool) {
	return chain.ValidateAddress(input)
}

// BuildTip checks balances and constructs the unsigned tip transaction.
// An insufficiency returns a nil request and a user-facing reason; RPC
// failures propagate as errors so the client can retry.
func (o *Orchestrator) BuildTip(ctx context.Context, wallet string) (*TxRequest, string, error) {
	amount := big.NewInt(tipAmountUnits)

	tokenBal, err := o.rpc.TokenBalance(ctx, o.tokenAddress, wallet)
	if err != nil {
		return nil, "", fmt.Errorf("token balance: %w", err)
	}
	if tokenBal.Cmp(amount) < 0 {
		return nil, ReasonTokenInsufficient, nil
	}

	nativeBal, err := o.rpc.NativeBalance(ctx, wallet)
	if err != nil {
		return nil, "", fmt.Errorf("native balance: %w", err)
	}
	if nativeBal.Cmp(minGasReserveWei) < 0 {
		return nil, ReasonGasInsufficient, nil
	}

	nonce, err := o.rpc.PendingNonce(ctx, wallet)
	if err != nil {
		return nil, "", fmt.Errorf("nonce: %w", err)
	}

	gasPrice, err := o.rpc.GasPrice(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPriceWei) < 0 {
		gasPrice = minGasPriceWei
	}

	tx := &TxRequest{
		From:     wallet,
		To:       o.tokenAddress,
		Value:    "0x0",
		Data:     encodeTransfer(o.creatorAddress, amount),
		ChainID:  fmt.Sprintf("0x%X", o.chainID),
		Gas:      gasLimitHex,
		GasPrice: fmt.Sprintf("0x%x", gasPrice),
		Nonce:    fmt.Sprintf("0x%x", nonce),
	}

	o.log.Info("tip transaction built", "wallet", wallet, "nonce", nonce)
	return tx, "", nil
}

// RecordPending stores the outstanding request, superseding any prior
// pending request for the wallet.
func (o *Orchestrator) RecordPending(wallet string, tx *TxRequest) error {
	txJSON, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal tx: %w", err)
	}

	amount := big.NewInt(tipAmountUnits)
	if err := o.storage.SavePendingPayment(wallet, amount.String(), string(txJSON)); err != nil {
		return fmt.Errorf("save pending payment: %w", err)
	}

	return nil
}

// Confirm checks a client-reported transaction hash against the wallet's
// outstanding payment request and, if satisfied, consumes the request and
// unlocks the session. This is the only place the unlocked flag is set.
func (o *Orchestrator) Confirm(ctx context.Context, wallet, txHash string) (bool, string, error) {
	if _, err := o.storage.GetPendingPayment(wallet); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, reasonNoPending, nil
		}
		return false, "", fmt.Errorf("get pending payment: %w", err)
	}

	// Optional on-chain verification happens before the pending record is
	// consumed, so a not-yet-mined transaction can be re-confirmed later.
	if o.verifyOnChain {
		if ok, reason := o.verifyTransaction(ctx, wallet, txHash); !ok {
			return false, reason, nil
		}
	}

	consumed, err := o.storage.ConsumePendingPayment(wallet)
	if err != nil {
		return false, "", fmt.Errorf("consume pending payment: %w", err)
	}
	if !consumed {
		// Raced with another confirmation for the same wallet.
		return false, reasonNoPending, nil
	}

	if err := o.storage.MarkUnlocked(wallet, txHash); err != nil {
		return false, "", fmt.Errorf("mark unlocked: %w", err)
	}

	o.log.Info("tip confirmed", "wallet", wallet, "tx_hash", txHash)
	return true, "", nil
}

func (o *Orchestrator) verifyTransaction(ctx context.Context, wallet, txHash string) (bool, string) {
	info, err := o.rpc.LookupTransaction(ctx, txHash)
	if err != nil {
		o.log.Warn("tx lookup failed", "tx_hash", txHash, "error", err)
		return false, reasonNotMined
	}

	if !info.Succeeded ||
		!strings.EqualFold(info.To, o.tokenAddress) ||
		!strings.EqualFold(info.From, wallet) {
		o.log.Warn("tx verification mismatch",
			"tx_hash", txHash,
			"from", info.From,
			"to", info.To,
			"succeeded", info.Succeeded,
		)
		return false, reasonNotMatching
	}

	return true, ""
}

// encodeTransfer builds ERC-20 transfer calldata: 4-byte selector, zero
// padded recipient, zero padded amount.
func encodeTransfer(recipient string, amount *big.Int) string {
	addr := strings.ToLower(strings.TrimPrefix(recipient, "0x"))
	padded := strings.Repeat("0", 64-len(addr)) + addr
	return fmt.Sprintf("0x%s%s%064x", transferSelector, padded, amount)
}
