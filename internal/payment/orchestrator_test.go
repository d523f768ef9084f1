package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skovald/storyteller/internal/chain"
	"github.com/skovald/storyteller/internal/config"
	"github.com/skovald/storyteller/internal/storage"
)

const (
	wallet  = "0x1111111111111111111111111111111111111111"
	token   = "0x3600000000000000000000000000000000000000"
	creator = "0xc566bc1e529a71ece83145f98aac3c818d1311b3"
)

// fakeRPC implements RPC with canned balances and gas figures.
type fakeRPC struct {
	tokenBalance  *big.Int
	nativeBalance *big.Int
	nonce         uint64
	gasPrice      *big.Int
	txInfo        *chain.TxInfo
	lookupErr     error
	rpcErr        error
}

func (f *fakeRPC) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	return f.tokenBalance, f.rpcErr
}

func (f *fakeRPC) NativeBalance(ctx context.Context, addr string) (*big.Int, error) {
	return f.nativeBalance, f.rpcErr
}

func (f *fakeRPC) PendingNonce(ctx context.Context, addr string) (uint64, error) {
	return f.nonce, f.rpcErr
}

func (f *fakeRPC) GasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, f.rpcErr
}

func (f *fakeRPC) LookupTransaction(ctx context.Context, hash string) (*chain.TxInfo, error) {
	return f.txInfo, f.lookupErr
}

func fundedRPC() *fakeRPC {
	return &fakeRPC{
		tokenBalance:  big.NewInt(1_000_000),                     // 1 USDC
		nativeBalance: big.NewInt(10_000_000_000_000_000),        // 0.01 native
		nonce:         7,
		gasPrice:      big.NewInt(20_000_000_000),                // 20 gwei
	}
}

func newOrchestrator(t *testing.T, rpc RPC, verify bool) (*Orchestrator, *storage.Storage) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		TokenAddress:   token,
		CreatorAddress: creator,
		ChainID:        315298,
		VerifyOnChain:  verify,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(rpc, store, cfg, log), store
}

func TestBuildTipSuccess(t *testing.T) {
	o, _ := newOrchestrator(t, fundedRPC(), false)

	tx, reason, err := o.BuildTip(context.Background(), wallet)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.NotNil(t, tx)

	assert.Equal(t, wallet, tx.From)
	assert.Equal(t, token, tx.To)
	assert.Equal(t, "0x0", tx.Value)
	assert.Equal(t, "0x4CFA2", tx.ChainID)
	assert.Equal(t, "0x186A0", tx.Gas)
	assert.Equal(t, "0x4a817c800", tx.GasPrice) // 20 gwei, above the floor
	assert.Equal(t, "0x7", tx.Nonce)

	// transfer selector + padded creator + padded amount (0.5 USDC).
	require.True(t, strings.HasPrefix(tx.Data, "0xa9059cbb"))
	assert.Contains(t, tx.Data, strings.TrimPrefix(creator, "0x"))
	assert.True(t, strings.HasSuffix(tx.Data, "7a120")) // 500000
	assert.Len(t, tx.Data, 2+8+64+64)
}

func TestBuildTipFloorsGasPrice(t *testing.T) {
	rpc := fundedRPC()
	rpc.gasPrice = big.NewInt(1_000_000_000) // 1 gwei, below the floor

	o, _ := newOrchestrator(t, rpc, false)

	tx, _, err := o.BuildTip(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, "0x37e11d600", tx.GasPrice) // 15 gwei floor
}

func TestBuildTipTokenInsufficient(t *testing.T) {
	rpc := fundedRPC()
	rpc.tokenBalance = big.NewInt(400_000) // below 0.5 USDC

	o, _ := newOrchestrator(t, rpc, false)

	tx, reason, err := o.BuildTip(context.Background(), wallet)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, ReasonTokenInsufficient, reason)
}

func TestBuildTipGasInsufficient(t *testing.T) {
	rpc := fundedRPC()
	rpc.nativeBalance = big.NewInt(100) // dust

	o, _ := newOrchestrator(t, rpc, false)

	tx, reason, err := o.BuildTip(context.Background(), wallet)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, ReasonGasInsufficient, reason)
}

func TestBuildTipRPCFailurePropagates(t *testing.T) {
	rpc := fundedRPC()
	rpc.rpcErr = errors.New("connection reset")

	o, store := newOrchestrator(t, rpc, false)

	_, _, err := o.BuildTip(context.Background(), wallet)
	require.Error(t, err)

	// No pending request was recorded on failure.
	_, err = store.GetPendingPayment(wallet)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConfirmWithoutPendingRefused(t *testing.T) {
	o, store := newOrchestrator(t, fundedRPC(), false)

	require.NoError(t, store.ConnectSession(wallet))
	require.NoError(t, store.SetStory(wallet, "story"))

	granted, reason, err := o.Confirm(context.Background(), wallet, "0xabc")
	require.NoError(t, err)
	assert.False(t, granted)
	assert.NotEmpty(t, reason)

	sess, err := store.GetSession(wallet)
	require.NoError(t, err)
	assert.False(t, sess.Unlocked, "refused confirmation must not mutate the session")
}

func TestConfirmGrantsAndConsumesPending(t *testing.T) {
	o, store := newOrchestrator(t, fundedRPC(), false)

	require.NoError(t, store.ConnectSession(wallet))
	require.NoError(t, store.SetStory(wallet, "story"))

	tx, _, err := o.BuildTip(context.Background(), wallet)
	require.NoError(t, err)
	require.NoError(t, o.RecordPending(wallet, tx))

	granted, _, err := o.Confirm(context.Background(), wallet, "0xabc")
	require.NoError(t, err)
	assert.True(t, granted)

	sess, err := store.GetSession(wallet)
	require.NoError(t, err)
	assert.True(t, sess.Unlocked)
	assert.Equal(t, "0xabc", sess.UnlockedTxHash)

	// The pending record was consumed; the same hash cannot re-grant.
	granted, _, err = o.Confirm(context.Background(), wallet, "0xabc")
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestConfirmVerifiesOnChainWhenEnabled(t *testing.T) {
	rpc := fundedRPC()
	o, store := newOrchestrator(t, rpc, true)

	require.NoError(t, store.ConnectSession(wallet))
	require.NoError(t, store.SetStory(wallet, "story"))

	tx, _, err := o.BuildTip(context.Background(), wallet)
	require.NoError(t, err)
	require.NoError(t, o.RecordPending(wallet, tx))

	// Not mined yet: refused, pending record kept for a later retry.
	rpc.lookupErr = errors.New("not found")
	granted, _, err := o.Confirm(context.Background(), wallet, "0xabc")
	require.NoError(t, err)
	assert.False(t, granted)
	_, err = store.GetPendingPayment(wallet)
	require.NoError(t, err, "pending record must survive a failed verification")

	// Mined but wrong recipient: refused.
	rpc.lookupErr = nil
	rpc.txInfo = &chain.TxInfo{From: wallet, To: creator, Succeeded: true}
	granted, _, err = o.Confirm(context.Background(), wallet, "0xabc")
	require.NoError(t, err)
	assert.False(t, granted)

	// Matching transfer to the token contract from the wallet: granted.
	rpc.txInfo = &chain.TxInfo{From: wallet, To: token, Succeeded: true}
	granted, _, err = o.Confirm(context.Background(), wallet, "0xabc")
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestValidateAddressDelegatesToChain(t *testing.T) {
	o, _ := newOrchestrator(t, fundedRPC(), false)

	_, ok := o.ValidateAddress("not-an-address")
	assert.False(t, ok)

	checksum, ok := o.ValidateAddress(creator)
	assert.True(t, ok)
	assert.True(t, strings.EqualFold(creator, checksum))
}
