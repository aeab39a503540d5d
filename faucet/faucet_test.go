package faucet_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/faucet"
	"github.com/nftmarket/storefront/notify"
	"github.com/nftmarket/storefront/test/mocks/chain"
)

const signer = "0x00000000000000000000000000000000000000B0"

func setup() (*chain.Chain, *notify.Center, *faucet.Faucet) {
	c := chain.New(signer, evm.MarketplaceAddress, evm.MockNFTAddress)
	w := evm.NewWriter(c, evm.MarketplaceAddress, evm.MockNFTAddress)
	notes := notify.NewCenter(10)
	f := faucet.New(w, faucet.WithPause(0), faucet.WithNotifier(notes))
	return c, notes, f
}

func balance(c *chain.Chain, token string) string {
	return c.Balance(common.HexToAddress(token), common.HexToAddress(signer)).String()
}

func TestFaucet_Mint(t *testing.T) {
	c, notes, f := setup()

	usdc, ok := f.Lookup("usdc")
	require.True(t, ok)

	minted, err := f.Mint(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, "USDC", minted.Symbol)
	assert.NotEmpty(t, minted.TxHash)
	assert.Equal(t, "1000000000", balance(c, evm.USDCAddress))

	n, ok := notes.Get("USDC")
	require.True(t, ok)
	assert.Equal(t, notify.LevelSuccess, n.Level)
	assert.Equal(t, "1000 USDC minted successfully!", n.Message)
}

func TestFaucet_MintAll(t *testing.T) {
	c, notes, f := setup()

	minted, err := f.MintAll(context.Background())
	require.NoError(t, err)
	require.Len(t, minted, 4)

	assert.Equal(t, "1000000000", balance(c, evm.USDTAddress))
	assert.Equal(t, "1000000000000000000000", balance(c, evm.DAIAddress))
	assert.Equal(t, "100000000", balance(c, evm.WBTCAddress))

	list := notes.List()
	require.Len(t, list, 1)
	assert.Equal(t, "All tokens minted successfully!", list[0].Message)
}

type flakyMinter struct {
	w      *evm.Writer
	calls  int
	failAt int
}

func (m *flakyMinter) Faucet(ctx context.Context, token common.Address, amount *big.Int) (*evm.TxHandle, error) {
	m.calls++
	if m.calls == m.failAt {
		return nil, errors.New("insufficient funds for gas")
	}
	return m.w.Faucet(ctx, token, amount)
}

func TestFaucet_MintAllStopsAtFirstFailure(t *testing.T) {
	c := chain.New(signer, evm.MarketplaceAddress, evm.MockNFTAddress)
	notes := notify.NewCenter(10)
	m := &flakyMinter{w: evm.NewWriter(c, evm.MarketplaceAddress, evm.MockNFTAddress), failAt: 2}
	f := faucet.New(m, faucet.WithPause(0), faucet.WithNotifier(notes))

	minted, err := f.MintAll(context.Background())
	require.Error(t, err)
	assert.Len(t, minted, 1)
	assert.Equal(t, 2, m.calls)
	assert.Equal(t, "1000000000", balance(c, evm.USDCAddress))
	assert.Equal(t, "0", balance(c, evm.DAIAddress))

	list := notes.List()
	require.Len(t, list, 1)
	assert.Equal(t, notify.LevelError, list[0].Level)
	assert.Equal(t, "Failed to mint some tokens", list[0].Message)
}

func TestFaucet_RevertedMint(t *testing.T) {
	c, notes, f := setup()
	c.Revert(evm.FunctionFaucet, true)

	wbtc, ok := f.Lookup("WBTC")
	require.True(t, ok)

	_, err := f.Mint(context.Background(), wbtc)
	require.Error(t, err)

	n, ok := notes.Get("WBTC")
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, n.Level)
}
