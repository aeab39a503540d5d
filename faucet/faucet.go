// Package faucet mints test tokens to the signer on testnets.
package faucet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/notify"
	"github.com/nftmarket/storefront/pricing"
)

// DefaultPause is the wait between tokens in MintAll
const DefaultPause = time.Second

// Token is one faucet entry; Amount is in whole tokens
type Token struct {
	Symbol   string `toml:"symbol" json:"symbol"`
	Address  string `toml:"address" json:"address"`
	Decimals int32  `toml:"decimals" json:"decimals"`
	Amount   string `toml:"amount" json:"amount"`
}

// DefaultTokens is the Lisk Sepolia faucet table
var DefaultTokens = []Token{
	{Symbol: "USDC", Address: evm.USDCAddress, Decimals: 6, Amount: "1000"},
	{Symbol: "USDT", Address: evm.USDTAddress, Decimals: 6, Amount: "1000"},
	{Symbol: "DAI", Address: evm.DAIAddress, Decimals: 18, Amount: "1000"},
	{Symbol: "WBTC", Address: evm.WBTCAddress, Decimals: 8, Amount: "1"},
}

// Minter submits faucet transactions
type Minter interface {
	Faucet(ctx context.Context, token common.Address, amount *big.Int) (*evm.TxHandle, error)
}

// BalanceInvalidator drops cached balances once a mint confirms
type BalanceInvalidator interface {
	InvalidateBalances()
}

// Minted reports one confirmed mint
type Minted struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	TxHash string `json:"txHash"`
}

// Faucet mints the configured tokens one at a time
type Faucet struct {
	minter   Minter
	balances BalanceInvalidator
	tokens   []Token
	pause    time.Duration
	notifier notify.Notifier
	log      zerolog.Logger
}

// Option configures a Faucet
type Option func(*Faucet)

// WithTokens overrides DefaultTokens
func WithTokens(tokens []Token) Option {
	return func(f *Faucet) {
		f.tokens = tokens
	}
}

// WithPause overrides DefaultPause
func WithPause(d time.Duration) Option {
	return func(f *Faucet) {
		f.pause = d
	}
}

// WithNotifier sets where progress is reported
func WithNotifier(n notify.Notifier) Option {
	return func(f *Faucet) {
		f.notifier = n
	}
}

// WithBalanceInvalidator drops cached balances after each mint
func WithBalanceInvalidator(b BalanceInvalidator) Option {
	return func(f *Faucet) {
		f.balances = b
	}
}

// WithLogger sets the faucet's logger
func WithLogger(log zerolog.Logger) Option {
	return func(f *Faucet) {
		f.log = log
	}
}

// New creates a faucet
func New(minter Minter, opts ...Option) *Faucet {
	f := &Faucet{
		minter:   minter,
		tokens:   DefaultTokens,
		pause:    DefaultPause,
		notifier: notify.Discard,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Tokens returns the faucet table
func (f *Faucet) Tokens() []Token {
	return append([]Token(nil), f.tokens...)
}

// Lookup finds a token by symbol, case-insensitively
func (f *Faucet) Lookup(symbol string) (Token, bool) {
	for _, t := range f.tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

// Mint mints one token and waits for the receipt
func (f *Faucet) Mint(ctx context.Context, token Token) (*Minted, error) {
	minted, err := f.mint(ctx, token, token.Symbol, "Waiting for confirmation...")
	if err != nil {
		f.notifier.Error(token.Symbol, fmt.Sprintf("Failed to mint %s", token.Symbol))
		return nil, err
	}
	f.notifier.Success(token.Symbol, fmt.Sprintf("%s %s minted successfully!", token.Amount, token.Symbol))
	return minted, nil
}

// MintAll mints every token in order, pausing between them, and stops at the
// first failure. Mints confirmed before the failure are returned with the error.
func (f *Faucet) MintAll(ctx context.Context) ([]Minted, error) {
	id := f.notifier.Loading("", "Minting all tokens...")

	var out []Minted
	for i, token := range f.tokens {
		progress := fmt.Sprintf("(%d/%d)", i+1, len(f.tokens))
		f.notifier.Loading(id, fmt.Sprintf("Minting %s... %s", token.Symbol, progress))

		minted, err := f.mint(ctx, token, id, fmt.Sprintf("Waiting for %s confirmation... %s", token.Symbol, progress))
		if err != nil {
			f.notifier.Error(id, "Failed to mint some tokens")
			return out, err
		}
		out = append(out, *minted)

		if i < len(f.tokens)-1 && f.pause > 0 {
			select {
			case <-time.After(f.pause):
			case <-ctx.Done():
				f.notifier.Error(id, "Failed to mint some tokens")
				return out, ctx.Err()
			}
		}
	}

	f.notifier.Success(id, "All tokens minted successfully!")
	return out, nil
}

func (f *Faucet) mint(ctx context.Context, token Token, noteID, waiting string) (*Minted, error) {
	amount, err := pricing.ParseUnits(token.Amount, token.Decimals)
	if err != nil {
		return nil, storefront.NewError(storefront.ErrCodeInvalidRequest, err.Error(), map[string]interface{}{
			"symbol": token.Symbol,
		})
	}

	h, err := f.minter.Faucet(ctx, common.HexToAddress(token.Address), amount)
	if err != nil {
		f.log.Error().Err(err).Str("symbol", token.Symbol).Msg("faucet submission failed")
		return nil, err
	}

	f.notifier.Loading(noteID, waiting)
	if _, err := h.Wait(ctx); err != nil {
		f.log.Error().Err(err).Str("symbol", token.Symbol).Str("tx", h.Hash).Msg("faucet transaction failed")
		return nil, err
	}

	if f.balances != nil {
		f.balances.InvalidateBalances()
	}
	f.log.Info().Str("symbol", token.Symbol).Str("amount", token.Amount).Str("tx", h.Hash).Msg("tokens minted")
	return &Minted{Symbol: token.Symbol, Amount: token.Amount, TxHash: h.Hash}, nil
}
