package pricing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
)

// Token describes how amounts of one token are displayed
type Token struct {
	Address  string
	Symbol   string
	Decimals int32
}

// Formatter renders raw on-chain amounts as display prices.
//
// Only the configured stablecoin is recognised; every other payment token
// is displayed with the fallback symbol and decimals.
type Formatter struct {
	stablecoin Token
	fallback   Token
}

// NewFormatter creates a formatter for the given stablecoin and fallback token
func NewFormatter(stablecoin, fallback Token) *Formatter {
	return &Formatter{stablecoin: stablecoin, fallback: fallback}
}

// Default formats prices for the Lisk Sepolia deployment: USDT with 6 decimals,
// everything else as IDRX with 18.
var Default = NewFormatter(
	Token{Address: evm.USDTAddress, Symbol: "USDT", Decimals: 6},
	Token{Address: evm.IDRXAddress, Symbol: "IDRX", Decimals: 18},
)

func (f *Formatter) token(address string) Token {
	if storefront.SameAddress(address, f.stablecoin.Address) {
		return f.stablecoin
	}
	return f.fallback
}

// TokenSymbol returns the display symbol for a payment token
func (f *Formatter) TokenSymbol(address string) string {
	return f.token(address).Symbol
}

// TokenDecimals returns the number of decimals used for a payment token
func (f *Formatter) TokenDecimals(address string) int32 {
	return f.token(address).Decimals
}

// FormatPrice renders amount of token, e.g. "1,250.5 USDT".
// A missing amount, a zero amount or a missing token renders as storefront.NotListed.
func (f *Formatter) FormatPrice(amount *big.Int, token *common.Address) string {
	if amount == nil || amount.Sign() == 0 || token == nil {
		return storefront.NotListed
	}
	t := f.token(token.Hex())
	return FormatTokenAmount(amount, t.Decimals, t.Symbol)
}

// FormatUnits converts a raw amount into a plain decimal string with trailing
// zeros trimmed, e.g. FormatUnits(1500000, 6) == "1.5".
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatTokenAmount renders amount with thousands separators and a symbol
func FormatTokenAmount(amount *big.Int, decimals int32, symbol string) string {
	s := withThousands(FormatUnits(amount, decimals))
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}

func withThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	n, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return sign + s
	}
	out := sign + humanize.BigComma(n)
	if hasFrac {
		out += "." + frac
	}
	return out
}

// ParseUnits converts a decimal amount into its raw integer form,
// e.g. ParseUnits("1000", 6) == 1000000000.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// ShortenAddress renders an address as 0x1234...abcd
func ShortenAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// Package-level helpers bound to Default.

// FormatPrice formats with the default formatter
func FormatPrice(amount *big.Int, token *common.Address) string {
	return Default.FormatPrice(amount, token)
}

// TokenSymbol returns the default formatter's symbol for token
func TokenSymbol(address string) string {
	return Default.TokenSymbol(address)
}

// TokenDecimals returns the default formatter's decimals for token
func TokenDecimals(address string) int32 {
	return Default.TokenDecimals(address)
}
