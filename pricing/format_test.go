package pricing

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
)

func addr(s string) *common.Address {
	a := common.HexToAddress(s)
	return &a
}

func amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount " + s)
	}
	return v
}

func TestFormatPrice(t *testing.T) {
	usdt := addr(evm.USDTAddress)
	idrx := addr(evm.IDRXAddress)
	other := addr("0x000000000000000000000000000000000000dEaD")

	tests := []struct {
		name     string
		amount   *big.Int
		token    *common.Address
		expected string
	}{
		{"usdt 1.5", amount("1500000"), usdt, "1.5 USDT"},
		{"usdt whole", amount("25000000"), usdt, "25 USDT"},
		{"usdt smallest unit", amount("1"), usdt, "0.000001 USDT"},
		{"usdt thousands", amount("1234567890000"), usdt, "1,234,567.89 USDT"},
		{"idrx 1.5", amount("1500000000000000000"), idrx, "1.5 IDRX"},
		{"idrx large", amount("50000000000000000000000"), idrx, "50,000 IDRX"},
		{"unknown token uses idrx", amount("2000000000000000000"), other, "2 IDRX"},
		{"zero amount", big.NewInt(0), usdt, storefront.NotListed},
		{"nil amount", nil, usdt, storefront.NotListed},
		{"nil token", amount("1500000"), nil, storefront.NotListed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPrice(tt.amount, tt.token))
		})
	}
}

func TestFormatPrice_CaseInsensitiveToken(t *testing.T) {
	lower := common.HexToAddress(strings.ToLower(evm.USDTAddress))
	assert.Equal(t, "1.5 USDT", FormatPrice(amount("1500000"), &lower))
	assert.Equal(t, "USDT", TokenSymbol(strings.ToLower(evm.USDTAddress)))
	assert.Equal(t, int32(6), TokenDecimals("0x"+strings.ToUpper(evm.USDTAddress[2:])))
}

func TestFormatPrice_MaxUint256(t *testing.T) {
	// Exact for the full uint256 range
	out := FormatPrice(evm.MaxUint256, addr(evm.IDRXAddress))
	assert.True(t, strings.HasPrefix(out, "115,792,089,237,316,195,423,570,985,008,687,907,853,269,984,665,640,564,039,457."))
	assert.True(t, strings.HasSuffix(out, " IDRX"))
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		expected string
	}{
		{"1", 6, "0.000001"},
		{"1500000", 6, "1.5"},
		{"1000000", 6, "1"},
		{"0", 18, "0"},
		{"100000000", 8, "1"},
		{"123", 0, "123"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUnits(amount(tt.amount), tt.decimals))
		})
	}
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1000", 6)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", v.String())

	v, err = ParseUnits("1", 8)
	require.NoError(t, err)
	assert.Equal(t, "100000000", v.String())

	v, err = ParseUnits("0.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", v.String())

	_, err = ParseUnits("0.0000001", 6)
	assert.Error(t, err)

	_, err = ParseUnits("-1", 6)
	assert.Error(t, err)

	_, err = ParseUnits("abc", 6)
	assert.Error(t, err)
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.25", "1234.5", "0.000001"} {
		raw, err := ParseUnits(s, 6)
		require.NoError(t, err)
		assert.Equal(t, s, FormatUnits(raw, 6))
	}
}

func TestShortenAddress(t *testing.T) {
	assert.Equal(t, "0x62AF...C75C", ShortenAddress(evm.MarketplaceAddress))
	assert.Equal(t, "0x12", ShortenAddress("0x12"))
}
