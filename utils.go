package storefront

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidatePurchasable performs basic validation on a catalog item before a purchase
func ValidatePurchasable(item CatalogItem) error {
	if item.ListingID == nil {
		return NewError(ErrCodeNotPurchasable, "listing id is required", map[string]interface{}{"id": item.ID})
	}
	if item.PriceRaw == nil || item.PriceRaw.Sign() <= 0 {
		return NewError(ErrCodeNotPurchasable, "price is required", map[string]interface{}{"id": item.ID})
	}
	if item.PaymentToken == nil {
		return NewError(ErrCodeNotPurchasable, "payment token is required", map[string]interface{}{"id": item.ID})
	}
	return nil
}

// ParseAddress validates and parses a hex address
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, NewError(ErrCodeInvalidRequest, fmt.Sprintf("invalid address: %q", s), nil)
	}
	return common.HexToAddress(s), nil
}

// ParseUint256 parses a non-negative base-10 or 0x-prefixed integer
func ParseUint256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, NewError(ErrCodeInvalidRequest, fmt.Sprintf("invalid amount: %q", s), nil)
	}
	return v, nil
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
