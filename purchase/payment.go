package purchase

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/pricing"
)

// PaymentMethod selects how the selected item is paid for.
// It is one of DirectChainPayment or ThirdPartyWidgetPayment.
type PaymentMethod interface {
	methodName() string
}

// DirectChainPayment pays from the signer's wallet: approve if needed, then buyNFT
type DirectChainPayment struct{}

// ThirdPartyWidgetPayment hands the purchase to an external payment widget,
// which executes buyNFTFor on the buyer's behalf and reports back through
// CompleteWidgetPayment.
type ThirdPartyWidgetPayment struct{}

func (DirectChainPayment) methodName() string      { return "direct" }
func (ThirdPartyWidgetPayment) methodName() string { return "widget" }

// ParseMethod maps "direct" and "widget" to a payment method
func ParseMethod(name string) (PaymentMethod, bool) {
	switch name {
	case "", "direct":
		return DirectChainPayment{}, true
	case "widget":
		return ThirdPartyWidgetPayment{}, true
	}
	return nil, false
}

// Action is what a Pay call did
type Action string

const (
	ActionApprove Action = "approve"
	ActionBuy     Action = "buy"
	ActionWidget  Action = "widget"
)

// PayResult describes the step Pay started
type PayResult struct {
	Action   Action          `json:"action"`
	TxHash   string          `json:"txHash,omitempty"`
	Checkout *WidgetCheckout `json:"checkout,omitempty"`

	// Tx settles when the submitted transaction is mined
	Tx *evm.TxHandle `json:"-"`
}

// WidgetLineItem is one row of the widget's order summary
type WidgetLineItem struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

// WidgetCheckout is everything the payment widget needs to settle a purchase
type WidgetCheckout struct {
	Target      string           `json:"target"`
	CallData    string           `json:"callData"`
	Merchant    string           `json:"merchantAddress"`
	TotalAmount string           `json:"totalAmount"`
	Currency    string           `json:"currency"`
	Items       []WidgetLineItem `json:"items"`
	SettleInIDR bool             `json:"settleInIDR"`
}

// WidgetCurrency is the currency the widget quotes in
const WidgetCurrency = "USD"

// WidgetResult is what the widget reports once it finishes
type WidgetResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BuildWidgetCheckout prepares a buyNFTFor checkout of item for buyer
func BuildWidgetCheckout(item storefront.CatalogItem, marketplace, buyer common.Address, formatter *pricing.Formatter) (*WidgetCheckout, error) {
	if err := storefront.ValidatePurchasable(item); err != nil {
		return nil, err
	}
	if item.Seller == nil {
		return nil, storefront.NewError(storefront.ErrCodeNotPurchasable, "listing has no seller to settle with", map[string]interface{}{
			"id": item.ID,
		})
	}

	data, err := evm.EncodeBuyNFTFor(item.ListingID, buyer)
	if err != nil {
		return nil, err
	}

	amount := pricing.FormatUnits(item.PriceRaw, formatter.TokenDecimals(item.PaymentToken.Hex()))
	return &WidgetCheckout{
		Target:      marketplace.Hex(),
		CallData:    "0x" + hex.EncodeToString(data),
		Merchant:    item.Seller.Hex(),
		TotalAmount: amount,
		Currency:    WidgetCurrency,
		Items:       []WidgetLineItem{{Name: item.Name, Price: amount}},
		SettleInIDR: false,
	}, nil
}

// approvalAmount returns what to approve for a purchase at price
func approvalAmount(policy ApprovalPolicy, price *big.Int) *big.Int {
	if policy == ApprovalUnlimited {
		return new(big.Int).Set(evm.MaxUint256)
	}
	return new(big.Int).Set(price)
}
