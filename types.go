package storefront

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NotListed is the display price for items without an active, priced listing.
const NotListed = "Not Listed"

// Listing is a marketplace listing as returned by getListing.
// Listings are never mutated locally; they change only through transactions.
type Listing struct {
	ListingID    *big.Int       `json:"listingId"`
	NFTContract  common.Address `json:"nftContract"`
	TokenID      *big.Int       `json:"tokenId"`
	Seller       common.Address `json:"seller"`
	PaymentToken common.Address `json:"paymentToken"`
	Price        *big.Int       `json:"price"`
	Active       bool           `json:"active"`
	ListedAt     time.Time      `json:"listedAt"`
}

// CatalogItem is the reconciled view of one token for presentation.
//
// Price is NotListed exactly when the listing is absent, inactive or
// unpriced. PriceRaw and ListingID are set only for active, priced listings.
type CatalogItem struct {
	ID           string          `json:"id"`
	TokenID      uint64          `json:"tokenId"`
	ListingID    *big.Int        `json:"listingId,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        string          `json:"price"`
	PriceRaw     *big.Int        `json:"priceRaw,omitempty"`
	Image        string          `json:"image"`
	Rarity       string          `json:"rarity"`
	PaymentToken *common.Address `json:"paymentToken,omitempty"`
	Seller       *common.Address `json:"seller,omitempty"`
	Active       *bool           `json:"active,omitempty"`
}

// Purchasable reports whether the item carries everything a purchase needs.
func (i CatalogItem) Purchasable() bool {
	return i.ListingID != nil && i.PriceRaw != nil && i.PaymentToken != nil
}
