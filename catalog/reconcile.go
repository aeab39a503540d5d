package catalog

import (
	"math/big"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/metadata"
	"github.com/nftmarket/storefront/pricing"
	"github.com/nftmarket/storefront/query"
)

// Entry associates a catalog token with the listing that sells it
type Entry struct {
	TokenID   uint64 `toml:"token_id" json:"tokenId"`
	ListingID uint64 `toml:"listing_id" json:"listingId"`
}

// Snapshot is the complete input of one reconciliation: the catalog order and
// the latest known result of every metadata and listing query.
type Snapshot struct {
	Entries []Entry

	// URIs is keyed by token id
	URIs map[uint64]query.Result[string]

	// Listings is keyed by the listing id the query was issued for
	Listings map[uint64]query.Result[*storefront.Listing]
}

// Reconcile joins metadata and listing results into catalog items, one per
// entry and in entry order. It is a pure function of its inputs; pending or
// failed queries degrade an item but never drop it.
func Reconcile(s Snapshot, decoder *metadata.Decoder, formatter *pricing.Formatter) []storefront.CatalogItem {
	byListingID := resolvedListings(s.Listings)

	items := make([]storefront.CatalogItem, len(s.Entries))
	for i, e := range s.Entries {
		items[i] = buildItem(e, s.URIs[e.TokenID], byListingID[e.ListingID], decoder, formatter)
	}
	return items
}

// resolvedListings indexes resolved listings by the id they report, not the
// id they were queried with. Unknown ids resolve to a zeroed listing and so
// never match a configured entry.
func resolvedListings(results map[uint64]query.Result[*storefront.Listing]) map[uint64]*storefront.Listing {
	keys := make([]uint64, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make(map[uint64]*storefront.Listing, len(results))
	for _, k := range keys {
		res := results[k]
		if !res.Resolved() || res.Data == nil || res.Data.ListingID == nil || !res.Data.ListingID.IsUint64() {
			continue
		}
		id := res.Data.ListingID.Uint64()
		if _, taken := out[id]; !taken {
			out[id] = res.Data
		}
	}
	return out
}

func buildItem(e Entry, uri query.Result[string], listing *storefront.Listing, decoder *metadata.Decoder, formatter *pricing.Formatter) storefront.CatalogItem {
	item := storefront.CatalogItem{
		ID:      strconv.FormatUint(e.TokenID, 10),
		TokenID: e.TokenID,
		Name:    "#" + strconv.FormatUint(e.TokenID, 10),
		Price:   storefront.NotListed,
		Image:   metadata.PlaceholderImage,
		Rarity:  metadata.DefaultRarity,
	}

	if uri.Resolved() && uri.Data != "" {
		meta := decoder.Decode(uri.Data)
		if meta != nil {
			if meta.Name != "" {
				item.Name = meta.Name
			}
			item.Description = meta.Description
		}
		item.Image = metadata.ImageURL(meta)
		item.Rarity = metadata.Rarity(meta)
	}

	if listing == nil {
		return item
	}

	active := listing.Active
	item.Active = &active
	if listing.Seller != (common.Address{}) {
		seller := listing.Seller
		item.Seller = &seller
	}
	if listing.PaymentToken != (common.Address{}) {
		token := listing.PaymentToken
		item.PaymentToken = &token
	}

	// Only an active listing with a price and a payment token is purchasable
	if active && item.PaymentToken != nil && listing.Price != nil && listing.Price.Sign() > 0 {
		item.ListingID = new(big.Int).Set(listing.ListingID)
		item.PriceRaw = new(big.Int).Set(listing.Price)
		item.Price = formatter.FormatPrice(item.PriceRaw, item.PaymentToken)
	}
	return item
}
