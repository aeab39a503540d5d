package catalog_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/catalog"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/metadata"
	"github.com/nftmarket/storefront/pricing"
	"github.com/nftmarket/storefront/query"
	"github.com/nftmarket/storefront/test/mocks/chain"
)

const signer = "0x00000000000000000000000000000000000000B0"

func entries(n int) []catalog.Entry {
	out := make([]catalog.Entry, n)
	for i := range out {
		out[i] = catalog.Entry{TokenID: uint64(i + 1), ListingID: uint64(i + 1)}
	}
	return out
}

func metadataURI(name, rarity string) string {
	doc := fmt.Sprintf(`{"name":%q,"description":"d","image":"ipfs://img/%s","attributes":[{"trait_type":"Rarity","value":%q}]}`, name, name, rarity)
	return metadata.Base64JSONPrefix + base64.StdEncoding.EncodeToString([]byte(doc))
}

func activeListing(id uint64, price int64) *storefront.Listing {
	return &storefront.Listing{
		ListingID:    new(big.Int).SetUint64(id),
		TokenID:      new(big.Int).SetUint64(id),
		Seller:       common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		PaymentToken: common.HexToAddress(evm.USDTAddress),
		Price:        big.NewInt(price),
		Active:       true,
	}
}

func TestReconcile_DefaultsWhilePending(t *testing.T) {
	items := catalog.Reconcile(catalog.Snapshot{Entries: entries(2)}, metadata.NewDecoder(), pricing.Default)
	require.Len(t, items, 2)

	item := items[1]
	assert.Equal(t, "2", item.ID)
	assert.Equal(t, "#2", item.Name)
	assert.Equal(t, storefront.NotListed, item.Price)
	assert.Equal(t, metadata.PlaceholderImage, item.Image)
	assert.Equal(t, metadata.DefaultRarity, item.Rarity)
	assert.Nil(t, item.ListingID)
	assert.Nil(t, item.Active)
	assert.False(t, item.Purchasable())
}

func TestReconcile_FullItem(t *testing.T) {
	s := catalog.Snapshot{
		Entries: entries(1),
		URIs: map[uint64]query.Result[string]{
			1: query.Success(metadataURI("Ember", "Legendary")),
		},
		Listings: map[uint64]query.Result[*storefront.Listing]{
			1: query.Success(activeListing(1, 1500000)),
		},
	}

	items := catalog.Reconcile(s, metadata.NewDecoder(), pricing.Default)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Ember", item.Name)
	assert.Equal(t, "d", item.Description)
	assert.Equal(t, metadata.IPFSGateway+"img/Ember", item.Image)
	assert.Equal(t, "Legendary", item.Rarity)
	assert.Equal(t, "1.5 USDT", item.Price)
	assert.Equal(t, int64(1500000), item.PriceRaw.Int64())
	assert.Equal(t, int64(1), item.ListingID.Int64())
	require.NotNil(t, item.Active)
	assert.True(t, *item.Active)
	assert.True(t, item.Purchasable())
}

func TestReconcile_Degradation(t *testing.T) {
	inactive := activeListing(2, 100)
	inactive.Active = false
	zeroPrice := activeListing(3, 0)

	tests := []struct {
		name        string
		uri         query.Result[string]
		listing     query.Result[*storefront.Listing]
		listingID   uint64
		wantName    string
		wantPrice   string
		wantActive  *bool
		purchasable bool
	}{
		{
			name:      "undecodable metadata keeps fallback name",
			uri:       query.Success("not json"),
			listing:   query.Pending[*storefront.Listing](),
			listingID: 1,
			wantName:  "#1",
			wantPrice: storefront.NotListed,
		},
		{
			name:      "ipfs metadata is not fetched",
			uri:       query.Success("ipfs://QmMeta"),
			listing:   query.Pending[*storefront.Listing](),
			listingID: 1,
			wantName:  "#1",
			wantPrice: storefront.NotListed,
		},
		{
			name:      "read error treated as absent",
			uri:       query.Failure[string](errors.New("rpc down")),
			listing:   query.Failure[*storefront.Listing](errors.New("rpc down")),
			listingID: 1,
			wantName:  "#1",
			wantPrice: storefront.NotListed,
		},
		{
			name:       "inactive listing",
			uri:        query.Success(metadataURI("Ash", "Rare")),
			listing:    query.Success(inactive),
			listingID:  2,
			wantName:   "Ash",
			wantPrice:  storefront.NotListed,
			wantActive: boolPtr(false),
		},
		{
			name:       "zero price is not purchasable",
			uri:        query.Success(metadataURI("Dust", "Common")),
			listing:    query.Success(zeroPrice),
			listingID:  3,
			wantName:   "Dust",
			wantPrice:  storefront.NotListed,
			wantActive: boolPtr(true),
		},
		{
			name:      "unknown listing id resolves to zero and never matches",
			uri:       query.Success(metadataURI("Void", "Common")),
			listing:   query.Success(&storefront.Listing{ListingID: big.NewInt(0), Price: big.NewInt(0)}),
			listingID: 9,
			wantName:  "Void",
			wantPrice: storefront.NotListed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := catalog.Snapshot{
				Entries:  []catalog.Entry{{TokenID: 1, ListingID: tt.listingID}},
				URIs:     map[uint64]query.Result[string]{1: tt.uri},
				Listings: map[uint64]query.Result[*storefront.Listing]{tt.listingID: tt.listing},
			}
			items := catalog.Reconcile(s, metadata.NewDecoder(), pricing.Default)
			require.Len(t, items, 1)

			item := items[0]
			assert.Equal(t, tt.wantName, item.Name)
			assert.Equal(t, tt.wantPrice, item.Price)
			assert.Equal(t, tt.wantActive, item.Active)
			assert.Equal(t, tt.purchasable, item.Purchasable())
		})
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func TestReconcile_Idempotent(t *testing.T) {
	s := catalog.Snapshot{
		Entries:  entries(3),
		URIs:     map[uint64]query.Result[string]{2: query.Success(metadataURI("B", "Epic"))},
		Listings: map[uint64]query.Result[*storefront.Listing]{3: query.Success(activeListing(3, 2000000))},
	}
	d := metadata.NewDecoder()
	assert.Equal(t, catalog.Reconcile(s, d, pricing.Default), catalog.Reconcile(s, d, pricing.Default))
}

func TestReconciler_ArrivalOrderIndependent(t *testing.T) {
	const n = 12

	type update struct {
		token   bool
		id      uint64
		uri     string
		listing *storefront.Listing
	}
	var updates []update
	for i := uint64(1); i <= n; i++ {
		updates = append(updates,
			update{token: true, id: i, uri: metadataURI("Item"+strconv.FormatUint(i, 10), "Rare")},
			update{id: i, listing: activeListing(i, int64(i)*1000000)},
		)
	}

	apply := func(order []update) []storefront.CatalogItem {
		r := catalog.New(nil, entries(n))
		for _, u := range order {
			if u.token {
				r.SetTokenURI(u.id, query.Success(u.uri))
			} else {
				r.SetListing(u.id, query.Success(u.listing))
			}
		}
		return r.Items()
	}

	want := apply(updates)
	require.Len(t, want, n)
	for i, item := range want {
		assert.Equal(t, strconv.Itoa(i+1), item.ID)
		assert.Equal(t, "Item"+strconv.Itoa(i+1), item.Name)
		assert.Equal(t, fmt.Sprintf("%d USDT", i+1), item.Price)
	}

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 10; round++ {
		shuffled := append([]update(nil), updates...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, apply(shuffled), "round %d", round)
	}
}

func TestReconciler_MemoisedAndSubscribed(t *testing.T) {
	var recomputed int
	r := catalog.New(nil, entries(2), catalog.WithRecomputeObserver(func() { recomputed++ }))

	r.Items()
	r.Items()
	assert.Equal(t, 1, recomputed)

	var mu sync.Mutex
	var seen [][]storefront.CatalogItem
	unsubscribe := r.Subscribe(func(items []storefront.CatalogItem) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, items)
	})

	r.SetTokenURI(1, query.Success(metadataURI("First", "Common")))
	require.Len(t, seen, 1)
	assert.Equal(t, "First", seen[0][0].Name)
	assert.Equal(t, 2, recomputed)

	unsubscribe()
	r.SetTokenURI(2, query.Success(metadataURI("Second", "Common")))
	assert.Len(t, seen, 1)

	item, ok := r.Item("2")
	require.True(t, ok)
	assert.Equal(t, "Second", item.Name)

	_, ok = r.Item("99")
	assert.False(t, ok)
}

func TestReconciler_SubscribersEndOnLatest(t *testing.T) {
	r := catalog.New(nil, entries(1))

	release := make(chan struct{})
	var (
		mu    sync.Mutex
		calls int
		last  string
	)
	r.Subscribe(func(items []storefront.CatalogItem) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			<-release
		}
		mu.Lock()
		last = items[0].Price
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.SetListing(1, query.Success(activeListing(1, 100)))
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, time.Millisecond)

	// A newer result lands while the first delivery is still running
	go func() {
		defer wg.Done()
		r.SetListing(1, query.Success(activeListing(1, 2000000)))
	}()
	require.Eventually(t, func() bool {
		item, _ := r.Item("1")
		return item.Price == "2 USDT"
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "2 USDT", last)
	item, _ := r.Item("1")
	assert.Equal(t, item.Price, last)
}

func TestReconciler_Refresh(t *testing.T) {
	c := chain.New(signer, evm.MarketplaceAddress, evm.MockNFTAddress)
	for i := int64(1); i <= 4; i++ {
		c.SetTokenURI(i, metadataURI("Token"+strconv.FormatInt(i, 10), "Rare"))
		c.SetListing(chain.Listing{
			ListingId:    big.NewInt(i),
			NftContract:  common.HexToAddress(evm.MockNFTAddress),
			TokenId:      big.NewInt(i),
			Seller:       common.HexToAddress("0x00000000000000000000000000000000000000a1"),
			PaymentToken: common.HexToAddress(evm.USDTAddress),
			Price:        big.NewInt(i * 500000),
			Active:       i != 3,
			ListedAt:     big.NewInt(1700000000),
		})
	}
	// token 5 has no metadata on chain and no listing
	reader := evm.NewReader(c, evm.MarketplaceAddress, evm.MockNFTAddress)
	r := catalog.New(reader, entries(5), catalog.WithConcurrency(2))

	require.NoError(t, r.Refresh(context.Background()))

	items := r.Items()
	require.Len(t, items, 5)
	assert.Equal(t, "Token1", items[0].Name)
	assert.Equal(t, "0.5 USDT", items[0].Price)
	assert.True(t, items[1].Purchasable())
	assert.False(t, items[2].Purchasable())
	assert.Equal(t, "#5", items[4].Name)
	assert.Equal(t, storefront.NotListed, items[4].Price)

	// A purchase elsewhere deactivates listing 1
	l, _ := c.ListingState(1)
	l.Active = false
	c.SetListing(l)

	r.RefreshListing(context.Background(), big.NewInt(1))
	item, _ := r.Item("1")
	assert.False(t, item.Purchasable())
	assert.Equal(t, storefront.NotListed, item.Price)
}

func TestReconciler_RunRefreshesBeforeFirstTick(t *testing.T) {
	c := chain.New(signer, evm.MarketplaceAddress, evm.MockNFTAddress)
	c.SetTokenURI(1, metadataURI("Token1", "Rare"))
	c.SetListing(chain.Listing{
		ListingId:    big.NewInt(1),
		NftContract:  common.HexToAddress(evm.MockNFTAddress),
		TokenId:      big.NewInt(1),
		Seller:       common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		PaymentToken: common.HexToAddress(evm.USDTAddress),
		Price:        big.NewInt(500000),
		Active:       true,
		ListedAt:     big.NewInt(1700000000),
	})
	reader := evm.NewReader(c, evm.MarketplaceAddress, evm.MockNFTAddress)
	r := catalog.New(reader, entries(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, time.Hour)
	}()

	require.Eventually(t, func() bool {
		item, _ := r.Item("1")
		return item.Name == "Token1" && item.Purchasable()
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, c.Reads(evm.FunctionGetListing))

	cancel()
	<-done
}
