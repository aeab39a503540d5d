package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/query"
)

// DefaultStaleTime is how long a read result is served from cache
const DefaultStaleTime = 10 * time.Second

// listingTuple mirrors the getListing return tuple. Field names must match
// the ABI component names after camel-casing.
type listingTuple struct {
	ListingId    *big.Int
	NftContract  common.Address
	TokenId      *big.Int
	Seller       common.Address
	PaymentToken common.Address
	Price        *big.Int
	Active       bool
	ListedAt     *big.Int
}

// ReadObserver is notified after every network read
type ReadObserver func(method string, err error)

// Reader is the chain read gateway. Every read is keyed by its arguments,
// cached for the stale time and de-duplicated while in flight.
type Reader struct {
	client      ContractReader
	marketplace string
	nft         string
	cache       *query.Cache[interface{}]
	observe     ReadObserver
	log         zerolog.Logger
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithStaleTime overrides DefaultStaleTime
func WithStaleTime(d time.Duration) ReaderOption {
	return func(r *Reader) {
		r.cache = query.NewCache[interface{}](d)
	}
}

// WithReadObserver registers a callback invoked after each network read
func WithReadObserver(fn ReadObserver) ReaderOption {
	return func(r *Reader) {
		r.observe = fn
	}
}

// WithReaderLogger sets the reader's logger
func WithReaderLogger(log zerolog.Logger) ReaderOption {
	return func(r *Reader) {
		r.log = log
	}
}

// NewReader creates a read gateway for the given marketplace and collection
func NewReader(client ContractReader, marketplace, nft string, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:      client,
		marketplace: marketplace,
		nft:         nft,
		cache:       query.NewCache[interface{}](DefaultStaleTime),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListingKey is the cache key of a getListing read
func ListingKey(listingID *big.Int) string {
	return query.Key("listing", listingID)
}

// TokenURIKey is the cache key of a tokenURI read
func TokenURIKey(tokenID *big.Int) string {
	return query.Key("tokenURI", tokenID)
}

// ApprovalForAllKey is the cache key of an isApprovedForAll read
func ApprovalForAllKey(owner, operator common.Address) string {
	return query.Key("approvedForAll", owner.Hex(), operator.Hex())
}

// AllowanceKey is the cache key of an allowance read
func AllowanceKey(token, owner, spender common.Address) string {
	return query.Key("allowance", token.Hex(), owner.Hex(), spender.Hex())
}

// fetch runs one keyed read through the cache and asserts its type
func fetch[T any](ctx context.Context, r *Reader, method, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := r.cache.Fetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		out, err := fn(ctx)
		if r.observe != nil {
			r.observe(method, err)
		}
		if err != nil {
			r.log.Debug().Err(err).Str("method", method).Str("key", key).Msg("chain read failed")
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return zero, storefront.NewError(storefront.ErrCodeReadFailed, fmt.Sprintf("%s: %v", method, err), map[string]interface{}{"key": key})
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", method, v)
	}
	return typed, nil
}

// GetListing reads one marketplace listing
func (r *Reader) GetListing(ctx context.Context, listingID *big.Int) (*storefront.Listing, error) {
	return fetch(ctx, r, FunctionGetListing, ListingKey(listingID), func(ctx context.Context) (*storefront.Listing, error) {
		out, err := r.client.ReadContract(ctx, r.marketplace, MarketplaceABI, FunctionGetListing, listingID)
		if err != nil {
			return nil, err
		}
		return decodeListing(out)
	})
}

func decodeListing(out interface{}) (listing *storefront.Listing, err error) {
	if out == nil {
		return nil, fmt.Errorf("empty getListing result")
	}
	defer func() {
		if p := recover(); p != nil {
			listing, err = nil, fmt.Errorf("unexpected getListing result %T: %v", out, p)
		}
	}()

	t := *abi.ConvertType(out, new(listingTuple)).(*listingTuple)
	listing = &storefront.Listing{
		ListingID:    t.ListingId,
		NFTContract:  t.NftContract,
		TokenID:      t.TokenId,
		Seller:       t.Seller,
		PaymentToken: t.PaymentToken,
		Price:        t.Price,
		Active:       t.Active,
	}
	if t.ListedAt != nil && t.ListedAt.IsInt64() {
		listing.ListedAt = time.Unix(t.ListedAt.Int64(), 0).UTC()
	}
	return listing, nil
}

// Paused reports whether the marketplace is paused
func (r *Reader) Paused(ctx context.Context) (bool, error) {
	return fetch(ctx, r, FunctionPaused, query.Key("paused"), func(ctx context.Context) (bool, error) {
		return readBool(ctx, r.client, r.marketplace, MarketplaceABI, FunctionPaused)
	})
}

// TokenURI reads the metadata URI of a token
func (r *Reader) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	return fetch(ctx, r, FunctionTokenURI, TokenURIKey(tokenID), func(ctx context.Context) (string, error) {
		out, err := r.client.ReadContract(ctx, r.nft, NFTABI, FunctionTokenURI, tokenID)
		if err != nil {
			return "", err
		}
		uri, ok := out.(string)
		if !ok {
			return "", fmt.Errorf("unexpected tokenURI type: %T", out)
		}
		return uri, nil
	})
}

// OwnerOf reads the current owner of a token
func (r *Reader) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	return fetch(ctx, r, FunctionOwnerOf, query.Key("owner", tokenID), func(ctx context.Context) (common.Address, error) {
		out, err := r.client.ReadContract(ctx, r.nft, NFTABI, FunctionOwnerOf, tokenID)
		if err != nil {
			return common.Address{}, err
		}
		addr, ok := out.(common.Address)
		if !ok {
			return common.Address{}, fmt.Errorf("unexpected ownerOf type: %T", out)
		}
		return addr, nil
	})
}

// IsApprovedForAll reports whether operator may transfer all of owner's tokens
func (r *Reader) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return fetch(ctx, r, FunctionIsApprovedForAll, ApprovalForAllKey(owner, operator), func(ctx context.Context) (bool, error) {
		return readBool(ctx, r.client, r.nft, NFTABI, FunctionIsApprovedForAll, owner, operator)
	})
}

// Allowance reads how much of token spender may move on behalf of owner
func (r *Reader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return fetch(ctx, r, FunctionAllowance, AllowanceKey(token, owner, spender), func(ctx context.Context) (*big.Int, error) {
		return readBigInt(ctx, r.client, token.Hex(), ERC20ABI, FunctionAllowance, owner, spender)
	})
}

// BalanceOf reads an account's token balance
func (r *Reader) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	key := query.Key("balance", token.Hex(), account.Hex())
	return fetch(ctx, r, FunctionBalanceOf, key, func(ctx context.Context) (*big.Int, error) {
		return readBigInt(ctx, r.client, token.Hex(), ERC20ABI, FunctionBalanceOf, account)
	})
}

// Invalidate drops one cached read
func (r *Reader) Invalidate(key string) {
	r.cache.Invalidate(key)
}

// InvalidateListing drops the cached listing for a listing id
func (r *Reader) InvalidateListing(listingID *big.Int) {
	r.cache.Invalidate(ListingKey(listingID))
}

// InvalidateApprovalForAll drops the cached operator approval
func (r *Reader) InvalidateApprovalForAll(owner, operator common.Address) {
	r.cache.Invalidate(ApprovalForAllKey(owner, operator))
}

// InvalidateAllowance drops the cached allowance for owner/spender on token
func (r *Reader) InvalidateAllowance(token, owner, spender common.Address) {
	r.cache.Invalidate(AllowanceKey(token, owner, spender))
}

// InvalidateBalances drops every cached token balance
func (r *Reader) InvalidateBalances() {
	r.cache.InvalidatePrefix(query.Key("balance"))
}

func readBigInt(ctx context.Context, client ContractReader, address string, contractABI []byte, method string, args ...interface{}) (*big.Int, error) {
	out, err := client.ReadContract(ctx, address, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type: %T", method, out)
	}
	return v, nil
}

func readBool(ctx context.Context, client ContractReader, address string, contractABI []byte, method string, args ...interface{}) (bool, error) {
	out, err := client.ReadContract(ctx, address, contractABI, method, args...)
	if err != nil {
		return false, err
	}
	v, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected %s type: %T", method, out)
	}
	return v, nil
}
