package catalog

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/metadata"
	"github.com/nftmarket/storefront/pricing"
	"github.com/nftmarket/storefront/query"
)

// DefaultConcurrency caps how many reads Refresh runs at once
const DefaultConcurrency = 8

// Source is the part of the chain read gateway the catalog reads from
type Source interface {
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
	GetListing(ctx context.Context, listingID *big.Int) (*storefront.Listing, error)
	InvalidateListing(listingID *big.Int)
}

// Reconciler keeps the latest result of every metadata and listing query and
// derives the catalog from them. Results may arrive in any order.
type Reconciler struct {
	source      Source
	entries     []Entry
	decoder     *metadata.Decoder
	formatter   *pricing.Formatter
	concurrency int
	onRecompute func()
	log         zerolog.Logger

	mu       sync.Mutex
	uris     map[uint64]query.Result[string]
	listings map[uint64]query.Result[*storefront.Listing]
	version  uint64
	items    []storefront.CatalogItem
	built    uint64
	subs     map[int]func([]storefront.CatalogItem)
	nextSub  int

	// notifyMu serialises deliveries; delivered is the last version sent
	notifyMu  sync.Mutex
	delivered uint64
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the reconciler's logger
func WithLogger(log zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.log = log
	}
}

// WithDecoder overrides the metadata decoder
func WithDecoder(d *metadata.Decoder) Option {
	return func(r *Reconciler) {
		r.decoder = d
	}
}

// WithFormatter overrides pricing.Default
func WithFormatter(f *pricing.Formatter) Option {
	return func(r *Reconciler) {
		r.formatter = f
	}
}

// WithConcurrency overrides DefaultConcurrency
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRecomputeObserver registers a callback invoked each time the catalog is rebuilt
func WithRecomputeObserver(fn func()) Option {
	return func(r *Reconciler) {
		r.onRecompute = fn
	}
}

// New creates a reconciler over the given catalog entries. Every query starts pending.
func New(source Source, entries []Entry, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:      source,
		entries:     append([]Entry(nil), entries...),
		decoder:     metadata.NewDecoder(),
		formatter:   pricing.Default,
		concurrency: DefaultConcurrency,
		log:         zerolog.Nop(),
		uris:        make(map[uint64]query.Result[string]),
		listings:    make(map[uint64]query.Result[*storefront.Listing]),
		subs:        make(map[int]func([]storefront.CatalogItem)),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, e := range r.entries {
		r.uris[e.TokenID] = query.Pending[string]()
		r.listings[e.ListingID] = query.Pending[*storefront.Listing]()
	}
	r.version = 1
	return r
}

// Entries returns the catalog order
func (r *Reconciler) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// SetTokenURI records the latest metadata query result for a token
func (r *Reconciler) SetTokenURI(tokenID uint64, res query.Result[string]) {
	r.mu.Lock()
	r.uris[tokenID] = res
	r.version++
	r.mu.Unlock()
	r.notify()
}

// SetListing records the latest listing query result for a listing id
func (r *Reconciler) SetListing(listingID uint64, res query.Result[*storefront.Listing]) {
	r.mu.Lock()
	r.listings[listingID] = res
	r.version++
	r.mu.Unlock()
	r.notify()
}

// Items returns the catalog in entry order. The array is rebuilt only when
// a query result changed since the last call.
func (r *Reconciler) Items() []storefront.CatalogItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsLocked()
}

func (r *Reconciler) itemsLocked() []storefront.CatalogItem {
	if r.built != r.version {
		r.items = Reconcile(Snapshot{
			Entries:  r.entries,
			URIs:     r.uris,
			Listings: r.listings,
		}, r.decoder, r.formatter)
		r.built = r.version
		if r.onRecompute != nil {
			r.onRecompute()
		}
	}
	return append([]storefront.CatalogItem(nil), r.items...)
}

// Item finds one catalog item by id
func (r *Reconciler) Item(id string) (storefront.CatalogItem, bool) {
	for _, item := range r.Items() {
		if item.ID == id {
			return item, true
		}
	}
	return storefront.CatalogItem{}, false
}

// Subscribe registers fn to receive the catalog after every change.
// Deliveries never go backwards: a subscriber always ends up holding the
// latest catalog, though bursts of changes may be coalesced into one call.
// fn must not modify the reconciler. The returned function removes the
// subscription.
func (r *Reconciler) Subscribe(fn func([]storefront.CatalogItem)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) notify() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if len(r.subs) == 0 || r.version <= r.delivered {
		r.mu.Unlock()
		return
	}
	items := r.itemsLocked()
	r.delivered = r.version
	subs := make([]func([]storefront.CatalogItem), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(items)
	}
}

// Refresh reads every token URI and listing concurrently and applies each
// result as it arrives. Read failures are stored as error results.
func (r *Reconciler) Refresh(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	seen := make(map[uint64]bool, len(r.entries))
	for _, e := range r.entries {
		tokenID := e.TokenID
		g.Go(func() error {
			uri, err := r.source.TokenURI(gctx, new(big.Int).SetUint64(tokenID))
			if err != nil {
				r.log.Warn().Err(err).Uint64("token_id", tokenID).Msg("token uri read failed")
			}
			r.SetTokenURI(tokenID, query.From(uri, err))
			return nil
		})

		if seen[e.ListingID] {
			continue
		}
		seen[e.ListingID] = true
		listingID := e.ListingID
		g.Go(func() error {
			r.fetchListing(gctx, listingID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// RefreshListing drops the cached listing and reads it again.
func (r *Reconciler) RefreshListing(ctx context.Context, listingID *big.Int) {
	if listingID == nil || !listingID.IsUint64() {
		return
	}
	r.source.InvalidateListing(listingID)
	r.fetchListing(ctx, listingID.Uint64())
}

func (r *Reconciler) fetchListing(ctx context.Context, listingID uint64) {
	listing, err := r.source.GetListing(ctx, new(big.Int).SetUint64(listingID))
	if err != nil {
		r.log.Warn().Err(err).Uint64("listing_id", listingID).Msg("listing read failed")
	}
	r.SetListing(listingID, query.From(listing, err))
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.log.Warn().Err(err).Msg("catalog refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn().Err(err).Msg("catalog refresh failed")
			}
		}
	}
}
