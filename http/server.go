// Package http serves the storefront API over gin.
package http

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/faucet"
	"github.com/nftmarket/storefront/metrics"
	"github.com/nftmarket/storefront/notify"
	"github.com/nftmarket/storefront/prefs"
	"github.com/nftmarket/storefront/purchase"
)

// CatalogService is the catalog the API exposes
type CatalogService interface {
	Items() []storefront.CatalogItem
	Item(id string) (storefront.CatalogItem, bool)
	Refresh(ctx context.Context) error
	RefreshListing(ctx context.Context, listingID *big.Int)
}

// ListingWriter submits seller-side marketplace transactions
type ListingWriter interface {
	Address() common.Address
	Marketplace() common.Address
	ListNFT(ctx context.Context, nftContract common.Address, tokenID *big.Int, paymentToken common.Address, price *big.Int) (*evm.TxHandle, error)
	CancelListing(ctx context.Context, listingID *big.Int) (*evm.TxHandle, error)
	UpdateListingPrice(ctx context.Context, listingID, newPrice *big.Int) (*evm.TxHandle, error)
	SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*evm.TxHandle, error)
}

// ChainStatus reads the collection state seller actions depend on
type ChainStatus interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	InvalidateApprovalForAll(owner, operator common.Address)
}

// Deps are the components behind the API. Chain, Faucet and Metrics are
// optional; without Chain seller actions are submitted unchecked.
type Deps struct {
	Catalog       CatalogService
	Sequencer     *purchase.Sequencer
	Listings      ListingWriter
	Chain         ChainStatus
	NFT           common.Address
	Notifications *notify.Center
	Preferences   *prefs.State
	Faucet        *faucet.Faucet
	Metrics       *metrics.Metrics
}

// Server is the storefront API
type Server struct {
	deps           Deps
	handler        http.Handler
	allowedOrigins []string
	ratePerMinute  int
	log            zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins; empty means any origin
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRatePerMinute limits requests per client IP; zero disables the limit
func WithRatePerMinute(n int) Option {
	return func(s *Server) {
		s.ratePerMinute = n
	}
}

// WithLogger sets the server's logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer builds the routes and middleware
func NewServer(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps: deps,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// A confirmed purchase deactivates its listing
	deps.Sequencer.OnPurchaseConfirmed(func(tc storefront.TransactionContext) error {
		if tc.Item.ListingID != nil {
			deps.Catalog.RefreshListing(context.Background(), tc.Item.ListingID)
		}
		return nil
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.recoverer(), s.requestLogger())
	s.routes(r)

	var h http.Handler = r
	if s.ratePerMinute > 0 {
		h = httprate.LimitByIP(s.ratePerMinute, time.Minute)(h)
	}
	s.handler = newCORSHandler(s.allowedOrigins, h)
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	r.GET("/catalog", s.listCatalog)
	r.GET("/catalog/:id", s.getCatalogItem)
	r.POST("/catalog/refresh", s.refreshCatalog)

	r.GET("/selection", s.getSelection)
	r.PUT("/selection", s.putSelection)
	r.DELETE("/selection", s.deleteSelection)

	r.POST("/purchase", s.pay)
	r.POST("/purchase/widget", s.payWidget)
	r.POST("/purchase/widget/result", s.widgetResult)

	r.POST("/listings", s.createListing)
	r.DELETE("/listings/:id", s.cancelListing)
	r.PATCH("/listings/:id", s.updateListingPrice)
	r.POST("/listings/approve", s.approveMarketplace)

	r.POST("/faucet", s.mint)

	r.GET("/notifications", s.listNotifications)
	r.DELETE("/notifications/:id", s.dismissNotification)

	r.GET("/preferences/theme", s.getTheme)
	r.PUT("/preferences/theme", s.putTheme)
	r.POST("/preferences/theme/toggle", s.toggleTheme)
}

// Handler returns the API wrapped in CORS and rate limiting
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // faucet mints wait for several receipts
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("storefront API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down storefront API")
		return srv.Shutdown(shutdownCtx)
	}
}

func newCORSHandler(allowedOrigins []string, next http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Wildcard origins cannot be combined with credentials
	allowCredentials := !(len(allowedOrigins) == 1 && allowedOrigins[0] == "*")

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           7200,
	}).Handler(next)
}
