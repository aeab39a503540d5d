package http

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/faucet"
	"github.com/nftmarket/storefront/prefs"
	"github.com/nftmarket/storefront/purchase"
)

// ============================================================================
// Request bodies
// ============================================================================

type selectRequest struct {
	ID string `json:"id"`
}

type payRequest struct {
	Method string `json:"method"`
}

type widgetResultRequest struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Error   string `json:"error"`
}

// Token ids and prices are decimal or 0x strings in raw token units
type createListingRequest struct {
	TokenID      string `json:"tokenId"`
	PaymentToken string `json:"paymentToken"`
	Price        string `json:"price"`
}

type updatePriceRequest struct {
	Price string `json:"price"`
}

type mintRequest struct {
	Symbol string `json:"symbol"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

// bindOptional decodes a JSON body if one was sent
func bindOptional(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return bindRequired(c, v)
}

func bindRequired(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}

// ============================================================================
// Health
// ============================================================================

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "storefront",
	})
}

// ============================================================================
// Catalog
// ============================================================================

func (s *Server) listCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.deps.Catalog.Items()})
}

func (s *Server) getCatalogItem(c *gin.Context) {
	item, ok := s.deps.Catalog.Item(c.Param("id"))
	if !ok {
		s.fail(c, storefront.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) refreshCatalog(c *gin.Context) {
	if err := s.deps.Catalog.Refresh(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": s.deps.Catalog.Items()})
}

// ============================================================================
// Selection and purchase
// ============================================================================

func (s *Server) getSelection(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Sequencer.Snapshot())
}

func (s *Server) putSelection(c *gin.Context) {
	var req selectRequest
	if err := bindRequired(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	item, ok := s.deps.Catalog.Item(req.ID)
	if !ok {
		s.fail(c, storefront.ErrNotFound)
		return
	}
	if err := s.deps.Sequencer.Select(item); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Sequencer.Snapshot())
}

func (s *Server) deleteSelection(c *gin.Context) {
	s.deps.Sequencer.Deselect()
	c.JSON(http.StatusOK, s.deps.Sequencer.Snapshot())
}

func (s *Server) pay(c *gin.Context) {
	var req payRequest
	if err := bindOptional(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	method, ok := purchase.ParseMethod(req.Method)
	if !ok {
		s.fail(c, badRequest(fmt.Sprintf("unknown payment method %q", req.Method)))
		return
	}
	s.runPay(c, method)
}

func (s *Server) payWidget(c *gin.Context) {
	s.runPay(c, purchase.ThirdPartyWidgetPayment{})
}

func (s *Server) runPay(c *gin.Context, method purchase.PaymentMethod) {
	result, err := s.deps.Sequencer.Pay(c.Request.Context(), method)
	if err != nil {
		s.fail(c, err)
		return
	}

	status := http.StatusAccepted
	if result.Action == purchase.ActionWidget {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"result":    result,
		"selection": s.deps.Sequencer.Snapshot(),
	})
}

func (s *Server) widgetResult(c *gin.Context) {
	var req widgetResultRequest
	if err := bindRequired(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	err := s.deps.Sequencer.CompleteWidgetPayment(c.Request.Context(), purchase.WidgetResult{
		Success: req.Success,
		TxHash:  req.TxHash,
		Error:   req.Error,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Sequencer.Snapshot())
}

// ============================================================================
// Seller listings
// ============================================================================

func (s *Server) createListing(c *gin.Context) {
	var req createListingRequest
	if err := bindRequired(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	tokenID, err := storefront.ParseUint256(req.TokenID)
	if err != nil {
		s.fail(c, err)
		return
	}
	token, err := storefront.ParseAddress(req.PaymentToken)
	if err != nil {
		s.fail(c, err)
		return
	}
	price, err := storefront.ParseUint256(req.Price)
	if err != nil {
		s.fail(c, err)
		return
	}
	if price.Sign() == 0 {
		s.fail(c, badRequest("price must be positive"))
		return
	}
	if s.deps.Chain != nil {
		owner, err := s.deps.Chain.OwnerOf(c.Request.Context(), tokenID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if owner != s.deps.Listings.Address() {
			s.fail(c, badRequest("token "+tokenID.String()+" is not owned by the signer"))
			return
		}
	}

	h, err := s.deps.Listings.ListNFT(c.Request.Context(), s.deps.NFT, tokenID, token, price)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.track(h, "list-"+tokenID.String(), "NFT #"+tokenID.String()+" listed", nil)
	c.JSON(http.StatusAccepted, txResponse(h))
}

func (s *Server) cancelListing(c *gin.Context) {
	listingID, err := storefront.ParseUint256(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	h, err := s.deps.Listings.CancelListing(c.Request.Context(), listingID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.track(h, "cancel-"+listingID.String(), "Listing #"+listingID.String()+" cancelled", s.refreshListing(listingID))
	c.JSON(http.StatusAccepted, txResponse(h))
}

func (s *Server) updateListingPrice(c *gin.Context) {
	listingID, err := storefront.ParseUint256(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var req updatePriceRequest
	if err := bindRequired(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	price, err := storefront.ParseUint256(req.Price)
	if err != nil {
		s.fail(c, err)
		return
	}
	if price.Sign() == 0 {
		s.fail(c, badRequest("price must be positive"))
		return
	}

	h, err := s.deps.Listings.UpdateListingPrice(c.Request.Context(), listingID, price)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.track(h, "price-"+listingID.String(), "Listing #"+listingID.String()+" price updated", s.refreshListing(listingID))
	c.JSON(http.StatusAccepted, txResponse(h))
}

func (s *Server) approveMarketplace(c *gin.Context) {
	owner := s.deps.Listings.Address()
	operator := s.deps.Listings.Marketplace()

	var onConfirmed func()
	if s.deps.Chain != nil {
		approved, err := s.deps.Chain.IsApprovedForAll(c.Request.Context(), owner, operator)
		if err != nil {
			s.fail(c, err)
			return
		}
		if approved {
			c.JSON(http.StatusOK, gin.H{"approved": true})
			return
		}
		onConfirmed = func() { s.deps.Chain.InvalidateApprovalForAll(owner, operator) }
	}

	h, err := s.deps.Listings.SetApprovalForAll(c.Request.Context(), operator, true)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.track(h, "approve-marketplace", "Marketplace approved for your NFTs", onConfirmed)
	c.JSON(http.StatusAccepted, txResponse(h))
}

func (s *Server) refreshListing(listingID *big.Int) func() {
	return func() { s.deps.Catalog.RefreshListing(context.Background(), listingID) }
}

func txResponse(h *evm.TxHandle) gin.H {
	return gin.H{
		"txHash": h.Hash,
		"kind":   h.Kind,
		"status": h.Status(),
	}
}

// track reports a seller transaction in the notification feed and runs
// onConfirmed, if set, once it confirms
func (s *Server) track(h *evm.TxHandle, noteID, success string, onConfirmed func()) {
	notes := s.deps.Notifications
	if notes != nil {
		notes.Loading(noteID, "Waiting for confirmation...")
	}

	go func() {
		_, err := h.Wait(context.Background())
		if err != nil {
			s.log.Warn().Err(err).Str("tx", h.Hash).Str("kind", string(h.Kind)).Msg("seller transaction failed")
			if notes != nil {
				notes.Error(noteID, "Transaction failed: "+err.Error())
			}
			return
		}
		if onConfirmed != nil {
			onConfirmed()
		}
		if notes != nil {
			notes.Success(noteID, success)
		}
	}()
}

// ============================================================================
// Faucet
// ============================================================================

func (s *Server) mint(c *gin.Context) {
	if s.deps.Faucet == nil {
		s.fail(c, storefront.NewError(storefront.ErrCodeNotFound, "faucet is disabled", nil))
		return
	}
	var req mintRequest
	if err := bindOptional(c, &req); err != nil {
		s.fail(c, err)
		return
	}

	var (
		minted []faucet.Minted
		err    error
	)
	if req.Symbol == "" {
		minted, err = s.deps.Faucet.MintAll(c.Request.Context())
	} else {
		token, ok := s.deps.Faucet.Lookup(req.Symbol)
		if !ok {
			s.fail(c, storefront.NewError(storefront.ErrCodeNotFound, fmt.Sprintf("unknown faucet token %q", req.Symbol), nil))
			return
		}
		var m *faucet.Minted
		m, err = s.deps.Faucet.Mint(c.Request.Context(), token)
		if m != nil {
			minted = []faucet.Minted{*m}
		}
	}

	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"minted": minted})
}

// ============================================================================
// Notifications
// ============================================================================

func (s *Server) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notifications": s.deps.Notifications.List()})
}

func (s *Server) dismissNotification(c *gin.Context) {
	if !s.deps.Notifications.Dismiss(c.Param("id")) {
		s.fail(c, storefront.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// ============================================================================
// Preferences
// ============================================================================

func (s *Server) getTheme(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"theme": s.deps.Preferences.Theme()})
}

func (s *Server) putTheme(c *gin.Context) {
	var req themeRequest
	if err := bindRequired(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	theme, err := prefs.ParseTheme(req.Theme)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Preferences.SetTheme(theme); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": s.deps.Preferences.Theme()})
}

func (s *Server) toggleTheme(c *gin.Context) {
	theme, err := s.deps.Preferences.Toggle()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}
