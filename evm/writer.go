package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	storefront "github.com/nftmarket/storefront"
)

// DefaultReceiptTimeout bounds how long a submitted transaction is tracked
const DefaultReceiptTimeout = 2 * time.Minute

// TxObserver is notified when a tracked transaction settles
type TxObserver func(kind storefront.TxKind, status TxStatus)

// Writer is the chain write gateway. Each call submits one transaction and
// returns a handle that settles when the receipt is mined.
type Writer struct {
	signer         ContractSigner
	marketplace    string
	nft            string
	receiptTimeout time.Duration
	observe        TxObserver
	log            zerolog.Logger
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithReceiptTimeout overrides DefaultReceiptTimeout
func WithReceiptTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		w.receiptTimeout = d
	}
}

// WithTxObserver registers a callback invoked when a transaction settles
func WithTxObserver(fn TxObserver) WriterOption {
	return func(w *Writer) {
		w.observe = fn
	}
}

// WithWriterLogger sets the writer's logger
func WithWriterLogger(log zerolog.Logger) WriterOption {
	return func(w *Writer) {
		w.log = log
	}
}

// NewWriter creates a write gateway signing with signer
func NewWriter(signer ContractSigner, marketplace, nft string, opts ...WriterOption) *Writer {
	w := &Writer{
		signer:         signer,
		marketplace:    marketplace,
		nft:            nft,
		receiptTimeout: DefaultReceiptTimeout,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Address returns the account transactions are sent from
func (w *Writer) Address() common.Address {
	return common.HexToAddress(w.signer.Address())
}

// Marketplace returns the marketplace contract address
func (w *Writer) Marketplace() common.Address {
	return common.HexToAddress(w.marketplace)
}

// NFT returns the collection contract address
func (w *Writer) NFT() common.Address {
	return common.HexToAddress(w.nft)
}

// Approve lets spender move amount of token on behalf of the signer
func (w *Writer) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindApprove, token.Hex(), ERC20ABI, FunctionApprove, spender, amount)
}

// BuyNFT purchases a listing with the signer's tokens
func (w *Writer) BuyNFT(ctx context.Context, listingID *big.Int) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindBuy, w.marketplace, MarketplaceABI, FunctionBuyNFT, listingID)
}

// ListNFT lists a token for sale at price in paymentToken
func (w *Writer) ListNFT(ctx context.Context, nftContract common.Address, tokenID *big.Int, paymentToken common.Address, price *big.Int) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindList, w.marketplace, MarketplaceABI, FunctionListNFT, nftContract, tokenID, paymentToken, price)
}

// CancelListing withdraws a listing
func (w *Writer) CancelListing(ctx context.Context, listingID *big.Int) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindCancelListing, w.marketplace, MarketplaceABI, FunctionCancelListing, listingID)
}

// UpdateListingPrice changes the price of a listing
func (w *Writer) UpdateListingPrice(ctx context.Context, listingID, newPrice *big.Int) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindUpdatePrice, w.marketplace, MarketplaceABI, FunctionUpdateListingPrice, listingID, newPrice)
}

// SetApprovalForAll lets operator transfer every token the signer owns in the collection
func (w *Writer) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindSetApprovalForAll, w.nft, NFTABI, FunctionSetApprovalForAll, operator, approved)
}

// Faucet mints amount of a test token to the signer
func (w *Writer) Faucet(ctx context.Context, token common.Address, amount *big.Int) (*TxHandle, error) {
	return w.submit(ctx, storefront.TxKindFaucet, token.Hex(), ERC20ABI, FunctionFaucet, amount)
}

// EncodeBuyNFTFor returns calldata for buyNFTFor(listingId, buyer), executed by a third party
func EncodeBuyNFTFor(listingID *big.Int, buyer common.Address) ([]byte, error) {
	marketplaceABI, err := abi.JSON(strings.NewReader(string(MarketplaceABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	data, err := marketplaceABI.Pack(FunctionBuyNFTFor, listingID, buyer)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", FunctionBuyNFTFor, err)
	}
	return data, nil
}

func (w *Writer) submit(ctx context.Context, kind storefront.TxKind, address string, contractABI []byte, method string, args ...interface{}) (*TxHandle, error) {
	hash, err := w.signer.WriteContract(ctx, address, contractABI, method, args...)
	if err != nil {
		w.log.Warn().Err(err).Str("kind", string(kind)).Str("contract", address).Msg("transaction submission failed")
		if w.observe != nil {
			w.observe(kind, TxFailed)
		}
		return nil, storefront.NewError(storefront.ErrCodeTransactionFailed, err.Error(), map[string]interface{}{
			"kind":     string(kind),
			"contract": address,
		})
	}

	w.log.Info().Str("kind", string(kind)).Str("tx", hash).Msg("transaction submitted")

	handle := newTxHandle(hash, kind)
	go w.track(handle)
	return handle, nil
}

// track waits for the receipt independently of the submitting request
func (w *Writer) track(h *TxHandle) {
	ctx, cancel := context.WithTimeout(context.Background(), w.receiptTimeout)
	defer cancel()

	receipt, err := w.signer.WaitForTransactionReceipt(ctx, h.Hash)
	h.resolve(receipt, err)

	status := h.Status()
	event := w.log.Info()
	if status == TxFailed {
		event = w.log.Warn().Err(err)
	}
	event.Str("kind", string(h.Kind)).Str("tx", h.Hash).Str("status", string(status)).Msg("transaction settled")

	if w.observe != nil {
		w.observe(h.Kind, status)
	}
}
