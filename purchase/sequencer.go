// Package purchase sequences the allowance check, approval and purchase of
// one selected catalog item.
package purchase

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/notify"
	"github.com/nftmarket/storefront/pricing"
)

// State is the position of the purchase flow
type State string

const (
	StateIdle             State = "idle"
	StateSelected         State = "selected"
	StateAwaitingApproval State = "awaiting_approval"
	StateAwaitingPurchase State = "awaiting_purchase"
)

// ApprovalPolicy decides how much to approve when the allowance is short
type ApprovalPolicy string

const (
	// ApprovalExact approves exactly the listing price
	ApprovalExact ApprovalPolicy = "exact"
	// ApprovalUnlimited approves the maximum uint256
	ApprovalUnlimited ApprovalPolicy = "unlimited"
)

// AllowanceReader reads and invalidates the buyer's ERC20 allowance
type AllowanceReader interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	InvalidateAllowance(token, owner, spender common.Address)
}

// PauseReader reports whether the marketplace accepts purchases
type PauseReader interface {
	Paused(ctx context.Context) (bool, error)
}

// Submitter sends the approval and purchase transactions
type Submitter interface {
	Address() common.Address
	Marketplace() common.Address
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*evm.TxHandle, error)
	BuyNFT(ctx context.Context, listingID *big.Int) (*evm.TxHandle, error)
}

// TxRecord is the last transaction the flow submitted
type TxRecord struct {
	Hash   string            `json:"hash"`
	Kind   storefront.TxKind `json:"kind"`
	Status evm.TxStatus      `json:"status"`
	Error  string            `json:"error,omitempty"`
}

// Snapshot is a consistent view of the sequencer
type Snapshot struct {
	State    State                   `json:"state"`
	Item     *storefront.CatalogItem `json:"item,omitempty"`
	LastTx   *TxRecord               `json:"lastTx,omitempty"`
	InFlight bool                    `json:"inFlight"`
}

// Sequencer owns the single selection slot and drives the
// Idle → Selected → AwaitingApproval → AwaitingPurchase → Idle flow.
//
// At most one transaction of a selection is in flight, so approval and
// purchase are never submitted concurrently. Deselecting bumps the
// generation; receipts of older generations are ignored.
type Sequencer struct {
	reader    AllowanceReader
	writer    Submitter
	pause     PauseReader
	notifier  notify.Notifier
	formatter *pricing.Formatter
	log       zerolog.Logger

	policy        ApprovalPolicy
	skipAllowance bool
	settleDelay   time.Duration

	mu         sync.Mutex
	state      State
	item       *storefront.CatalogItem
	generation uint64
	inFlight   bool
	lastTx     *TxRecord

	beforePayHooks         []storefront.BeforePayHook
	approvalSubmittedHooks []storefront.TransactionSubmittedHook
	approvalConfirmedHooks []storefront.TransactionConfirmedHook
	purchaseSubmittedHooks []storefront.TransactionSubmittedHook
	purchaseConfirmedHooks []storefront.TransactionConfirmedHook
	transactionFailedHooks []storefront.TransactionFailedHook
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithApprovalPolicy overrides ApprovalExact
func WithApprovalPolicy(p ApprovalPolicy) Option {
	return func(s *Sequencer) {
		s.policy = p
	}
}

// WithSkipAllowanceCheck goes straight to buyNFT without reading the allowance
func WithSkipAllowanceCheck(skip bool) Option {
	return func(s *Sequencer) {
		s.skipAllowance = skip
	}
}

// WithSettleDelay waits d after a confirmed purchase before clearing the selection
func WithSettleDelay(d time.Duration) Option {
	return func(s *Sequencer) {
		s.settleDelay = d
	}
}

// WithPauseGuard refuses to pay while p reports the marketplace paused
func WithPauseGuard(p PauseReader) Option {
	return func(s *Sequencer) {
		s.pause = p
	}
}

// WithNotifier sets where progress is reported
func WithNotifier(n notify.Notifier) Option {
	return func(s *Sequencer) {
		s.notifier = n
	}
}

// WithFormatter overrides pricing.Default
func WithFormatter(f *pricing.Formatter) Option {
	return func(s *Sequencer) {
		s.formatter = f
	}
}

// WithLogger sets the sequencer's logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Sequencer) {
		s.log = log
	}
}

// NewSequencer creates an idle sequencer
func NewSequencer(reader AllowanceReader, writer Submitter, opts ...Option) *Sequencer {
	s := &Sequencer{
		reader:    reader,
		writer:    writer,
		notifier:  notify.Discard,
		formatter: pricing.Default,
		log:       zerolog.Nop(),
		policy:    ApprovalExact,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Hook registration
// ============================================================================

// OnBeforePay registers a hook run before any allowance read or transaction
func (s *Sequencer) OnBeforePay(hook storefront.BeforePayHook) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforePayHooks = append(s.beforePayHooks, hook)
	return s
}

// OnApprovalSubmitted registers a hook run when an approval is accepted by the node
func (s *Sequencer) OnApprovalSubmitted(hook storefront.TransactionSubmittedHook) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvalSubmittedHooks = append(s.approvalSubmittedHooks, hook)
	return s
}

// OnApprovalConfirmed registers a hook run when an approval is mined
func (s *Sequencer) OnApprovalConfirmed(hook storefront.TransactionConfirmedHook) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvalConfirmedHooks = append(s.approvalConfirmedHooks, hook)
	return s
}

// OnPurchaseSubmitted registers a hook run when a purchase is accepted by the node
func (s *Sequencer) OnPurchaseSubmitted(hook storefront.TransactionSubmittedHook) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseSubmittedHooks = append(s.purchaseSubmittedHooks, hook)
	return s
}

// OnPurchaseConfirmed registers a hook run when a purchase is mined or the widget reports success
func (s *Sequencer) OnPurchaseConfirmed(hook storefront.TransactionConfirmedHook) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseConfirmedHooks = append(s.purchaseConfirmedHooks, hook)
	return s
}

// OnTransactionFailed registers a hook run when submission fails or a transaction reverts
func (s *Sequencer) OnTransactionFailed(hook storefront.TransactionFailedHook) *Sequencer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactionFailedHooks = append(s.transactionFailedHooks, hook)
	return s
}

// ============================================================================
// Selection
// ============================================================================

// Select makes item the current selection. Items without a listing id or raw
// price are rejected and the state is left unchanged.
func (s *Sequencer) Select(item storefront.CatalogItem) error {
	if err := storefront.ValidatePurchasable(item); err != nil {
		s.log.Warn().Str("id", item.ID).Msg("cannot select item without listing data")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.item = &item
	s.state = StateSelected
	s.inFlight = false
	s.lastTx = nil
	return nil
}

// Deselect returns to Idle. Outstanding transactions keep running but their
// outcome no longer changes the state.
func (s *Sequencer) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.lastTx = nil
}

func (s *Sequencer) resetLocked() {
	s.generation++
	s.item = nil
	s.state = StateIdle
	s.inFlight = false
}

// Snapshot returns the current state
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state, InFlight: s.inFlight}
	if s.item != nil {
		item := *s.item
		snap.Item = &item
	}
	if s.lastTx != nil {
		tx := *s.lastTx
		snap.LastTx = &tx
	}
	return snap
}

// ============================================================================
// Payment
// ============================================================================

// Pay advances the flow for the current selection using method
func (s *Sequencer) Pay(ctx context.Context, method PaymentMethod) (*PayResult, error) {
	if method == nil {
		method = DirectChainPayment{}
	}

	s.mu.Lock()
	if s.item == nil {
		s.mu.Unlock()
		s.log.Warn().Msg("pay called without a selection")
		return nil, storefront.ErrNoSelection
	}
	if s.inFlight {
		s.mu.Unlock()
		return nil, storefront.ErrBusy
	}
	item := *s.item
	gen := s.generation
	hooks := append([]storefront.BeforePayHook(nil), s.beforePayHooks...)
	s.mu.Unlock()

	if err := storefront.ValidatePurchasable(item); err != nil {
		s.log.Error().Str("id", item.ID).Msg("selection has no listing data")
		return nil, err
	}

	pc := storefront.PurchaseContext{
		Ctx:       ctx,
		Item:      item,
		Method:    method.methodName(),
		Timestamp: time.Now(),
	}
	for _, hook := range hooks {
		result, err := hook(pc)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, storefront.NewError(storefront.ErrCodeInvalidRequest, result.Reason, map[string]interface{}{
				"id": item.ID,
			})
		}
	}

	if err := s.checkPaused(ctx, item); err != nil {
		return nil, err
	}

	switch method.(type) {
	case ThirdPartyWidgetPayment:
		checkout, err := BuildWidgetCheckout(item, s.writer.Marketplace(), s.writer.Address(), s.formatter)
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("id", item.ID).Str("merchant", checkout.Merchant).Msg("widget checkout prepared")
		return &PayResult{Action: ActionWidget, Checkout: checkout}, nil
	case DirectChainPayment:
		return s.payDirect(ctx, pc, gen)
	}
	return nil, storefront.NewError(storefront.ErrCodeInvalidRequest, fmt.Sprintf("unsupported payment method %T", method), nil)
}

func (s *Sequencer) payDirect(ctx context.Context, pc storefront.PurchaseContext, gen uint64) (*PayResult, error) {
	if !s.claim(gen) {
		return nil, storefront.ErrBusy
	}

	item := pc.Item
	token := *item.PaymentToken
	owner := s.writer.Address()
	spender := s.writer.Marketplace()

	// A nil allowance means unknown, which goes straight to the purchase
	var allowance *big.Int
	if !s.skipAllowance {
		s.reader.InvalidateAllowance(token, owner, spender)
		var err error
		allowance, err = s.reader.Allowance(ctx, token, owner, spender)
		if err != nil {
			s.log.Warn().Err(err).Str("token", token.Hex()).Msg("allowance read failed, buying directly")
			allowance = nil
		}
	}

	if allowance != nil && allowance.Cmp(item.PriceRaw) < 0 {
		return s.submitApproval(ctx, pc, gen, token, spender)
	}
	return s.submitPurchase(ctx, pc, gen)
}

// claim marks a transaction in flight for generation gen
func (s *Sequencer) claim(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

func (s *Sequencer) setState(gen uint64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.state = state
	}
}

func (s *Sequencer) submitApproval(ctx context.Context, pc storefront.PurchaseContext, gen uint64, token, spender common.Address) (*PayResult, error) {
	item := pc.Item
	symbol := s.formatter.TokenSymbol(token.Hex())
	id := "approve-" + item.ListingID.String()

	s.setState(gen, StateAwaitingApproval)
	s.notifier.Loading(id, fmt.Sprintf("Approving %s...", symbol))

	start := time.Now()
	handle, err := s.writer.Approve(ctx, token, spender, approvalAmount(s.policy, item.PriceRaw))
	if err != nil {
		s.notifier.Error(id, "Approval failed: "+err.Error())
		s.failed(gen, pc, storefront.TxKindApprove, "", err, time.Since(start))
		return nil, err
	}

	s.submitted(gen, pc, handle, time.Since(start), s.hooksApprovalSubmitted())
	go s.awaitApproval(gen, pc, handle, id, token, spender, start)

	return &PayResult{Action: ActionApprove, TxHash: handle.Hash, Tx: handle}, nil
}

func (s *Sequencer) awaitApproval(gen uint64, pc storefront.PurchaseContext, h *evm.TxHandle, id string, token, spender common.Address, start time.Time) {
	_, err := h.Wait(context.Background())
	if err != nil {
		if s.current(gen) {
			s.notifier.Error(id, "Approval failed: "+err.Error())
		}
		s.failed(gen, pc, h.Kind, h.Hash, err, time.Since(start))
		return
	}

	s.reader.InvalidateAllowance(token, s.writer.Address(), spender)

	s.mu.Lock()
	stale := s.generation != gen
	if !stale {
		s.inFlight = false
		s.state = StateSelected
		s.lastTx = &TxRecord{Hash: h.Hash, Kind: h.Kind, Status: evm.TxConfirmed}
	}
	hooks := append([]storefront.TransactionConfirmedHook(nil), s.approvalConfirmedHooks...)
	s.mu.Unlock()

	s.log.Info().Str("tx", h.Hash).Bool("stale", stale).Msg("approval confirmed")
	if stale {
		return
	}
	s.notifier.Success(id, "Approval confirmed. Pay again to complete the purchase")
	s.runConfirmed(hooks, storefront.TransactionContext{
		PurchaseContext: pc,
		Kind:            h.Kind,
		TxHash:          h.Hash,
		Duration:        time.Since(start),
	})
}

func (s *Sequencer) submitPurchase(ctx context.Context, pc storefront.PurchaseContext, gen uint64) (*PayResult, error) {
	item := pc.Item
	id := "buy-" + item.ListingID.String()

	s.setState(gen, StateAwaitingPurchase)
	s.notifier.Loading(id, fmt.Sprintf("Purchasing %s...", item.Name))

	start := time.Now()
	handle, err := s.writer.BuyNFT(ctx, item.ListingID)
	if err != nil {
		s.notifier.Error(id, "Purchase failed: "+err.Error())
		s.failed(gen, pc, storefront.TxKindBuy, "", err, time.Since(start))
		return nil, err
	}

	s.submitted(gen, pc, handle, time.Since(start), s.hooksPurchaseSubmitted())
	go s.awaitPurchase(gen, pc, handle, id, start)

	return &PayResult{Action: ActionBuy, TxHash: handle.Hash, Tx: handle}, nil
}

func (s *Sequencer) awaitPurchase(gen uint64, pc storefront.PurchaseContext, h *evm.TxHandle, id string, start time.Time) {
	_, err := h.Wait(context.Background())
	if err != nil {
		if s.current(gen) {
			s.notifier.Error(id, "Purchase failed: "+err.Error())
		}
		s.failed(gen, pc, h.Kind, h.Hash, err, time.Since(start))
		return
	}

	s.mu.Lock()
	stale := s.generation != gen
	if !stale {
		s.lastTx = &TxRecord{Hash: h.Hash, Kind: h.Kind, Status: evm.TxConfirmed}
	}
	hooks := append([]storefront.TransactionConfirmedHook(nil), s.purchaseConfirmedHooks...)
	s.mu.Unlock()

	s.log.Info().Str("tx", h.Hash).Str("id", pc.Item.ID).Bool("stale", stale).Msg("purchase confirmed")
	if !stale {
		s.notifier.Success(id, fmt.Sprintf("Purchased %s", pc.Item.Name))
	}

	// The listing changed whether or not anyone still watches this selection
	s.runConfirmed(hooks, storefront.TransactionContext{
		PurchaseContext: pc,
		Kind:            h.Kind,
		TxHash:          h.Hash,
		Duration:        time.Since(start),
	})

	if s.settleDelay > 0 {
		time.Sleep(s.settleDelay)
	}

	s.mu.Lock()
	if s.generation == gen {
		s.resetLocked()
	}
	s.mu.Unlock()
}

// CompleteWidgetPayment applies the widget's outcome to the current selection.
// Success clears the selection; failure keeps it so the user can retry.
func (s *Sequencer) CompleteWidgetPayment(ctx context.Context, result WidgetResult) error {
	s.mu.Lock()
	if s.item == nil {
		s.mu.Unlock()
		return storefront.ErrNoSelection
	}
	item := *s.item
	gen := s.generation
	s.mu.Unlock()

	pc := storefront.PurchaseContext{
		Ctx:       ctx,
		Item:      item,
		Method:    ThirdPartyWidgetPayment{}.methodName(),
		Timestamp: time.Now(),
	}
	id := "widget-" + item.ID

	if !result.Success {
		reason := result.Error
		if reason == "" {
			reason = "payment was not completed"
		}
		err := storefront.NewError(storefront.ErrCodeTransactionFailed, reason, map[string]interface{}{
			"kind": string(storefront.TxKindWidgetSettlement),
		})
		s.notifier.Error(id, "Payment failed: "+reason)
		s.failed(gen, pc, storefront.TxKindWidgetSettlement, result.TxHash, err, 0)
		return nil
	}

	s.mu.Lock()
	stale := s.generation != gen
	if !stale {
		s.lastTx = &TxRecord{Hash: result.TxHash, Kind: storefront.TxKindWidgetSettlement, Status: evm.TxConfirmed}
		s.resetLocked()
	}
	hooks := append([]storefront.TransactionConfirmedHook(nil), s.purchaseConfirmedHooks...)
	s.mu.Unlock()

	s.log.Info().Str("id", item.ID).Str("tx", result.TxHash).Msg("widget payment completed")
	s.notifier.Success(id, fmt.Sprintf("Purchased %s", item.Name))
	s.runConfirmed(hooks, storefront.TransactionContext{
		PurchaseContext: pc,
		Kind:            storefront.TxKindWidgetSettlement,
		TxHash:          result.TxHash,
	})
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Sequencer) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

// checkPaused fails open: an unreadable pause flag lets the chain decide
func (s *Sequencer) checkPaused(ctx context.Context, item storefront.CatalogItem) error {
	if s.pause == nil {
		return nil
	}
	paused, err := s.pause.Paused(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("pause flag read failed")
		return nil
	}
	if paused {
		s.log.Warn().Str("id", item.ID).Msg("marketplace is paused")
		return storefront.NewError(storefront.ErrCodeNotPurchasable, "marketplace is paused", map[string]interface{}{
			"id": item.ID,
		})
	}
	return nil
}

func (s *Sequencer) hooksApprovalSubmitted() []storefront.TransactionSubmittedHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storefront.TransactionSubmittedHook(nil), s.approvalSubmittedHooks...)
}

func (s *Sequencer) hooksPurchaseSubmitted() []storefront.TransactionSubmittedHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storefront.TransactionSubmittedHook(nil), s.purchaseSubmittedHooks...)
}

func (s *Sequencer) submitted(gen uint64, pc storefront.PurchaseContext, h *evm.TxHandle, d time.Duration, hooks []storefront.TransactionSubmittedHook) {
	s.mu.Lock()
	if s.generation == gen {
		s.lastTx = &TxRecord{Hash: h.Hash, Kind: h.Kind, Status: evm.TxPending}
	}
	s.mu.Unlock()

	tc := storefront.TransactionContext{PurchaseContext: pc, Kind: h.Kind, TxHash: h.Hash, Duration: d}
	for _, hook := range hooks {
		if err := hook(tc); err != nil {
			s.log.Warn().Err(err).Str("tx", h.Hash).Msg("submitted hook failed")
		}
	}
}

// failed runs the failure hooks, then releases the in-flight slot. The state
// is left where it is; retrying is up to the caller.
func (s *Sequencer) failed(gen uint64, pc storefront.PurchaseContext, kind storefront.TxKind, hash string, err error, d time.Duration) {
	s.log.Error().Err(err).Str("kind", string(kind)).Str("tx", hash).Str("id", pc.Item.ID).Msg("transaction failed")

	s.mu.Lock()
	hooks := append([]storefront.TransactionFailedHook(nil), s.transactionFailedHooks...)
	s.mu.Unlock()

	fc := storefront.TransactionFailureContext{PurchaseContext: pc, Kind: kind, TxHash: hash, Error: err, Duration: d}
	for _, hook := range hooks {
		if hookErr := hook(fc); hookErr != nil {
			s.log.Warn().Err(hookErr).Msg("failure hook failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.inFlight = false
		s.lastTx = &TxRecord{Hash: hash, Kind: kind, Status: evm.TxFailed, Error: err.Error()}
	}
}

func (s *Sequencer) runConfirmed(hooks []storefront.TransactionConfirmedHook, tc storefront.TransactionContext) {
	for _, hook := range hooks {
		if err := hook(tc); err != nil {
			s.log.Warn().Err(err).Str("tx", tc.TxHash).Msg("confirmed hook failed")
		}
	}
}
