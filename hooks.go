package storefront

import (
	"context"
	"time"
)

// TxKind identifies which write a transaction performs.
type TxKind string

const (
	TxKindApprove           TxKind = "approve"
	TxKindBuy               TxKind = "buy"
	TxKindList              TxKind = "list"
	TxKindCancelListing     TxKind = "cancel_listing"
	TxKindUpdatePrice       TxKind = "update_price"
	TxKindFaucet            TxKind = "faucet"
	TxKindSetApprovalForAll TxKind = "set_approval_for_all"
	TxKindWidgetSettlement  TxKind = "widget_settlement"
)

// ============================================================================
// Purchase Hook Context Types
// ============================================================================

// PurchaseContext contains information passed to purchase hooks
type PurchaseContext struct {
	Ctx       context.Context
	Item      CatalogItem
	Method    string
	Timestamp time.Time
}

// TransactionContext contains a submitted or confirmed transaction and its purchase context
type TransactionContext struct {
	PurchaseContext
	Kind     TxKind
	TxHash   string
	Duration time.Duration
}

// TransactionFailureContext contains a failed transaction and its purchase context
type TransactionFailureContext struct {
	PurchaseContext
	Kind     TxKind
	TxHash   string
	Error    error
	Duration time.Duration
}

// ============================================================================
// Purchase Hook Result Types
// ============================================================================

// BeforePayHookResult represents the result of a "before pay" hook
// If Abort is true, the payment will not start and Reason is returned
type BeforePayHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Purchase Hook Function Types
// ============================================================================

// BeforePayHook is called before any allowance read or transaction
// If it returns a result with Abort=true, no network call is made
type BeforePayHook func(PurchaseContext) (*BeforePayHookResult, error)

// TransactionSubmittedHook is called once the node accepted a transaction
// Any error returned will be logged but will not affect the flow
type TransactionSubmittedHook func(TransactionContext) error

// TransactionConfirmedHook is called when a transaction is mined successfully
// Any error returned will be logged but will not affect the flow
type TransactionConfirmedHook func(TransactionContext) error

// TransactionFailedHook is called when submission fails or the transaction reverts
type TransactionFailedHook func(TransactionFailureContext) error
