package evm

import (
	"context"
	"math/big"
	"strings"
	"sync"

	storefront "github.com/nftmarket/storefront"
)

// ContractReader defines the read-only contract primitive the read gateway needs
type ContractReader interface {
	// ReadContract reads data from a smart contract
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
}

// ContractSigner defines the interface for operations that submit transactions
type ContractSigner interface {
	ContractReader

	// Address returns the signer's Ethereum address
	Address() string

	// WriteContract executes a smart contract transaction and returns its hash
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)

	// WaitForTransactionReceipt waits for a transaction to be mined
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
}

// TransactionReceipt represents the receipt of a mined transaction
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AssetInfo contains information about an ERC20 token
type AssetInfo struct {
	Address  string `toml:"address" json:"address"`
	Symbol   string `toml:"symbol" json:"symbol"`
	Name     string `toml:"name" json:"name"`
	Decimals int32  `toml:"decimals" json:"decimals"`
}

// NetworkConfig contains network-specific deployment addresses
type NetworkConfig struct {
	ChainID     *big.Int
	RPCURL      string
	ExplorerURL string
	Marketplace string
	NFT         string
	Assets      []AssetInfo
}

// AssetByAddress finds a configured asset, comparing addresses case-insensitively
func (n NetworkConfig) AssetByAddress(address string) (AssetInfo, bool) {
	for _, a := range n.Assets {
		if strings.EqualFold(a.Address, address) {
			return a, true
		}
	}
	return AssetInfo{}, false
}

// AssetBySymbol finds a configured asset by ticker
func (n NetworkConfig) AssetBySymbol(symbol string) (AssetInfo, bool) {
	for _, a := range n.Assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return AssetInfo{}, false
}

// TxStatus is the confirmation state of a submitted transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TxHandle tracks one submitted transaction until it is mined.
type TxHandle struct {
	Hash string
	Kind storefront.TxKind

	mu      sync.Mutex
	status  TxStatus
	receipt *TransactionReceipt
	err     error
	done    chan struct{}
}

func newTxHandle(hash string, kind storefront.TxKind) *TxHandle {
	return &TxHandle{
		Hash:   hash,
		Kind:   kind,
		status: TxPending,
		done:   make(chan struct{}),
	}
}

// NewResolvedTxHandle returns a handle that is already settled.
// Used for transactions confirmed outside this process, e.g. by a payment widget.
func NewResolvedTxHandle(hash string, kind storefront.TxKind, receipt *TransactionReceipt, err error) *TxHandle {
	h := newTxHandle(hash, kind)
	h.resolve(receipt, err)
	return h
}

// Status returns the current confirmation state
func (h *TxHandle) Status() TxStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done is closed once the transaction is confirmed or failed
func (h *TxHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the transaction is mined or ctx is done.
// A reverted transaction returns its receipt together with storefront.ErrReverted.
func (h *TxHandle) Wait(ctx context.Context) (*TransactionReceipt, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.receipt, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *TxHandle) resolve(receipt *TransactionReceipt, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.receipt = receipt
	switch {
	case err != nil:
		h.status = TxFailed
		h.err = err
	case receipt == nil || receipt.Status != TxStatusSuccess:
		h.status = TxFailed
		h.err = storefront.NewError(storefront.ErrCodeTransactionReverted, "transaction reverted", map[string]interface{}{
			"txHash": h.Hash,
			"kind":   string(h.Kind),
		})
	default:
		h.status = TxConfirmed
	}
	close(h.done)
}
