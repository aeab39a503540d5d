package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nftmarket/storefront/evm"
)

// ============================================================================
// In-memory marketplace chain
// ============================================================================

// Listing is the getListing tuple as the ABI decoder produces it
type Listing struct {
	ListingId    *big.Int
	NftContract  common.Address
	TokenId      *big.Int
	Seller       common.Address
	PaymentToken common.Address
	Price        *big.Int
	Active       bool
	ListedAt     *big.Int
}

type pendingTx struct {
	hash    string
	apply   func() bool
	mined   chan struct{}
	success bool
	done    bool
}

// Chain simulates the marketplace, collection and ERC20 contracts behind
// a single signer. It implements evm.ContractSigner.
type Chain struct {
	mu sync.Mutex

	Signer      common.Address
	Marketplace common.Address
	NFT         common.Address

	tokenURIs      map[string]string
	owners         map[string]common.Address
	listings       map[string]*Listing
	allowances     map[string]*big.Int
	balances       map[string]*big.Int
	approvedForAll map[string]bool
	paused         bool
	nextListing    int64

	readCalls  map[string]int
	writeCalls map[string]int
	readErrs   map[string]error
	writeErrs  map[string]error
	reverts    map[string]bool

	hold    bool
	pending map[string]*pendingTx
	order   []string
	nonce   int
}

// New creates an empty chain with the signer at the given address
func New(signer, marketplace, nft string) *Chain {
	return &Chain{
		Signer:         common.HexToAddress(signer),
		Marketplace:    common.HexToAddress(marketplace),
		NFT:            common.HexToAddress(nft),
		tokenURIs:      make(map[string]string),
		owners:         make(map[string]common.Address),
		listings:       make(map[string]*Listing),
		allowances:     make(map[string]*big.Int),
		balances:       make(map[string]*big.Int),
		approvedForAll: make(map[string]bool),
		nextListing:    1,
		readCalls:      make(map[string]int),
		writeCalls:     make(map[string]int),
		readErrs:       make(map[string]error),
		writeErrs:      make(map[string]error),
		reverts:        make(map[string]bool),
		pending:        make(map[string]*pendingTx),
	}
}

func key(parts ...interface{}) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case common.Address:
			s[i] = strings.ToLower(v.Hex())
		default:
			s[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(s, ":")
}

// ============================================================================
// Fixtures
// ============================================================================

// SetTokenURI sets the metadata URI of a token
func (c *Chain) SetTokenURI(tokenID int64, uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenURIs[key(tokenID)] = uri
}

// SetListing stores a listing under its listing id
func (c *Chain) SetListing(l Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := l
	c.listings[key(l.ListingId)] = &cp
	if l.ListingId.Int64() >= c.nextListing {
		c.nextListing = l.ListingId.Int64() + 1
	}
}

// SetOwner records the owner of a token
func (c *Chain) SetOwner(tokenID int64, owner common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[key(tokenID)] = owner
}

// SetPaused pauses or unpauses the marketplace
func (c *Chain) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// ApprovedForAll reports whether operator may move all of owner's tokens
func (c *Chain) ApprovedForAll(owner, operator common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approvedForAll[key(owner, operator)]
}

// SetAllowance sets how much spender may move of owner's token
func (c *Chain) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[key(token, owner, spender)] = new(big.Int).Set(amount)
}

// Allowance returns the current allowance
func (c *Chain) Allowance(token, owner, spender common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.allowances[key(token, owner, spender)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// Balance returns account's balance of token
func (c *Chain) Balance(token, account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.balances[key(token, account)]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// ListingState returns a copy of a stored listing
func (c *Chain) ListingState(listingID int64) (Listing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[key(listingID)]
	if !ok {
		return Listing{}, false
	}
	return *l, true
}

// FailRead makes every read of method fail with err (nil clears it)
func (c *Chain) FailRead(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.readErrs, method)
		return
	}
	c.readErrs[method] = err
}

// FailWrite makes every submission of method fail with err (nil clears it)
func (c *Chain) FailWrite(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.writeErrs, method)
		return
	}
	c.writeErrs[method] = err
}

// Revert makes transactions calling method mine with a failed status
func (c *Chain) Revert(method string, revert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reverts[method] = revert
}

// Hold stops automatic mining; transactions stay pending until Mine is called
func (c *Chain) Hold() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = true
}

// Mine mines every pending transaction in submission order
func (c *Chain) Mine() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, hash := range c.order {
		c.mineLocked(c.pending[hash])
	}
}

// Reads returns how many network reads of method happened
func (c *Chain) Reads(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readCalls[method]
}

// Writes returns how many transactions calling method were submitted
func (c *Chain) Writes(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeCalls[method]
}

// ============================================================================
// evm.ContractSigner
// ============================================================================

// Address returns the signer address
func (c *Chain) Address() string {
	return c.Signer.Hex()
}

// ReadContract serves view calls from the in-memory state
func (c *Chain) ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readCalls[functionName]++
	if err := c.readErrs[functionName]; err != nil {
		return nil, err
	}
	to := common.HexToAddress(address)

	switch functionName {
	case evm.FunctionTokenURI:
		uri, ok := c.tokenURIs[key(args[0])]
		if !ok {
			return nil, fmt.Errorf("execution reverted: nonexistent token")
		}
		return uri, nil
	case evm.FunctionOwnerOf:
		owner, ok := c.owners[key(args[0])]
		if !ok {
			return nil, fmt.Errorf("execution reverted: nonexistent token")
		}
		return owner, nil
	case evm.FunctionIsApprovedForAll:
		return c.approvedForAll[key(args[0], args[1])], nil
	case evm.FunctionGetListing:
		l, ok := c.listings[key(args[0])]
		if !ok {
			// Solidity returns a zeroed struct for unknown ids
			return Listing{ListingId: big.NewInt(0), TokenId: big.NewInt(0), Price: big.NewInt(0), ListedAt: big.NewInt(0)}, nil
		}
		return *l, nil
	case evm.FunctionPaused:
		return c.paused, nil
	case evm.FunctionAllowance:
		if v, ok := c.allowances[key(to, args[0], args[1])]; ok {
			return new(big.Int).Set(v), nil
		}
		return big.NewInt(0), nil
	case evm.FunctionBalanceOf:
		if v, ok := c.balances[key(to, args[0])]; ok {
			return new(big.Int).Set(v), nil
		}
		return big.NewInt(0), nil
	case evm.FunctionDecimals:
		return uint8(18), nil
	}
	return nil, fmt.Errorf("unsupported read: %s", functionName)
}

// WriteContract records a transaction whose effects apply when it is mined
func (c *Chain) WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeCalls[functionName]++
	if err := c.writeErrs[functionName]; err != nil {
		return "", err
	}

	c.nonce++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", functionName, c.nonce))).Hex()
	to := common.HexToAddress(address)
	revert := c.reverts[functionName]

	tx := &pendingTx{hash: hash, mined: make(chan struct{})}
	tx.apply = func() bool {
		if revert {
			return false
		}
		return c.applyLocked(to, functionName, args)
	}
	c.pending[hash] = tx
	c.order = append(c.order, hash)
	return hash, nil
}

// WaitForTransactionReceipt mines immediately unless the chain is held
func (c *Chain) WaitForTransactionReceipt(ctx context.Context, txHash string) (*evm.TransactionReceipt, error) {
	c.mu.Lock()
	tx, ok := c.pending[txHash]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("unknown transaction %s", txHash)
	}
	if !c.hold {
		c.mineLocked(tx)
	}
	c.mu.Unlock()

	select {
	case <-tx.mined:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	status := uint64(evm.TxStatusFailed)
	if tx.success {
		status = evm.TxStatusSuccess
	}
	return &evm.TransactionReceipt{Status: status, BlockNumber: uint64(c.nonce), TxHash: txHash}, nil
}

func (c *Chain) mineLocked(tx *pendingTx) {
	if tx == nil || tx.done {
		return
	}
	tx.success = tx.apply()
	tx.done = true
	close(tx.mined)
}

func (c *Chain) applyLocked(to common.Address, method string, args []interface{}) bool {
	switch method {
	case evm.FunctionApprove:
		spender := args[0].(common.Address)
		c.allowances[key(to, c.Signer, spender)] = new(big.Int).Set(args[1].(*big.Int))
		return true
	case evm.FunctionFaucet:
		k := key(to, c.Signer)
		bal, ok := c.balances[k]
		if !ok {
			bal = big.NewInt(0)
		}
		c.balances[k] = new(big.Int).Add(bal, args[0].(*big.Int))
		return true
	case evm.FunctionBuyNFT:
		l, ok := c.listings[key(args[0])]
		if !ok || !l.Active {
			return false
		}
		ak := key(l.PaymentToken, c.Signer, c.Marketplace)
		allowance, ok := c.allowances[ak]
		if !ok || allowance.Cmp(l.Price) < 0 {
			return false
		}
		c.allowances[ak] = new(big.Int).Sub(allowance, l.Price)
		l.Active = false
		c.owners[key(l.TokenId)] = c.Signer
		return true
	case evm.FunctionListNFT:
		id := big.NewInt(c.nextListing)
		c.nextListing++
		c.listings[key(id)] = &Listing{
			ListingId:    id,
			NftContract:  args[0].(common.Address),
			TokenId:      args[1].(*big.Int),
			Seller:       c.Signer,
			PaymentToken: args[2].(common.Address),
			Price:        args[3].(*big.Int),
			Active:       true,
			ListedAt:     big.NewInt(1700000000),
		}
		return true
	case evm.FunctionCancelListing:
		l, ok := c.listings[key(args[0])]
		if !ok || !l.Active || l.Seller != c.Signer {
			return false
		}
		l.Active = false
		return true
	case evm.FunctionUpdateListingPrice:
		l, ok := c.listings[key(args[0])]
		if !ok || !l.Active || l.Seller != c.Signer {
			return false
		}
		l.Price = args[1].(*big.Int)
		return true
	case evm.FunctionSetApprovalForAll:
		c.approvedForAll[key(c.Signer, args[0])] = args[1].(bool)
		return true
	}
	return false
}
