package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	sfevm "github.com/nftmarket/storefront/evm"
)

// DefaultPollInterval is how often WaitForTransactionReceipt polls the node
const DefaultPollInterval = time.Second

// ClientSigner implements sfevm.ContractSigner using an ECDSA private key
// and a JSON-RPC client.
type ClientSigner struct {
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	ethClient    *ethclient.Client
	chainID      *big.Int
	pollInterval time.Duration
}

// NewClientSignerFromPrivateKey creates a signer from a hex-encoded private key
// and dials rpcURL for reads and submissions.
//
// Example:
//
//	signer, err := evm.NewClientSignerFromPrivateKey(ctx, os.Getenv("STOREFRONT_PRIVATE_KEY"), "https://rpc.sepolia-api.lisk.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewClientSignerFromPrivateKey(ctx context.Context, privateKeyHex, rpcURL string) (*ClientSigner, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	signer, err := NewClientSignerFromPrivateKeyWithClient(ctx, privateKeyHex, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return signer, nil
}

// NewClientSignerFromPrivateKeyWithClient creates a signer over an existing client.
// The chain id is fetched once and used for every transaction.
func NewClientSignerFromPrivateKeyWithClient(ctx context.Context, privateKeyHex string, ethClient *ethclient.Client) (*ClientSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	return &ClientSigner{
		privateKey:   privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		ethClient:    ethClient,
		chainID:      chainID,
		pollInterval: DefaultPollInterval,
	}, nil
}

// Address returns the Ethereum address of the signer.
func (s *ClientSigner) Address() string {
	return s.address.Hex()
}

// ChainID returns the chain id transactions are signed for.
func (s *ClientSigner) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Close releases the RPC connection.
func (s *ClientSigner) Close() {
	s.ethClient.Close()
}

// ReadContract reads data from a smart contract.
func (s *ClientSigner) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	msg := ethereum.CallMsg{
		From: s.address,
		To:   &addr,
		Data: data,
	}

	result, err := s.ethClient.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	if len(outputs) == 0 {
		return nil, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// WriteContract signs and submits a contract call, returning the transaction hash.
// Gas is estimated against pending state; a revert during estimation is returned
// as an error and nothing is sent.
func (s *ClientSigner) WriteContract(
	ctx context.Context,
	contractAddress string,
	abiBytes []byte,
	functionName string,
	args ...interface{},
) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(functionName, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	nonce, err := s.ethClient.PendingNonceAt(ctx, s.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := s.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	to := common.HexToAddress(contractAddress)
	gasLimit, err := s.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas for %s: %w", functionName, err)
	}
	if gasLimit == 0 {
		gasLimit = sfevm.DefaultGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls until the transaction is mined or ctx is done.
func (s *ClientSigner) WaitForTransactionReceipt(ctx context.Context, txHash string) (*sfevm.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.ethClient.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &sfevm.TransactionReceipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      receipt.TxHash.Hex(),
			}, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transaction %s not mined: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
