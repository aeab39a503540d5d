package evm

import (
	"math/big"
)

const (
	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0

	// Marketplace function names
	FunctionListNFT            = "listNFT"
	FunctionBuyNFT             = "buyNFT"
	FunctionBuyNFTFor          = "buyNFTFor"
	FunctionCancelListing      = "cancelListing"
	FunctionUpdateListingPrice = "updateListingPrice"
	FunctionGetListing         = "getListing"
	FunctionPaused             = "paused"

	// NFT function names
	FunctionTokenURI          = "tokenURI"
	FunctionOwnerOf           = "ownerOf"
	FunctionSetApprovalForAll = "setApprovalForAll"
	FunctionIsApprovedForAll  = "isApprovedForAll"

	// ERC20 function names
	FunctionAllowance = "allowance"
	FunctionApprove   = "approve"
	FunctionBalanceOf = "balanceOf"
	FunctionDecimals  = "decimals"
	FunctionFaucet    = "faucet"

	// Lisk Sepolia deployment
	NetworkLiskSepolia    = "eip155:4202"
	LiskSepoliaRPC        = "https://rpc.sepolia-api.lisk.com"
	LiskSepoliaBlockscout = "https://sepolia-blockscout.lisk.com"

	MarketplaceAddress = "0x62AFbeaBc2594DA954977cDae5Ba400e301DC75C"
	MockNFTAddress     = "0xd5B14514255B6a6B23930A9D779414D59aA4D64b"
	USDCAddress        = "0x0Ff0aED4862e168086FD8BC38a4c27cE1830228b"
	USDTAddress        = "0xBc63b0cf19b757c2a6Ef646027f8CeA7Af2c3e7F"
	DAIAddress         = "0xd2aAa24D5C305B7968e955A89F0bf4E7776E7078"
	WBTCAddress        = "0x1BEC7ec7F995B9bcd93F411B2cE7d289C6b05f03"
	IDRXAddress        = "0x39B9205cDC53114c0B0F22F04C1215A13197b4d9"

	// DefaultGasLimit is used when gas estimation is unavailable
	DefaultGasLimit = 300000
)

var (
	// Network chain IDs
	ChainIDLiskSepolia = big.NewInt(4202)

	// MaxUint256 is the allowance granted by the unlimited approval policy
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// Network configurations
	NetworkConfigs = map[string]NetworkConfig{
		// Lisk Sepolia Testnet
		NetworkLiskSepolia: {
			ChainID:     ChainIDLiskSepolia,
			RPCURL:      LiskSepoliaRPC,
			ExplorerURL: LiskSepoliaBlockscout,
			Marketplace: MarketplaceAddress,
			NFT:         MockNFTAddress,
			Assets: []AssetInfo{
				{Address: USDCAddress, Symbol: "USDC", Name: "USD Coin", Decimals: 6},
				{Address: USDTAddress, Symbol: "USDT", Name: "Tether USD", Decimals: 6},
				{Address: DAIAddress, Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
				{Address: WBTCAddress, Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8},
				{Address: IDRXAddress, Symbol: "IDRX", Name: "Rupiah Token", Decimals: 18},
			},
		},
		// Lisk Sepolia Testnet (short name)
		"lisk-sepolia": {
			ChainID:     ChainIDLiskSepolia,
			RPCURL:      LiskSepoliaRPC,
			ExplorerURL: LiskSepoliaBlockscout,
			Marketplace: MarketplaceAddress,
			NFT:         MockNFTAddress,
			Assets: []AssetInfo{
				{Address: USDCAddress, Symbol: "USDC", Name: "USD Coin", Decimals: 6},
				{Address: USDTAddress, Symbol: "USDT", Name: "Tether USD", Decimals: 6},
				{Address: DAIAddress, Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
				{Address: WBTCAddress, Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8},
				{Address: IDRXAddress, Symbol: "IDRX", Name: "Rupiah Token", Decimals: 18},
			},
		},
	}

	// Marketplace ABI
	MarketplaceABI = []byte(`[
		{
			"inputs": [
				{"name": "nftContract", "type": "address"},
				{"name": "tokenId", "type": "uint256"},
				{"name": "paymentToken", "type": "address"},
				{"name": "price", "type": "uint256"}
			],
			"name": "listNFT",
			"outputs": [{"name": "listingId", "type": "uint256"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "listingId", "type": "uint256"}],
			"name": "buyNFT",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "listingId", "type": "uint256"},
				{"name": "buyer", "type": "address"}
			],
			"name": "buyNFTFor",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "listingId", "type": "uint256"}],
			"name": "cancelListing",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "listingId", "type": "uint256"},
				{"name": "newPrice", "type": "uint256"}
			],
			"name": "updateListingPrice",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "listingId", "type": "uint256"}],
			"name": "getListing",
			"outputs": [
				{
					"name": "",
					"type": "tuple",
					"components": [
						{"name": "listingId", "type": "uint256"},
						{"name": "nftContract", "type": "address"},
						{"name": "tokenId", "type": "uint256"},
						{"name": "seller", "type": "address"},
						{"name": "paymentToken", "type": "address"},
						{"name": "price", "type": "uint256"},
						{"name": "active", "type": "bool"},
						{"name": "listedAt", "type": "uint256"}
					]
				}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "listingId", "type": "uint256"}],
			"name": "getPrice",
			"outputs": [{"name": "price", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "paused",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC-721 ABI for the collection contract
	NFTABI = []byte(`[
		{
			"inputs": [{"name": "tokenId", "type": "uint256"}],
			"name": "tokenURI",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "tokenId", "type": "uint256"}],
			"name": "ownerOf",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "operator", "type": "address"},
				{"name": "approved", "type": "bool"}
			],
			"name": "setApprovalForAll",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "operator", "type": "address"}
			],
			"name": "isApprovedForAll",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)

	// ERC20 ABI for allowance, approve, balances and the test faucet
	ERC20ABI = []byte(`[
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"}
			],
			"name": "allowance",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "account", "type": "address"}],
			"name": "balanceOf",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "decimals",
			"outputs": [{"name": "", "type": "uint8"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "amount", "type": "uint256"}],
			"name": "faucet",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
)
