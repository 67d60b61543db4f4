package aave

// Aave V3 pool read surface
const poolABI = `[
	{
		"inputs": [{"internalType": "address", "name": "user", "type": "address"}],
		"name": "getUserAccountData",
		"outputs": [
			{"internalType": "uint256", "name": "totalCollateralBase", "type": "uint256"},
			{"internalType": "uint256", "name": "totalDebtBase", "type": "uint256"},
			{"internalType": "uint256", "name": "availableBorrowsBase", "type": "uint256"},
			{"internalType": "uint256", "name": "currentLiquidationThreshold", "type": "uint256"},
			{"internalType": "uint256", "name": "ltv", "type": "uint256"},
			{"internalType": "uint256", "name": "healthFactor", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getReservesList",
		"outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const oracleABI = `[
	{
		"inputs": [{"internalType": "address", "name": "asset", "type": "address"}],
		"name": "getAssetPrice",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

const dataProviderABI = `[
	{
		"inputs": [{"internalType": "address", "name": "asset", "type": "address"}],
		"name": "getReserveConfigurationData",
		"outputs": [
			{"internalType": "uint256", "name": "decimals", "type": "uint256"},
			{"internalType": "uint256", "name": "ltv", "type": "uint256"},
			{"internalType": "uint256", "name": "liquidationThreshold", "type": "uint256"},
			{"internalType": "uint256", "name": "liquidationBonus", "type": "uint256"},
			{"internalType": "uint256", "name": "reserveFactor", "type": "uint256"},
			{"internalType": "bool", "name": "usageAsCollateralEnabled", "type": "bool"},
			{"internalType": "bool", "name": "borrowingEnabled", "type": "bool"},
			{"internalType": "bool", "name": "stableBorrowRateEnabled", "type": "bool"},
			{"internalType": "bool", "name": "isActive", "type": "bool"},
			{"internalType": "bool", "name": "isFrozen", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "address", "name": "asset", "type": "address"}],
		"name": "getReserveTokensAddresses",
		"outputs": [
			{"internalType": "address", "name": "aTokenAddress", "type": "address"},
			{"internalType": "address", "name": "stableDebtTokenAddress", "type": "address"},
			{"internalType": "address", "name": "variableDebtTokenAddress", "type": "address"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// aToken and debt tokens share the ERC20 read surface plus the underlying pointer
const tokenABI = `[
	{
		"inputs": [{"internalType": "address", "name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "UNDERLYING_ASSET_ADDRESS",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`
