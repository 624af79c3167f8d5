package model

// Network identifies the chain the engine is reading from. Deposit token
// option behavior branches on it: test networks bypass real token data
// entirely and serve a fixed static list.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkGoerli  Network = "goerli"
	NetworkSepolia Network = "sepolia"
)

// IsTestnet reports whether the network is a test network.
func (n Network) IsTestnet() bool {
	return n == NetworkGoerli || n == NetworkSepolia
}

// EthAddress is the pseudo-address used for native ETH in token lists.
const EthAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// EthToken is the native-ETH pseudo token, included in deposit options
// only when the caller allows it.
var EthToken = TokenView{
	Address:  EthAddress,
	Symbol:   "ETH",
	Decimals: 18,
}

// MainDepositTokens are the configured "main" collateral tokens on
// production networks. They are always ordered before subgraph-discovered
// tokens in deposit option lists.
var MainDepositTokens = []TokenView{
	{Address: Checksum("0x6b175474e89094c44da98b954eedeac495271d0f"), Symbol: "DAI", Decimals: 18},
	{Address: Checksum("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"), Symbol: "USDC", Decimals: 6},
	{Address: Checksum("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"), Symbol: "WETH", Decimals: 18},
}

// TestnetDepositTokens is the fixed static list served on test networks.
var TestnetDepositTokens = []TokenView{
	{Address: Checksum("0x11fe4b6ae13d2a6055c8d9cf65c55bac32b5d844"), Symbol: "DAI", Decimals: 18},
	{Address: Checksum("0x07865c6e87b9f70255377e024ace6630c1eaa37f"), Symbol: "USDC", Decimals: 6},
	{Address: Checksum("0xb4fbf271143f4fbf7b91a5ded31805e42b2208d6"), Symbol: "WETH", Decimals: 18},
}
