package config

import (
	"math/big"
	"time"
)

/* =========================
   NETWORK CONFIGURATION
========================= */

const (
	// Default EVM RPC used for paywall payment verification.
	// Override with RPC_URL.
	DefaultRPC = "https://rpc.sepolia.mantle.xyz"

	// Default treasury (pay-to) address. Override with TREASURY_ADDRESS.
	DefaultTreasuryAddress = "0x43a01A18a2C947179595A7b17bDCc3d88ecF04F5"
)

/* =========================
   PRICE FEED CONFIGURATION
========================= */

const (
	// Pyth Hermes endpoint. Override with HERMES_URL.
	DefaultHermesURL = "https://hermes.pyth.network"

	// Fallback price used before the first successful oracle fetch.
	DefaultPrice = 95000.0

	// HTTP timeout for a single price fetch. A slow fetch delays that
	// tick's broadcast; it is never cancelled mid-flight.
	PriceFetchTimeout = 5 * time.Second
)

// Asset describes a votable/tradable market.
type Asset struct {
	Symbol string `json:"symbol"`
	Icon   string `json:"icon"`
	FeedID string `json:"-"`
}

// Assets is the fixed set of markets players can vote on. Order matters:
// vote ties resolve to the first asset reaching the max count in this order.
var Assets = []Asset{
	{Symbol: "BTC/USD", Icon: "₿", FeedID: "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"},
	{Symbol: "ETH/USD", Icon: "Ξ", FeedID: "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"},
	{Symbol: "SOL/USD", Icon: "◎", FeedID: "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"},
	{Symbol: "MOVE/USD", Icon: "Ⓜ", FeedID: "0x44a93dddd8effa54ea51076c4e851b6cbbfd938e82eb90197de38fe8876bb66e"},
}

// FindAsset returns the configured asset for a symbol, or false.
func FindAsset(symbol string) (Asset, bool) {
	for _, a := range Assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}

/* =========================
   GAME MECHANICS - ARENA
========================= */

const (
	// Tick and phase timing
	TickInterval     = 1 * time.Second  // one game tick per second
	StartupDelay     = 5 * time.Second  // delay before the first voting phase
	VotingDuration   = 15 * time.Second // asset voting window between rounds
	RoundDuration    = 3 * time.Minute  // active trading window
	RoundEndPause    = 10 * time.Second // result display pause before next voting
	MaxPriceHistory  = 200              // bounded candle history (per asset)
	SnapshotCandles  = 60               // candles sent in the initial snapshot
	StartingCapital  = 1000.0           // informational reference value per player
)

// Agent parameters. Thresholds are part of the game contract, not tuning.
const (
	// Power and sizing
	BullPower = 100
	BearPower = 100
	CrabPower = 80

	BullSizeBase = 1000.0 // notional = base * power / 100
	BearSizeBase = 1000.0
	CrabSizeBase = 500.0

	// Boosted agents open positions at 1.5x size. Power is unchanged and
	// boosting is one-way: repeat boosts do not stack.
	BoostSizeMultiplier = 1.5

	// Entry thresholds (percent move of the tick candle)
	BullDipThreshold  = -0.1 // BULL opens LONG below this
	BearPumpThreshold = 0.1  // BEAR opens SHORT above this
	CrabMoveThreshold = 0.05 // CRAB fades moves beyond +/- this

	// Random entry chance per tick per agent (independent draws)
	BullRandomEntry = 0.15
	BearRandomEntry = 0.15
	CrabRandomEntry = 0.20

	// Exit thresholds (percent profit on entry price) and max hold
	TrendTakeProfit = 0.01
	TrendStopLoss   = -0.02
	CrabTakeProfit  = 0.005
	CrabStopLoss    = -0.01
)

const (
	TrendMaxHold = 15 * time.Second
	CrabMaxHold  = 10 * time.Second
)

// Agent display names, keyed by type string.
var AgentNames = map[string]string{
	"BULL": "Bullish Bob",
	"BEAR": "Bearish Ben",
	"CRAB": "Crab Carol",
}

/* =========================
   ACCESS TOKEN CONFIGURATION
========================= */

const (
	// Single-use hire tokens expire 3 minutes after payment.
	AccessTokenTTL = 3 * time.Minute
)

/* =========================
   PAYWALL PRICING
========================= */

var (
	// Hire prices in wei (18 decimals)
	BullHirePrice = TokenToWei(0.1)
	BearHirePrice = TokenToWei(0.1)
	CrabHirePrice = TokenToWei(0.05)
	BoostPrice    = TokenToWei(0.05)
)

/* =========================
   REDIS CONFIGURATION
========================= */

const (
	// Access token mirror key. TTL matches AccessTokenTTL.
	// Key: arena:token:{token}
	RedisAccessTokenKey = "arena:token:%s"
)

/* =========================
   POSTGRESQL CONFIGURATION
========================= */

const (
	// Connection pool settings
	MaxOpenConns    = 25
	MinIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute

	// Recent rounds kept queryable via /api/rounds
	RoundHistoryLimit = 50
)

/* =========================
   API CONFIGURATION
========================= */

const (
	// Server settings
	ServerPort = "4402"
	ServerHost = "0.0.0.0"
)

/* =========================
   WEBSOCKET CONFIGURATION
========================= */

const (
	// Per-client outbound buffer; slow clients drop messages rather than
	// blocking the engine.
	WSSendBufferSize = 256

	// Broadcast channel depth
	WSBroadcastBuffer = 100
)

/* =========================
   HELPER FUNCTIONS
========================= */

// WeiToToken converts wei (uint256) to whole tokens (float64).
func WeiToToken(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	weiFloat := new(big.Float).SetInt(wei)
	divisor := new(big.Float).SetFloat64(1e18)
	result := new(big.Float).Quo(weiFloat, divisor)
	out, _ := result.Float64()
	return out
}

// TokenToWei converts whole tokens (float64) to wei (*big.Int).
func TokenToWei(amount float64) *big.Int {
	weiFloat := new(big.Float).SetFloat64(amount * 1e18)
	wei, _ := weiFloat.Int(nil)
	return wei
}
