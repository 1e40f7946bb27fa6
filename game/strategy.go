package game

import (
	"math"
	"math/rand"

	"algoArenaServer/config"
)

// TickContext carries the per-tick inputs shared by every agent: the tick's
// candle, its precomputed change percent, the tick timestamp, and the
// engine's RNG for the independent per-agent entry draws.
type TickContext struct {
	Candle        PriceCandle
	ChangePercent float64
	Now           int64
	Rng           *rand.Rand
}

// Strategy is one of the closed set of agent behaviors. Implementations are
// stateless; all agent state lives on AgentState.
type Strategy interface {
	// ShouldOpen decides whether an agent with no position opens one this
	// tick, and in which direction.
	ShouldOpen(ctx TickContext) (PositionType, bool)

	// ShouldClose decides whether the open position is closed this tick.
	ShouldClose(ctx TickContext, pos *Position) bool

	// SizeBase is the notional base scaled by power/100 at open time.
	SizeBase() float64
}

// StrategyFor dispatches the strategy implementation for an agent type.
func StrategyFor(t AgentType) Strategy {
	switch t {
	case AgentBull:
		return bullStrategy{}
	case AgentBear:
		return bearStrategy{}
	default:
		return crabStrategy{}
	}
}

// UnrealizedPnl is the directional price delta scaled by size over entry.
func UnrealizedPnl(pos *Position, price float64) float64 {
	if pos.Type == PositionLong {
		return (price - pos.EntryPrice) * pos.Size / pos.EntryPrice
	}
	return (pos.EntryPrice - price) * pos.Size / pos.EntryPrice
}

// profitPercent is the directional entry-to-price move in percent.
func profitPercent(pos *Position, price float64) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	if pos.Type == PositionLong {
		return (price - pos.EntryPrice) / pos.EntryPrice * 100
	}
	return (pos.EntryPrice - price) / pos.EntryPrice * 100
}

func heldMs(pos *Position, now int64) int64 {
	return now - pos.Timestamp
}

/* =========================
   BULLISH BOB
========================= */

// bullStrategy buys dips and takes quick profits.
type bullStrategy struct{}

func (bullStrategy) ShouldOpen(ctx TickContext) (PositionType, bool) {
	if ctx.ChangePercent < config.BullDipThreshold {
		return PositionLong, true
	}
	if ctx.Rng.Float64() < config.BullRandomEntry {
		return PositionLong, true
	}
	return "", false
}

func (bullStrategy) ShouldClose(ctx TickContext, pos *Position) bool {
	profit := profitPercent(pos, ctx.Candle.Close)
	return profit > config.TrendTakeProfit ||
		profit < config.TrendStopLoss ||
		heldMs(pos, ctx.Now) > config.TrendMaxHold.Milliseconds()
}

func (bullStrategy) SizeBase() float64 { return config.BullSizeBase }

/* =========================
   BEARISH BEN
========================= */

// bearStrategy shorts pumps and covers quickly.
type bearStrategy struct{}

func (bearStrategy) ShouldOpen(ctx TickContext) (PositionType, bool) {
	if ctx.ChangePercent > config.BearPumpThreshold {
		return PositionShort, true
	}
	if ctx.Rng.Float64() < config.BearRandomEntry {
		return PositionShort, true
	}
	return "", false
}

func (bearStrategy) ShouldClose(ctx TickContext, pos *Position) bool {
	profit := profitPercent(pos, ctx.Candle.Close)
	return profit > config.TrendTakeProfit ||
		profit < config.TrendStopLoss ||
		heldMs(pos, ctx.Now) > config.TrendMaxHold.Milliseconds()
}

func (bearStrategy) SizeBase() float64 { return config.BearSizeBase }

/* =========================
   CRAB CAROL
========================= */

// crabStrategy fades moves in either direction for small mean-reversion
// profits. Tighter exits and a shorter max hold than the trend agents.
type crabStrategy struct{}

func (crabStrategy) ShouldOpen(ctx TickContext) (PositionType, bool) {
	triggered := math.Abs(ctx.ChangePercent) > config.CrabMoveThreshold
	if !triggered && ctx.Rng.Float64() >= config.CrabRandomEntry {
		return "", false
	}
	if ctx.ChangePercent > 0 {
		return PositionShort, true
	}
	return PositionLong, true
}

func (crabStrategy) ShouldClose(ctx TickContext, pos *Position) bool {
	profit := profitPercent(pos, ctx.Candle.Close)
	return profit > config.CrabTakeProfit ||
		profit < config.CrabStopLoss ||
		heldMs(pos, ctx.Now) > config.CrabMaxHold.Milliseconds()
}

func (crabStrategy) SizeBase() float64 { return config.CrabSizeBase }
