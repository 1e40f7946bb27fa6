package game

import (
	"math"

	"algoArenaServer/config"
)

// BuildCandle derives the next single-sample candle from the previous one.
// Open chains to the previous close; with no previous candle all four
// fields start from the new sample. This is deliberately NOT a time-bucketed
// OHLC aggregation - one tick, one candle.
func BuildCandle(prev *PriceCandle, price float64, now int64) PriceCandle {
	open := price
	if prev != nil {
		open = prev.Close
	}
	return PriceCandle{
		Timestamp: now,
		Open:      open,
		High:      math.Max(open, price),
		Low:       math.Min(open, price),
		Close:     price,
	}
}

// AppendCandle appends and trims the rolling history to MaxPriceHistory.
func AppendCandle(history []PriceCandle, candle PriceCandle) []PriceCandle {
	history = append(history, candle)
	if len(history) > config.MaxPriceHistory {
		history = history[len(history)-config.MaxPriceHistory:]
	}
	return history
}

// ChangePercent is the candle's close-vs-open move in percent, shared by
// every agent on the tick it was built.
func (c PriceCandle) ChangePercent() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100
}
