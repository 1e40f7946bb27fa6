package game

import (
	"math"
	"math/rand"
	"testing"

	"algoArenaServer/config"
)

// fixedSource pins the RNG so random-entry draws are deterministic.
// Float64 derives from Int63: 0 always triggers a random entry, 1<<62
// (Float64 of 0.5) never does.
type fixedSource struct{ v int64 }

func (s fixedSource) Int63() int64 { return s.v }
func (s fixedSource) Seed(int64)   {}

func neverRandom() *rand.Rand  { return rand.New(fixedSource{1 << 62}) }
func alwaysRandom() *rand.Rand { return rand.New(fixedSource{0}) }

func tickAt(open, close float64, now int64, rng *rand.Rand) TickContext {
	candle := PriceCandle{Timestamp: now, Open: open, Close: close,
		High: math.Max(open, close), Low: math.Min(open, close)}
	return TickContext{
		Candle:        candle,
		ChangePercent: candle.ChangePercent(),
		Now:           now,
		Rng:           rng,
	}
}

func TestBullOpensOnDip(t *testing.T) {
	strat := StrategyFor(AgentBull)

	t.Run("opens long below dip threshold", func(t *testing.T) {
		// -0.2% move, below the -0.1% threshold
		dir, ok := strat.ShouldOpen(tickAt(100, 99.8, 0, neverRandom()))
		if !ok || dir != PositionLong {
			t.Errorf("expected LONG open on dip, got %q ok=%v", dir, ok)
		}
	})

	t.Run("stays flat on a small move without random entry", func(t *testing.T) {
		if _, ok := strat.ShouldOpen(tickAt(100, 99.95, 0, neverRandom())); ok {
			t.Error("expected no open on -0.05% move")
		}
	})

	t.Run("random entry opens long regardless of move", func(t *testing.T) {
		dir, ok := strat.ShouldOpen(tickAt(100, 100.5, 0, alwaysRandom()))
		if !ok || dir != PositionLong {
			t.Errorf("expected LONG random entry, got %q ok=%v", dir, ok)
		}
	})
}

func TestBearOpensOnPump(t *testing.T) {
	strat := StrategyFor(AgentBear)

	dir, ok := strat.ShouldOpen(tickAt(100, 100.2, 0, neverRandom()))
	if !ok || dir != PositionShort {
		t.Errorf("expected SHORT open on pump, got %q ok=%v", dir, ok)
	}

	if _, ok := strat.ShouldOpen(tickAt(100, 99.8, 0, neverRandom())); ok {
		t.Error("expected no open on a dip for the bear")
	}
}

func TestCrabFadesBothDirections(t *testing.T) {
	strat := StrategyFor(AgentCrab)

	t.Run("shorts an up move", func(t *testing.T) {
		dir, ok := strat.ShouldOpen(tickAt(100, 100.1, 0, neverRandom()))
		if !ok || dir != PositionShort {
			t.Errorf("expected SHORT fade of +0.1%%, got %q ok=%v", dir, ok)
		}
	})

	t.Run("longs a down move", func(t *testing.T) {
		dir, ok := strat.ShouldOpen(tickAt(100, 99.9, 0, neverRandom()))
		if !ok || dir != PositionLong {
			t.Errorf("expected LONG fade of -0.1%%, got %q ok=%v", dir, ok)
		}
	})

	t.Run("ignores moves inside the band", func(t *testing.T) {
		if _, ok := strat.ShouldOpen(tickAt(100, 100.02, 0, neverRandom())); ok {
			t.Error("expected no open on +0.02% move")
		}
	})
}

func TestTrendCloseConditions(t *testing.T) {
	strat := StrategyFor(AgentBull)
	pos := &Position{Type: PositionLong, EntryPrice: 100, Size: 1000, Timestamp: 0}

	t.Run("take profit", func(t *testing.T) {
		// +0.02% profit, above the +0.01% take
		if !strat.ShouldClose(tickAt(100, 100.02, 1000, neverRandom()), pos) {
			t.Error("expected close at take profit")
		}
	})

	t.Run("stop loss", func(t *testing.T) {
		// -0.03% loss, below the -0.02% stop
		if !strat.ShouldClose(tickAt(100, 99.97, 1000, neverRandom()), pos) {
			t.Error("expected close at stop loss")
		}
	})

	t.Run("holds inside the band before max hold", func(t *testing.T) {
		// +0.005%, inside both thresholds, held 1s
		if strat.ShouldClose(tickAt(100, 100.005, 1000, neverRandom()), pos) {
			t.Error("expected position held inside the exit band")
		}
	})

	t.Run("max hold forces close", func(t *testing.T) {
		held := config.TrendMaxHold.Milliseconds() + 1
		if !strat.ShouldClose(tickAt(100, 100.005, held, neverRandom()), pos) {
			t.Error("expected close after max hold")
		}
	})
}

func TestCrabCloseIsTighter(t *testing.T) {
	strat := StrategyFor(AgentCrab)
	pos := &Position{Type: PositionShort, EntryPrice: 100, Size: 500, Timestamp: 0}

	// +0.008% profit for a short (price fell): above crab take, below trend take
	if !strat.ShouldClose(tickAt(100, 99.992, 1000, neverRandom()), pos) {
		t.Error("expected crab to take profit at +0.008%")
	}

	// Crab max hold is shorter than trend
	held := config.CrabMaxHold.Milliseconds() + 1
	if !strat.ShouldClose(tickAt(100, 100, held, neverRandom()), pos) {
		t.Error("expected crab close after its max hold")
	}
}

func TestUnrealizedPnlIsDirectional(t *testing.T) {
	long := &Position{Type: PositionLong, EntryPrice: 100, Size: 1000}
	short := &Position{Type: PositionShort, EntryPrice: 100, Size: 1000}

	if got := UnrealizedPnl(long, 101); math.Abs(got-10) > 1e-9 {
		t.Errorf("long pnl: expected 10, got %f", got)
	}
	if got := UnrealizedPnl(short, 101); math.Abs(got+10) > 1e-9 {
		t.Errorf("short pnl: expected -10, got %f", got)
	}
	// A long and a short over the same move cancel out
	if sum := UnrealizedPnl(long, 97.3) + UnrealizedPnl(short, 97.3); math.Abs(sum) > 1e-9 {
		t.Errorf("expected mirrored pnl to cancel, got %f", sum)
	}
}
