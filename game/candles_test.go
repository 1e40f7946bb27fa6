package game

import (
	"math"
	"testing"

	"algoArenaServer/config"
)

func TestBuildCandleChaining(t *testing.T) {
	t.Run("first candle uses the sample for all four fields", func(t *testing.T) {
		c := BuildCandle(nil, 100.0, 1000)
		if c.Open != 100.0 || c.High != 100.0 || c.Low != 100.0 || c.Close != 100.0 {
			t.Errorf("expected flat candle at 100, got %+v", c)
		}
		if c.Timestamp != 1000 {
			t.Errorf("expected timestamp 1000, got %d", c.Timestamp)
		}
	})

	t.Run("open chains to previous close", func(t *testing.T) {
		prev := BuildCandle(nil, 100.0, 1000)
		next := BuildCandle(&prev, 98.5, 2000)

		if next.Open != prev.Close {
			t.Errorf("expected open %f to equal previous close %f", next.Open, prev.Close)
		}
		if next.Close != 98.5 {
			t.Errorf("expected close 98.5, got %f", next.Close)
		}
		if next.High != 100.0 {
			t.Errorf("expected high 100 on a down candle, got %f", next.High)
		}
		if next.Low != 98.5 {
			t.Errorf("expected low 98.5 on a down candle, got %f", next.Low)
		}
	})

	t.Run("up candle orders high and low correctly", func(t *testing.T) {
		prev := BuildCandle(nil, 100.0, 1000)
		next := BuildCandle(&prev, 103.0, 2000)

		if next.High != 103.0 || next.Low != 100.0 {
			t.Errorf("expected high 103 low 100, got high %f low %f", next.High, next.Low)
		}
	})
}

func TestAppendCandleBounded(t *testing.T) {
	var history []PriceCandle

	total := config.MaxPriceHistory + 50
	for i := 0; i < total; i++ {
		candle := PriceCandle{Timestamp: int64(i), Close: float64(i)}
		history = AppendCandle(history, candle)
	}

	if len(history) != config.MaxPriceHistory {
		t.Fatalf("expected history capped at %d, got %d", config.MaxPriceHistory, len(history))
	}

	// Oldest entries are dropped, newest kept
	if history[0].Timestamp != int64(total-config.MaxPriceHistory) {
		t.Errorf("expected oldest timestamp %d, got %d", total-config.MaxPriceHistory, history[0].Timestamp)
	}
	if history[len(history)-1].Timestamp != int64(total-1) {
		t.Errorf("expected newest timestamp %d, got %d", total-1, history[len(history)-1].Timestamp)
	}
}

func TestChangePercent(t *testing.T) {
	tests := []struct {
		name  string
		open  float64
		close float64
		want  float64
	}{
		{"two percent drop", 100, 98, -2.0},
		{"half percent rise", 200, 201, 0.5},
		{"flat", 100, 100, 0},
		{"zero open guards division", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := PriceCandle{Open: tt.open, Close: tt.close}
			got := c.ChangePercent()
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}
