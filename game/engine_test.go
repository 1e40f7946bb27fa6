package game

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"algoArenaServer/config"
)

/* =========================
   TEST HARNESS
========================= */

// stubPrices returns a settable fixed price.
type stubPrices struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (s *stubPrices) set(price float64) {
	s.mu.Lock()
	s.price = price
	s.mu.Unlock()
}

func (s *stubPrices) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.price, s.err
}

// fakeClock replaces wall time so phase deadlines can be crossed on demand.
type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *fakeClock) setMs(ms int64) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

// captureBroadcaster records every event for assertion.
type captureBroadcaster struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	Event    string
	Data     interface{}
	Targeted string // address for SendToPlayer, "" for broadcast
}

func (b *captureBroadcaster) Broadcast(event string, data interface{}) {
	b.mu.Lock()
	b.events = append(b.events, capturedEvent{Event: event, Data: data})
	b.mu.Unlock()
}

func (b *captureBroadcaster) SendToPlayer(address, event string, data interface{}) {
	b.mu.Lock()
	b.events = append(b.events, capturedEvent{Event: event, Data: data, Targeted: address})
	b.mu.Unlock()
}

func (b *captureBroadcaster) last(event string) (capturedEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Event == event {
			return b.events[i], true
		}
	}
	return capturedEvent{}, false
}

const baseMs = int64(1_000_000)

func newTestEngine() (*Engine, *stubPrices, *fakeClock, *captureBroadcaster) {
	prices := &stubPrices{price: 100}
	clock := &fakeClock{ms: baseMs}
	out := &captureBroadcaster{}
	e := NewEngine(Config{
		Prices: prices,
		Out:    out,
		Rand:   rand.New(fixedSource{1 << 62}), // random entries never fire
		Now:    clock.Now,
	})
	return e, prices, clock, out
}

// tickAtMs advances the clock and runs one tick.
func tickAtMs(e *Engine, clock *fakeClock, ms int64) {
	clock.setMs(ms)
	e.Tick(context.Background())
}

// driveToActiveRound ticks through the startup delay and an empty voting
// phase, leaving the engine in round 1.
func driveToActiveRound(t *testing.T, e *Engine, clock *fakeClock) {
	t.Helper()
	tickAtMs(e, clock, baseMs+config.StartupDelay.Milliseconds())
	if !e.Snapshot().IsVotingPhase {
		t.Fatal("expected voting phase after startup delay")
	}
	tickAtMs(e, clock, clock.Now()+config.VotingDuration.Milliseconds())
	snap := e.Snapshot()
	if !snap.IsRoundActive || snap.CurrentRoundID != 1 {
		t.Fatalf("expected round 1 active, got %+v", snap)
	}
}

/* =========================
   FULL ROUND LIFECYCLE
========================= */

func TestRoundLifecycle(t *testing.T) {
	e, prices, clock, out := newTestEngine()

	e.Join("0xalice")

	// Voting has not started yet
	if _, err := e.VoteAsset("0xalice", "ETH/USD"); !errors.Is(err, ErrNotVotingPhase) {
		t.Fatalf("expected ErrNotVotingPhase before startup, got %v", err)
	}

	// Startup delay elapses: voting opens
	tickAtMs(e, clock, baseMs+5_000)
	snap := e.Snapshot()
	if !snap.IsVotingPhase || snap.IsRoundActive {
		t.Fatalf("expected voting phase only, got voting=%v active=%v", snap.IsVotingPhase, snap.IsRoundActive)
	}

	// Sole vote decides the asset
	tally, err := e.VoteAsset("0xalice", "ETH/USD")
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if tally["ETH/USD"] != 1 {
		t.Errorf("expected 1 vote for ETH/USD, got %d", tally["ETH/USD"])
	}
	if _, err := e.VoteAsset("0xalice", "DOGE/USD"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}

	// Voting ends: round 1 starts on the voted asset with a fresh chart
	tickAtMs(e, clock, baseMs+20_000)
	snap = e.Snapshot()
	if snap.IsVotingPhase {
		t.Fatal("expected voting phase over")
	}
	if !snap.IsRoundActive || snap.CurrentRoundID != 1 {
		t.Fatalf("expected round 1 active, got id=%d active=%v", snap.CurrentRoundID, snap.IsRoundActive)
	}
	if snap.CurrentAsset != "ETH/USD" {
		t.Errorf("expected voted asset ETH/USD, got %s", snap.CurrentAsset)
	}
	if len(snap.PriceHistory) != 0 {
		t.Errorf("expected chart cleared on asset switch, got %d candles", len(snap.PriceHistory))
	}

	// Hiring requires a joined player; duplicates are rejected
	if _, err := e.HireAgent("0xbob", AgentBull); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("expected ErrPlayerNotFound, got %v", err)
	}
	if _, err := e.HireAgent("0xalice", AgentBull); err != nil {
		t.Fatalf("hire failed: %v", err)
	}
	if _, err := e.HireAgent("0xalice", AgentBull); !errors.Is(err, ErrAgentAlreadyHired) {
		t.Errorf("expected ErrAgentAlreadyHired, got %v", err)
	}

	// Flat tick: no entry
	tickAtMs(e, clock, baseMs+21_000)
	player, _ := e.Player("0xalice")
	if player.HiredAgents[0].Position != nil {
		t.Fatal("expected no position on a flat tick")
	}

	// A -0.2% dip triggers the bull's long late in the round
	prices.set(99.8)
	tickAtMs(e, clock, baseMs+195_000)
	player, _ = e.Player("0xalice")
	pos := player.HiredAgents[0].Position
	if pos == nil {
		t.Fatal("expected long position after dip")
	}
	if pos.Type != PositionLong {
		t.Errorf("expected LONG, got %s", pos.Type)
	}
	if math.Abs(pos.Size-1000) > 1e-9 {
		t.Errorf("expected size 1000 (base * power/100), got %f", pos.Size)
	}

	// Round deadline: the held position is force-closed at the final price
	prices.set(99.8005)
	tickAtMs(e, clock, baseMs+200_000)

	snap = e.Snapshot()
	if snap.IsRoundActive || snap.IsVotingPhase {
		t.Fatalf("expected idle pause after round end, got voting=%v active=%v", snap.IsVotingPhase, snap.IsRoundActive)
	}

	player, _ = e.Player("0xalice")
	if player.HiredAgents[0].Position != nil {
		t.Error("expected position force-closed at round end")
	}
	wantPnl := (99.8005 - 99.8) * 1000 / 99.8
	if math.Abs(player.Pnl-wantPnl) > 1e-9 {
		t.Errorf("expected pnl %f, got %f", wantPnl, player.Pnl)
	}
	// Realized pnl identity: player total equals the sum over trades
	if math.Abs(player.Pnl-player.HiredAgents[0].TotalTradePnl()) > 1e-9 {
		t.Errorf("player pnl %f does not match trade sum %f", player.Pnl, player.HiredAgents[0].TotalTradePnl())
	}

	ended, ok := out.last("round-ended")
	if !ok {
		t.Fatal("expected round-ended broadcast")
	}
	result := ended.Data.(RoundResult)
	if result.Winner == nil || result.Winner.Address != "0xalice" {
		t.Errorf("expected alice to win, got %+v", result.Winner)
	}

	// Next voting opens after the result pause and wipes the roster
	tickAtMs(e, clock, baseMs+210_000)
	snap = e.Snapshot()
	if !snap.IsVotingPhase {
		t.Fatal("expected next voting phase after the pause")
	}
	player, _ = e.Player("0xalice")
	if len(player.HiredAgents) != 0 {
		t.Errorf("expected roster wiped at voting start, got %d agents", len(player.HiredAgents))
	}
	if math.Abs(player.Pnl-wantPnl) > 1e-9 {
		t.Errorf("expected cumulative pnl to survive the wipe, got %f", player.Pnl)
	}
}

/* =========================
   VOTING
========================= */

func TestVotePluralityAndRevote(t *testing.T) {
	e, _, clock, _ := newTestEngine()
	tickAtMs(e, clock, baseMs+5_000)

	for _, addr := range []string{"0xa", "0xb"} {
		if _, err := e.VoteAsset(addr, "BTC/USD"); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}
	for _, addr := range []string{"0xc", "0xd", "0xe"} {
		if _, err := e.VoteAsset(addr, "ETH/USD"); err != nil {
			t.Fatalf("vote failed: %v", err)
		}
	}
	tally, _ := e.VoteAsset("0xf", "SOL/USD")
	if tally["BTC/USD"] != 2 || tally["ETH/USD"] != 3 || tally["SOL/USD"] != 1 {
		t.Fatalf("unexpected tally %v", tally)
	}

	// A re-vote moves the voter, it never double-counts
	tally, _ = e.VoteAsset("0xa", "ETH/USD")
	if tally["BTC/USD"] != 1 || tally["ETH/USD"] != 4 {
		t.Fatalf("expected re-vote to move 0xa, got %v", tally)
	}

	tickAtMs(e, clock, baseMs+20_000)
	if got := e.CurrentAsset().Symbol; got != "ETH/USD" {
		t.Errorf("expected plurality winner ETH/USD, got %s", got)
	}
}

func TestVoteTieBreaksInConfigOrder(t *testing.T) {
	e, _, clock, _ := newTestEngine()
	tickAtMs(e, clock, baseMs+5_000)

	// One vote each for the second and third configured assets
	e.VoteAsset("0xa", config.Assets[2].Symbol)
	e.VoteAsset("0xb", config.Assets[1].Symbol)

	tickAtMs(e, clock, baseMs+20_000)
	if got := e.CurrentAsset().Symbol; got != config.Assets[1].Symbol {
		t.Errorf("expected tie to resolve to %s, got %s", config.Assets[1].Symbol, got)
	}
}

func TestZeroVotesStillPicksAConfiguredAsset(t *testing.T) {
	e, _, clock, _ := newTestEngine()
	tickAtMs(e, clock, baseMs+5_000)
	tickAtMs(e, clock, baseMs+20_000)

	snap := e.Snapshot()
	if !snap.IsRoundActive {
		t.Fatal("expected round to start even with zero votes")
	}
	if _, ok := config.FindAsset(snap.CurrentAsset); !ok {
		t.Errorf("expected a configured asset, got %s", snap.CurrentAsset)
	}
}

/* =========================
   BOOST
========================= */

func TestBoostAppliesOnceAndNeverStacks(t *testing.T) {
	e, prices, clock, _ := newTestEngine()
	e.Join("0xalice")
	driveToActiveRound(t, e, clock)

	if _, err := e.BoostAgent("0xalice", AgentBull); !errors.Is(err, ErrAgentNotHired) {
		t.Fatalf("expected ErrAgentNotHired before hiring, got %v", err)
	}

	if _, err := e.HireAgent("0xalice", AgentBull); err != nil {
		t.Fatalf("hire failed: %v", err)
	}

	// Boost twice; the second one is a no-op
	if _, err := e.BoostAgent("0xalice", AgentBull); err != nil {
		t.Fatalf("boost failed: %v", err)
	}
	if _, err := e.BoostAgent("0xalice", AgentBull); err != nil {
		t.Fatalf("repeat boost failed: %v", err)
	}

	// Flat tick to seed the chart, then a dip to trigger the entry
	tickAtMs(e, clock, clock.Now()+1_000)
	prices.set(99.8)
	tickAtMs(e, clock, clock.Now()+1_000)

	player, _ := e.Player("0xalice")
	pos := player.HiredAgents[0].Position
	if pos == nil {
		t.Fatal("expected position after dip")
	}
	want := config.BullSizeBase * config.BoostSizeMultiplier
	if math.Abs(pos.Size-want) > 1e-9 {
		t.Errorf("expected boosted size %f exactly once, got %f", want, pos.Size)
	}
}

/* =========================
   MISC INVARIANTS
========================= */

func TestJoinIsIdempotent(t *testing.T) {
	e, _, _, out := newTestEngine()

	first := e.Join("0xalice")
	if first.StartingCapital != config.StartingCapital {
		t.Errorf("expected starting capital %f, got %f", config.StartingCapital, first.StartingCapital)
	}

	again := e.Join("0xalice")
	if again.Address != first.Address {
		t.Error("expected rejoin to return the same player")
	}
	if e.Snapshot().PlayerCount != 1 {
		t.Errorf("expected 1 player after rejoin, got %d", e.Snapshot().PlayerCount)
	}

	// The count is announced when an agent is hired, never on join
	if _, ok := out.last("player-count"); ok {
		t.Error("expected no player-count broadcast on join")
	}
}

func TestAgentHoldsAtMostOnePosition(t *testing.T) {
	e, prices, clock, _ := newTestEngine()
	e.Join("0xalice")
	driveToActiveRound(t, e, clock)

	if _, err := e.HireAgent("0xalice", AgentBull); err != nil {
		t.Fatalf("hire failed: %v", err)
	}

	tickAtMs(e, clock, clock.Now()+1_000)
	prices.set(99.8)
	tickAtMs(e, clock, clock.Now()+1_000)
	player, _ := e.Player("0xalice")
	if player.HiredAgents[0].Position == nil {
		t.Fatal("expected position after first dip")
	}

	// A second dip deep enough to trigger an entry also trips the stop loss
	// on the held position: the tick closes, it never stacks a second open.
	prices.set(99.6)
	tickAtMs(e, clock, clock.Now()+1_000)
	player, _ = e.Player("0xalice")
	agent := player.HiredAgents[0]
	if agent.Position != nil {
		t.Error("expected stop loss close, not a second position")
	}
	if len(agent.Trades) != 1 {
		t.Errorf("expected exactly one closed trade, got %d", len(agent.Trades))
	}
}

func TestPriceFetchFailureFallsBack(t *testing.T) {
	e, prices, clock, out := newTestEngine()

	tickAtMs(e, clock, baseMs+1_000)
	prices.err = errors.New("hermes down")
	tickAtMs(e, clock, baseMs+2_000)

	update, ok := out.last("price-update")
	if !ok {
		t.Fatal("expected price-update despite fetch failure")
	}
	data := update.Data.(map[string]interface{})
	if got := data["price"].(float64); got != 100 {
		t.Errorf("expected fallback to last known price 100, got %f", got)
	}
}

func TestSnapshotTrimsHistory(t *testing.T) {
	e, _, clock, _ := newTestEngine()
	driveToActiveRound(t, e, clock)

	for i := 0; i < config.SnapshotCandles+30; i++ {
		tickAtMs(e, clock, clock.Now()+1_000)
	}

	snap := e.Snapshot()
	if len(snap.PriceHistory) != config.SnapshotCandles {
		t.Errorf("expected snapshot trimmed to %d candles, got %d", config.SnapshotCandles, len(snap.PriceHistory))
	}

	_, full := e.PriceHistory()
	if len(full) <= config.SnapshotCandles {
		t.Errorf("expected full history longer than the snapshot, got %d", len(full))
	}
}
