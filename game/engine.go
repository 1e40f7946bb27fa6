package game

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"algoArenaServer/config"
)

// PriceSource produces a spot price for an asset symbol. Failures are the
// caller's problem: the engine degrades to the last known price so a tick
// can always proceed.
type PriceSource interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// Broadcaster pushes outbound events: Broadcast fans out to every connected
// client, SendToPlayer targets only the sessions joined as that address.
type Broadcaster interface {
	Broadcast(event string, data interface{})
	SendToPlayer(address, event string, data interface{})
}

// RoundSink receives finished-round data for persistence. Implementations
// must tolerate being called from a goroutine after the round already moved
// on; the engine never reads anything back.
type RoundSink interface {
	RecordRound(roundID int, asset string, result RoundResult, pnlDeltas map[string]float64)
}

// Action validation errors reported back to the calling session.
var (
	ErrPlayerNotFound    = errors.New("player not found")
	ErrAgentAlreadyHired = errors.New("agent already hired")
	ErrAgentNotHired     = errors.New("agent not hired")
	ErrNotVotingPhase    = errors.New("voting is not open")
	ErrUnknownAsset      = errors.New("unknown asset")
)

// Config wires the engine's collaborators. Out is required; the rest have
// working defaults (Sink may be nil).
type Config struct {
	Prices PriceSource
	Out    Broadcaster
	Sink   RoundSink
	Rand   *rand.Rand
	Now    func() int64 // epoch ms, overridable in tests
}

// Engine owns the entire game state. One mutex guards the whole struct so
// cross-field invariants (phase flags, vote sets, rosters) stay atomic;
// the tick loop and all inbound action handlers serialize on it.
type Engine struct {
	mu sync.Mutex

	prices PriceSource
	out    Broadcaster
	sink   RoundSink
	rng    *rand.Rand
	now    func() int64

	currentRoundID int
	roundStartTime int64
	roundEndTime   int64
	isRoundActive  bool
	isVotingPhase  bool
	votingEndTime  int64

	// Deadline for the next voting phase: the startup delay at boot, the
	// post-round pause otherwise. Zero while a phase is running.
	nextVotingTime int64

	currentAsset config.Asset
	votes        map[string]string // voter address -> asset symbol
	players      map[string]*PlayerState
	priceHistory []PriceCandle
	currentPrice float64

	// Cumulative pnl captured at round start, for per-round deltas.
	roundStartPnl map[string]float64
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, interface{})             {}
func (noopBroadcaster) SendToPlayer(string, string, interface{}) {}

// NewEngine builds an engine in the pre-voting waiting state. The first
// voting phase is scheduled by Run.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		prices:        cfg.Prices,
		out:           cfg.Out,
		sink:          cfg.Sink,
		rng:           cfg.Rand,
		now:           cfg.Now,
		currentAsset:  config.Assets[0],
		votes:         make(map[string]string),
		players:       make(map[string]*PlayerState),
		roundStartPnl: make(map[string]float64),
	}
	if e.out == nil {
		e.out = noopBroadcaster{}
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.now == nil {
		e.now = func() int64 { return time.Now().UnixMilli() }
	}
	e.nextVotingTime = e.now() + config.StartupDelay.Milliseconds()
	return e
}

// Run drives the game: one tick per second until ctx is cancelled. Phase
// transitions fire from deadline checks inside the tick, so a round end can
// overshoot its nominal deadline by up to one tick interval. The first
// voting phase was scheduled at construction.
func (e *Engine) Run(ctx context.Context) {
	log.Println("🎮 Arena engine started")

	// Prime the price before the first round so early candles aren't zero.
	if price, err := e.fetchPrice(ctx); err == nil {
		e.mu.Lock()
		e.currentPrice = price
		e.mu.Unlock()
		log.Printf("💵 Initial %s price: $%.2f", e.CurrentAsset().Symbol, price)
	}

	ticker := time.NewTicker(config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Arena engine stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one game step: fetch price, build candle, trade agents, then
// apply any phase transition whose deadline has passed. Every transition is
// guarded by its phase flag, so a late tick cannot double-apply one.
func (e *Engine) Tick(ctx context.Context) {
	price, err := e.fetchPrice(ctx)
	if err != nil {
		// Silent degradation: reuse the last known price.
		e.mu.Lock()
		price = e.currentPrice
		e.mu.Unlock()
		if price == 0 {
			price = config.DefaultPrice
		}
		log.Printf("⚠️  Price fetch failed, using fallback %.2f: %v", price, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	var prev *PriceCandle
	if n := len(e.priceHistory); n > 0 {
		prev = &e.priceHistory[n-1]
	}
	candle := BuildCandle(prev, price, now)
	e.currentPrice = price
	e.priceHistory = AppendCandle(e.priceHistory, candle)

	if e.isRoundActive {
		e.processAgentTrades(candle, now)
	}

	e.out.Broadcast("price-update", map[string]interface{}{
		"price":     price,
		"candle":    candle,
		"asset":     e.currentAsset.Symbol,
		"assetIcon": e.currentAsset.Icon,
		"timestamp": now,
	})

	switch {
	case e.isVotingPhase && now >= e.votingEndTime:
		e.endVoting(now)
	case e.isRoundActive && now >= e.roundEndTime:
		e.endRound(now)
	case !e.isRoundActive && !e.isVotingPhase && e.nextVotingTime > 0 && now >= e.nextVotingTime:
		e.startVoting(now)
	}
}

func (e *Engine) fetchPrice(ctx context.Context) (float64, error) {
	if e.prices == nil {
		return 0, errors.New("no price source configured")
	}
	e.mu.Lock()
	symbol := e.currentAsset.Symbol
	e.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, config.PriceFetchTimeout)
	defer cancel()
	return e.prices.FetchPrice(fetchCtx, symbol)
}

/* =========================
   AGENT TRADING
========================= */

// processAgentTrades runs every hired agent once against the tick's candle.
// Agents act independently; there is no cross-player interaction or shared
// liquidity. Caller holds e.mu.
func (e *Engine) processAgentTrades(candle PriceCandle, now int64) {
	tick := TickContext{
		Candle:        candle,
		ChangePercent: candle.ChangePercent(),
		Now:           now,
		Rng:           e.rng,
	}

	for _, player := range e.players {
		for _, agent := range player.HiredAgents {
			strat := StrategyFor(agent.Type)

			if agent.Position == nil {
				if dir, ok := strat.ShouldOpen(tick); ok {
					size := strat.SizeBase() * float64(agent.Power) / 100
					if agent.IsBoosted {
						size *= config.BoostSizeMultiplier
					}
					agent.Position = &Position{
						Type:       dir,
						EntryPrice: candle.Close,
						Size:       size,
						Timestamp:  now,
					}
				}
			} else if strat.ShouldClose(tick, agent.Position) {
				e.closePosition(player, agent, candle.Close, now)
			}
		}

		e.out.SendToPlayer(player.Address, "player-update", e.playerUpdate(player))
	}
}

// closePosition realizes pnl into the player's cumulative total and records
// the trade. Caller holds e.mu.
func (e *Engine) closePosition(player *PlayerState, agent *AgentState, price float64, now int64) {
	pos := agent.Position
	pnl := UnrealizedPnl(pos, price)

	agent.Trades = append(agent.Trades, Trade{
		Type:       pos.Type,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Pnl:        pnl,
		Timestamp:  now,
	})
	player.Pnl += pnl
	agent.Position = nil
}

func (e *Engine) playerUpdate(player *PlayerState) PlayerUpdate {
	agents := make([]AgentView, 0, len(player.HiredAgents))
	for _, a := range player.HiredAgents {
		agents = append(agents, AgentView{
			Type:       a.Type,
			Name:       a.Name,
			Power:      a.Power,
			IsBoosted:  a.IsBoosted,
			Position:   a.Position,
			TradeCount: len(a.Trades),
			TotalPnl:   a.TotalTradePnl(),
		})
	}
	return PlayerUpdate{Address: player.Address, Pnl: player.Pnl, Agents: agents}
}

/* =========================
   PHASE TRANSITIONS
========================= */

// startVoting wipes every agent roster (cumulative pnl survives) and opens
// the voting window. Caller holds e.mu.
func (e *Engine) startVoting(now int64) {
	for _, player := range e.players {
		player.HiredAgents = nil
	}

	e.isVotingPhase = true
	e.isRoundActive = false
	e.votingEndTime = now + config.VotingDuration.Milliseconds()
	e.nextVotingTime = 0
	e.votes = make(map[string]string)

	e.out.Broadcast("voting-started", map[string]interface{}{
		"assets":        e.assetInfos(),
		"votingEndTime": e.votingEndTime,
	})
	log.Printf("🗳️  Voting phase started (ends in %s)", config.VotingDuration)
}

// endVoting resolves the plurality winner, clears the chart for the new
// asset, and starts the round. Caller holds e.mu.
func (e *Engine) endVoting(now int64) {
	winner := e.tallyWinner()
	tally := e.voteTally()

	e.isVotingPhase = false
	e.currentAsset = winner
	e.votes = make(map[string]string)
	e.priceHistory = nil

	e.out.Broadcast("voting-ended", map[string]interface{}{
		"winningAsset": winner.Symbol,
		"voteResults":  tally,
		"icon":         winner.Icon,
	})
	log.Printf("🏁 Voting ended - next asset: %s", winner.Symbol)

	e.startRound(now)
}

// tallyWinner picks the plurality asset. Ties resolve to whichever
// configured asset reaches the max count first in config order; with zero
// votes the winner is uniform random over the configured set.
func (e *Engine) tallyWinner() config.Asset {
	if len(e.votes) == 0 {
		return config.Assets[e.rng.Intn(len(config.Assets))]
	}

	tally := e.voteTally()
	best := config.Assets[0]
	bestCount := -1
	for _, asset := range config.Assets {
		if count := tally[asset.Symbol]; count > bestCount {
			best = asset
			bestCount = count
		}
	}
	return best
}

// voteTally counts distinct voters per asset. Caller holds e.mu.
func (e *Engine) voteTally() map[string]int {
	tally := make(map[string]int, len(config.Assets))
	for _, symbol := range e.votes {
		tally[symbol]++
	}
	return tally
}

// startRound opens the trading window on the freshly selected asset.
// Caller holds e.mu.
func (e *Engine) startRound(now int64) {
	e.currentRoundID++
	e.roundStartTime = now
	e.roundEndTime = now + config.RoundDuration.Milliseconds()
	e.isRoundActive = true

	e.roundStartPnl = make(map[string]float64, len(e.players))
	for addr, player := range e.players {
		e.roundStartPnl[addr] = player.Pnl
	}

	e.out.Broadcast("round-started", map[string]interface{}{
		"roundId":   e.currentRoundID,
		"startTime": e.roundStartTime,
		"endTime":   e.roundEndTime,
		"asset":     e.currentAsset.Symbol,
		"assetIcon": e.currentAsset.Icon,
	})
	log.Printf("🚦 Round %d started on %s", e.currentRoundID, e.currentAsset.Symbol)
}

// endRound force-closes every open position at the current price, ranks
// players by cumulative pnl, and schedules the next voting phase after the
// result pause. Caller holds e.mu.
func (e *Engine) endRound(now int64) {
	e.isRoundActive = false

	for _, player := range e.players {
		for _, agent := range player.HiredAgents {
			if agent.Position != nil {
				e.closePosition(player, agent, e.currentPrice, now)
			}
		}
	}

	rankings := make([]RankingEntry, 0, len(e.players))
	deltas := make(map[string]float64, len(e.players))
	for addr, player := range e.players {
		rankings = append(rankings, RankingEntry{Address: addr, Pnl: player.Pnl})
		deltas[addr] = player.Pnl - e.roundStartPnl[addr]
	}
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].Pnl > rankings[j].Pnl })

	result := RoundResult{RoundID: e.currentRoundID, Rankings: rankings}
	if len(rankings) > 0 {
		top := rankings[0]
		result.Winner = &top
	}

	e.out.Broadcast("round-ended", result)
	if result.Winner != nil {
		log.Printf("🏆 Round %d ended - winner: %s (%.4f)", result.RoundID, result.Winner.Address, result.Winner.Pnl)
	} else {
		log.Printf("🏆 Round %d ended - no players", result.RoundID)
	}

	if e.sink != nil {
		asset := e.currentAsset.Symbol
		go e.sink.RecordRound(result.RoundID, asset, result, deltas)
	}

	e.nextVotingTime = now + config.RoundEndPause.Milliseconds()
}

/* =========================
   INBOUND ACTIONS
========================= */

// Join creates the player on first contact and is idempotent afterwards.
// Returns a snapshot copy of the player for the joined reply. The player
// count is announced on agent-hired, not here.
func (e *Engine) Join(address string) PlayerState {
	e.mu.Lock()
	player, exists := e.players[address]
	if !exists {
		player = &PlayerState{
			Address:         address,
			StartingCapital: config.StartingCapital,
		}
		e.players[address] = player
	}
	snapshot := *player
	e.mu.Unlock()

	if !exists {
		log.Printf("👤 Player joined: %s", address)
	}
	return snapshot
}

// HireAgent adds an agent to the player's roster. At most one agent per
// type per player; token validation happens at the session layer.
func (e *Engine) HireAgent(address string, agentType AgentType) (AgentView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	player, ok := e.players[address]
	if !ok {
		return AgentView{}, ErrPlayerNotFound
	}
	if player.FindAgent(agentType) != nil {
		return AgentView{}, ErrAgentAlreadyHired
	}

	power := config.BullPower
	switch agentType {
	case AgentBear:
		power = config.BearPower
	case AgentCrab:
		power = config.CrabPower
	}

	agent := &AgentState{
		Type:  agentType,
		Name:  config.AgentNames[string(agentType)],
		Power: power,
	}
	player.HiredAgents = append(player.HiredAgents, agent)

	log.Printf("🤖 %s hired %s (power %d)", address, agent.Name, agent.Power)
	return AgentView{
		Type:  agent.Type,
		Name:  agent.Name,
		Power: agent.Power,
	}, nil
}

// BoostAgent marks an agent boosted. Boosting is one-way and idempotent:
// a second boost changes nothing and never stacks the size multiplier.
func (e *Engine) BoostAgent(address string, agentType AgentType) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	player, ok := e.players[address]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	agent := player.FindAgent(agentType)
	if agent == nil {
		return 0, ErrAgentNotHired
	}

	if !agent.IsBoosted {
		agent.IsBoosted = true
		log.Printf("⚡ %s boosted %s", address, agent.Name)
	}
	return agent.Power, nil
}

// VoteAsset records a vote during the voting phase. Re-votes overwrite the
// voter's previous choice, so no address ever counts under two assets.
func (e *Engine) VoteAsset(address, symbol string) (map[string]int, error) {
	e.mu.Lock()
	if !e.isVotingPhase {
		e.mu.Unlock()
		return nil, ErrNotVotingPhase
	}
	if _, ok := config.FindAsset(symbol); !ok {
		e.mu.Unlock()
		return nil, ErrUnknownAsset
	}

	e.votes[address] = symbol
	tally := e.voteTally()
	e.mu.Unlock()

	e.out.Broadcast("vote-update", map[string]interface{}{
		"voteResults":  tally,
		"voterAddress": address,
		"votedAsset":   symbol,
	})
	return tally, nil
}

/* =========================
   READ ACCESSORS
========================= */

// Snapshot returns the full client-facing state, trimmed to the most recent
// SnapshotCandles entries of the chart.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.priceHistory
	if len(history) > config.SnapshotCandles {
		history = history[len(history)-config.SnapshotCandles:]
	}
	historyCopy := make([]PriceCandle, len(history))
	copy(historyCopy, history)

	return Snapshot{
		CurrentRoundID:  e.currentRoundID,
		RoundStartTime:  e.roundStartTime,
		RoundEndTime:    e.roundEndTime,
		IsRoundActive:   e.isRoundActive,
		IsVotingPhase:   e.isVotingPhase,
		VotingEndTime:   e.votingEndTime,
		CurrentAsset:    e.currentAsset.Symbol,
		AssetIcon:       e.currentAsset.Icon,
		AvailableAssets: e.assetInfos(),
		CurrentPrice:    e.currentPrice,
		PriceHistory:    historyCopy,
		PlayerCount:     len(e.players),
	}
}

// Player returns a snapshot copy of a player's state.
func (e *Engine) Player(address string) (PlayerState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	player, ok := e.players[address]
	if !ok {
		return PlayerState{}, false
	}
	return *player, true
}

// CurrentAsset returns the asset currently being traded.
func (e *Engine) CurrentAsset() config.Asset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentAsset
}

// PriceHistory returns the full bounded candle history and current price.
func (e *Engine) PriceHistory() (float64, []PriceCandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	history := make([]PriceCandle, len(e.priceHistory))
	copy(history, e.priceHistory)
	return e.currentPrice, history
}

func (e *Engine) assetInfos() []AssetInfo {
	infos := make([]AssetInfo, 0, len(config.Assets))
	for _, a := range config.Assets {
		infos = append(infos, AssetInfo{Symbol: a.Symbol, Icon: a.Icon})
	}
	return infos
}
