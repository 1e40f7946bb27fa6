package game

// AgentType selects the strategy branch for a hired agent.
type AgentType string

const (
	AgentBull AgentType = "BULL"
	AgentBear AgentType = "BEAR"
	AgentCrab AgentType = "CRAB"
)

// PositionType is the direction of an open simulated bet.
type PositionType string

const (
	PositionLong  PositionType = "LONG"
	PositionShort PositionType = "SHORT"
)

// PriceCandle is one OHLC sample. Each tick produces exactly one
// single-sample candle; open chains to the previous candle's close.
type PriceCandle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// Position is an open directional bet. An agent holds at most one.
type Position struct {
	Type       PositionType `json:"type"`
	EntryPrice float64      `json:"entryPrice"`
	Size       float64      `json:"size"`
	Timestamp  int64        `json:"timestamp"`
}

// Trade is an immutable closed-position record.
type Trade struct {
	Type       PositionType `json:"type"`
	EntryPrice float64      `json:"entryPrice"`
	ExitPrice  float64      `json:"exitPrice"`
	Pnl        float64      `json:"pnl"`
	Timestamp  int64        `json:"timestamp"`
}

// AgentState is a hired agent for the current round. The roster is wiped
// at round end; cumulative player pnl survives.
type AgentState struct {
	Type      AgentType `json:"type"`
	Name      string    `json:"name"`
	Power     int       `json:"power"`
	IsBoosted bool      `json:"isBoosted"`
	Position  *Position `json:"position"`
	Trades    []Trade   `json:"trades"`
}

// TotalTradePnl sums realized pnl of the agent's closed trades this round.
func (a *AgentState) TotalTradePnl() float64 {
	total := 0.0
	for _, t := range a.Trades {
		total += t.Pnl
	}
	return total
}

// PlayerState is created lazily on first join and never deleted.
type PlayerState struct {
	Address         string        `json:"address"`
	HiredAgents     []*AgentState `json:"hiredAgents"`
	Pnl             float64       `json:"pnl"`
	StartingCapital float64       `json:"startingCapital"`
}

// FindAgent returns the player's agent of the given type, or nil.
func (p *PlayerState) FindAgent(agentType AgentType) *AgentState {
	for _, a := range p.HiredAgents {
		if a.Type == agentType {
			return a
		}
	}
	return nil
}

// AgentView is the per-agent snapshot sent in targeted player updates.
type AgentView struct {
	Type       AgentType `json:"type"`
	Name       string    `json:"name"`
	Power      int       `json:"power"`
	IsBoosted  bool      `json:"isBoosted"`
	Position   *Position `json:"position"`
	TradeCount int       `json:"tradeCount"`
	TotalPnl   float64   `json:"totalPnl"`
}

// PlayerUpdate is the targeted per-player broadcast payload.
type PlayerUpdate struct {
	Address string      `json:"address"`
	Pnl     float64     `json:"pnl"`
	Agents  []AgentView `json:"agents"`
}

// RankingEntry is one row of the end-of-round ranking.
type RankingEntry struct {
	Address string  `json:"address"`
	Pnl     float64 `json:"pnl"`
}

// RoundResult is broadcast to everyone when a round ends.
type RoundResult struct {
	RoundID  int            `json:"roundId"`
	Rankings []RankingEntry `json:"rankings"`
	Winner   *RankingEntry  `json:"winner"`
}

// Snapshot is the full game state sent to a client on connect/subscribe.
type Snapshot struct {
	CurrentRoundID  int           `json:"currentRoundId"`
	RoundStartTime  int64         `json:"roundStartTime"`
	RoundEndTime    int64         `json:"roundEndTime"`
	IsRoundActive   bool          `json:"isRoundActive"`
	IsVotingPhase   bool          `json:"isVotingPhase"`
	VotingEndTime   int64         `json:"votingEndTime"`
	CurrentAsset    string        `json:"currentAsset"`
	AssetIcon       string        `json:"assetIcon"`
	AvailableAssets []AssetInfo   `json:"availableAssets"`
	CurrentPrice    float64       `json:"currentPrice"`
	PriceHistory    []PriceCandle `json:"priceHistory"`
	PlayerCount     int           `json:"playerCount"`
}

// AssetInfo is the client-facing view of a votable asset.
type AssetInfo struct {
	Symbol string `json:"symbol"`
	Icon   string `json:"icon"`
}
