package ws

import (
	"errors"
	"log"

	"algoArenaServer/game"
)

// handleJoinGame binds the session to a wallet address and creates the
// player on first contact. Idempotent: rejoining reuses the PlayerState.
func handleJoinGame(c *ClientConnection, data map[string]interface{}) {
	address, _ := data["address"].(string)
	if address == "" {
		c.sendError("Missing player address")
		return
	}

	e := getEngine()
	if e == nil {
		c.sendError("Game not ready")
		return
	}

	c.mu.Lock()
	c.Address = address
	c.Subscriptions["game"] = true
	c.mu.Unlock()

	player := e.Join(address)

	if err := c.writeJSON(map[string]interface{}{
		"type": "joined",
		"data": map[string]interface{}{
			"address": address,
			"player":  player,
		},
	}); err != nil {
		log.Printf("⚠️  Failed to send joined to client %s: %v", c.ID, err)
	}
}

// handleAgentHired redeems a paid access token for an agent. The token is
// consumed only after the hire succeeds; any rejection leaves it intact.
func handleAgentHired(c *ClientConnection, data map[string]interface{}) {
	address, _ := data["address"].(string)
	agentType, _ := data["agentType"].(string)
	accessToken, _ := data["accessToken"].(string)

	if address == "" || agentType == "" || accessToken == "" {
		c.sendError("Missing address, agent type or access token")
		return
	}

	e := getEngine()
	tokens := getTokenStore()
	if e == nil || tokens == nil {
		c.sendError("Game not ready")
		return
	}

	tokenData, ok := tokens.Peek(accessToken)
	if !ok {
		c.sendError("Invalid or expired access token")
		return
	}
	if !tokenData.Matches(address, agentType) {
		c.sendError("Access token does not match this hire")
		return
	}

	agent, err := e.HireAgent(address, game.AgentType(agentType))
	if err != nil {
		switch {
		case errors.Is(err, game.ErrPlayerNotFound):
			c.sendError("Player not found")
		case errors.Is(err, game.ErrAgentAlreadyHired):
			c.sendError("Agent already hired")
		default:
			c.sendError(err.Error())
		}
		return
	}

	tokens.Consume(accessToken)

	if err := c.writeJSON(map[string]interface{}{
		"type": "agent-confirmed",
		"data": map[string]interface{}{"agent": agent},
	}); err != nil {
		log.Printf("⚠️  Failed to send agent-confirmed to client %s: %v", c.ID, err)
	}

	BroadcastEvent("player-count", map[string]interface{}{
		"count": e.Snapshot().PlayerCount,
	})
}

// handleVoteAsset records an asset vote during the voting phase. Re-votes
// overwrite; the engine broadcasts the updated tally itself.
func handleVoteAsset(c *ClientConnection, data map[string]interface{}) {
	address, _ := data["address"].(string)
	asset, _ := data["asset"].(string)

	if address == "" || asset == "" {
		c.sendError("Missing address or asset")
		return
	}

	e := getEngine()
	if e == nil {
		c.sendError("Game not ready")
		return
	}

	if _, err := e.VoteAsset(address, asset); err != nil {
		switch {
		case errors.Is(err, game.ErrNotVotingPhase):
			c.sendError("Voting is not open")
		case errors.Is(err, game.ErrUnknownAsset):
			c.sendError("Unknown asset")
		default:
			c.sendError(err.Error())
		}
		return
	}
}
