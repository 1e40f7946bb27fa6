package api

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"algoArenaServer/auth"
	"algoArenaServer/config"
	"algoArenaServer/contract"
	"algoArenaServer/game"
)

var (
	// Payment verifier and token store, set from main before serving
	treasuryRef *contract.TreasuryClient
	tokensRef   *auth.Store
	paywallOnce sync.Once
)

// SetTreasuryClient wires the on-chain payment verifier. A nil client
// disables the paywall (dev mode).
func SetTreasuryClient(c *contract.TreasuryClient) {
	engineMutex.Lock()
	defer engineMutex.Unlock()
	treasuryRef = c
}

// SetTokenStore wires the hire-token store into the API layer.
func SetTokenStore(s *auth.Store) {
	engineMutex.Lock()
	defer engineMutex.Unlock()
	tokensRef = s
}

func getTreasury() *contract.TreasuryClient {
	engineMutex.RLock()
	defer engineMutex.RUnlock()
	return treasuryRef
}

func getTokenStore() *auth.Store {
	engineMutex.RLock()
	defer engineMutex.RUnlock()
	return tokensRef
}

/* =========================
   PAYWALL
========================= */

func paywallDisabled() bool {
	if strings.EqualFold(os.Getenv("PAYWALL_DISABLED"), "true") {
		return true
	}
	return getTreasury() == nil
}

// paymentRequirements is the 402 body telling the client how to pay.
func paymentRequirements(price *big.Int, description string) map[string]interface{} {
	payTo := os.Getenv("TREASURY_ADDRESS")
	if payTo == "" {
		payTo = config.DefaultTreasuryAddress
	}
	return map[string]interface{}{
		"error": "Payment required",
		"accepts": []map[string]interface{}{
			{
				"scheme":            "exact",
				"payTo":             payTo,
				"maxAmountRequired": price.String(),
				"amount":            config.WeiToToken(price),
				"description":       description,
				"mimeType":          "application/json",
			},
		},
	}
}

// Paywall gates a handler behind an on-chain payment. Without an X-Payment
// header the response is 402 plus the payment requirements; with one, the
// named transaction is verified against the treasury before the handler
// runs. Disabled entirely in dev mode.
func Paywall(price *big.Int, description string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if paywallDisabled() {
			paywallOnce.Do(func() {
				log.Println("⚠️  Paywall disabled - hire/boost endpoints are free")
			})
			handler(w, r)
			return
		}

		payment := r.Header.Get("X-Payment")
		if payment == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			sendJSON(w, paymentRequirements(price, description))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		if err := getTreasury().VerifyPayment(ctx, payment, price); err != nil {
			log.Printf("❌ Payment verification failed: %v", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			sendJSON(w, map[string]interface{}{
				"error":   "Payment verification failed",
				"details": err.Error(),
			})
			return
		}

		w.Header().Set("X-Payment-Response", `{"success":true}`)
		handler(w, r)
	}
}

/* =========================
   HIRE ENDPOINTS
========================= */

// hireHandler issues a single-use access token for one agent type. The
// token is redeemed over the websocket (agent-hired), not here.
func hireHandler(agentType game.AgentType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		address := r.Header.Get("X-Player-Address")
		if address == "" {
			sendError(w, http.StatusBadRequest, "Missing X-Player-Address header")
			return
		}

		tokens := getTokenStore()
		if tokens == nil {
			sendError(w, http.StatusServiceUnavailable, "Game not ready")
			return
		}

		token := tokens.Generate(address, string(agentType))

		sendJSON(w, map[string]interface{}{
			"success":     true,
			"agentType":   string(agentType),
			"agentName":   config.AgentNames[string(agentType)],
			"accessToken": token,
			"expiresIn":   int(config.AccessTokenTTL.Seconds()),
		})
	}
}

// HandleHireBull handles GET /api/hire/bull (paywalled)
func HandleHireBull() http.HandlerFunc {
	return Paywall(config.BullHirePrice, "Hire Bullish Bob for one round", hireHandler(game.AgentBull))
}

// HandleHireBear handles GET /api/hire/bear (paywalled)
func HandleHireBear() http.HandlerFunc {
	return Paywall(config.BearHirePrice, "Hire Bearish Ben for one round", hireHandler(game.AgentBear))
}

// HandleHireCrab handles GET /api/hire/crab (paywalled)
func HandleHireCrab() http.HandlerFunc {
	return Paywall(config.CrabHirePrice, "Hire Crab Carol for one round", hireHandler(game.AgentCrab))
}

/* =========================
   BOOST ENDPOINT
========================= */

// HandleBoost handles GET /api/boost?agent=TYPE (paywalled). Boost applies
// immediately; no token round-trip since the agent is already hired.
func HandleBoost() http.HandlerFunc {
	return Paywall(config.BoostPrice, "Boost a hired agent for this round", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		address := r.Header.Get("X-Player-Address")
		if address == "" {
			sendError(w, http.StatusBadRequest, "Missing X-Player-Address header")
			return
		}

		agentType := strings.ToUpper(r.URL.Query().Get("agent"))
		if _, ok := config.AgentNames[agentType]; !ok {
			sendError(w, http.StatusBadRequest, "Unknown agent type")
			return
		}

		e := getEngine()
		if e == nil {
			sendError(w, http.StatusServiceUnavailable, "Game not ready")
			return
		}

		power, err := e.BoostAgent(address, game.AgentType(agentType))
		if err != nil {
			switch err {
			case game.ErrPlayerNotFound:
				sendError(w, http.StatusNotFound, "Player not found")
			case game.ErrAgentNotHired:
				sendError(w, http.StatusNotFound, "Agent not hired")
			default:
				sendError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		sendJSON(w, map[string]interface{}{
			"success":   true,
			"agentType": agentType,
			"power":     power,
			"boosted":   true,
		})
	})
}
