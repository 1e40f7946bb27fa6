package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"algoArenaServer/config"
	"algoArenaServer/db"
	"algoArenaServer/game"
	"algoArenaServer/price"
)

var (
	// Engine and price oracle references, set from main before serving
	engineRef   *game.Engine
	priceRef    *price.PythClient
	engineMutex sync.RWMutex
)

// SetEngine wires the game engine into the API layer.
func SetEngine(e *game.Engine) {
	engineMutex.Lock()
	defer engineMutex.Unlock()
	engineRef = e
}

// SetPriceClient wires the price oracle for the health probe.
func SetPriceClient(p *price.PythClient) {
	engineMutex.Lock()
	defer engineMutex.Unlock()
	priceRef = p
}

func getEngine() *game.Engine {
	engineMutex.RLock()
	defer engineMutex.RUnlock()
	return engineRef
}

func getPriceClient() *price.PythClient {
	engineMutex.RLock()
	defer engineMutex.RUnlock()
	return priceRef
}

/* =========================
   HELPERS
========================= */

// sendError writes a JSON error response
func sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// sendJSON writes a JSON success response
func sendJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// CORSMiddleware adds CORS headers to allow frontend requests
func CORSMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := os.Getenv("FRONTEND_URL")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Player-Address, X-Payment")
		w.Header().Set("Access-Control-Expose-Headers", "X-Payment-Response")

		// Handle preflight OPTIONS request
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

/* =========================
   READ ENDPOINTS
========================= */

// HandleGameState handles GET /api/game-state
func HandleGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	e := getEngine()
	if e == nil {
		sendError(w, http.StatusServiceUnavailable, "Game not ready")
		return
	}

	sendJSON(w, e.Snapshot())
}

// HandlePrices handles GET /api/prices
func HandlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	e := getEngine()
	if e == nil {
		sendError(w, http.StatusServiceUnavailable, "Game not ready")
		return
	}

	current, history := e.PriceHistory()
	sendJSON(w, map[string]interface{}{
		"asset":        e.CurrentAsset().Symbol,
		"currentPrice": current,
		"history":      history,
	})
}

// HandleGetRounds handles GET /api/rounds - recent finished rounds
func HandleGetRounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := db.GetRecentRounds(ctx, config.RoundHistoryLimit)
	if err != nil {
		log.Printf("❌ Failed to get round history: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to retrieve round history")
		return
	}

	sendJSON(w, map[string]interface{}{
		"success": true,
		"rounds":  records,
	})
}

// HandleHealthCheck handles GET /api/health
func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	redisStatus := "ok"
	if err := db.HealthCheck(ctx); err != nil {
		redisStatus = "down"
	}

	postgresStatus := "ok"
	if db.PostgresPool == nil {
		postgresStatus = "down"
	} else if err := db.PostgresPool.Ping(ctx); err != nil {
		postgresStatus = "down"
	}

	oracleStatus := "down"
	if p := getPriceClient(); p != nil && p.Healthy(ctx) {
		oracleStatus = "ok"
	}

	roundActive := false
	if e := getEngine(); e != nil {
		roundActive = e.Snapshot().IsRoundActive
	}

	sendJSON(w, map[string]interface{}{
		"status":      "ok",
		"roundActive": roundActive,
		"redis":       redisStatus,
		"postgres":    postgresStatus,
		"oracle":      oracleStatus,
	})
}
