package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"algoArenaServer/db"
)

const (
	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

// HandleGetLeaderboard handles GET /api/leaderboard - lifetime PnL ranking.
// Optional: ?limit=N (default 20, max 100), ?wallet=0x... for that wallet's
// own rank alongside the top list.
func HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := defaultLeaderboardLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			sendError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		if parsed > maxLeaderboardLimit {
			parsed = maxLeaderboardLimit
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := db.GetWalletPnLLeaderboard(ctx, limit)
	if err != nil {
		log.Printf("❌ Failed to get leaderboard: %v", err)
		sendError(w, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	response := map[string]interface{}{
		"success":     true,
		"leaderboard": records,
		"count":       len(records),
	}

	// Include the requesting wallet's own position if asked
	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		record, err := db.GetWalletPnLRank(ctx, wallet)
		if err != nil {
			log.Printf("⚠️  Failed to get rank for %s: %v", wallet, err)
		} else if record != nil {
			response["walletRank"] = record
		}
	}

	sendJSON(w, response)
}
