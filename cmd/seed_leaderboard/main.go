package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"algoArenaServer/db"

	"github.com/joho/godotenv"
)

// Dev utility: seeds wallet_pnl with fake wallets so the leaderboard
// endpoint has data to show before any real rounds have run.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	if err := db.InitPostgres(); err != nil {
		log.Fatalf("❌ PostgreSQL initialization failed: %v", err)
	}
	defer db.ClosePostgres()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const walletCount = 25
	for i := 0; i < walletCount; i++ {
		wallet := fmt.Sprintf("0x%040x", rng.Int63())
		// Mix of winners and losers, roughly -50 to +150
		delta := rng.Float64()*200 - 50

		if err := db.AddWalletPnL(ctx, wallet, delta); err != nil {
			log.Printf("⚠️  Failed to seed %s: %v", wallet, err)
			continue
		}
	}

	records, err := db.GetWalletPnLLeaderboard(ctx, 10)
	if err != nil {
		log.Fatalf("❌ Failed to read back leaderboard: %v", err)
	}

	log.Printf("✅ Seeded %d wallets. Top 10:", walletCount)
	for _, record := range records {
		log.Printf("   #%d %s  %.4f", record.Rank, record.WalletAddress, record.Amount)
	}
}
