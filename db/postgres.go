package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"algoArenaServer/config"
	"algoArenaServer/game"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// PostgresPool is the global PostgreSQL connection pool
	PostgresPool *pgxpool.Pool
)

// RoundHistoryRecord represents a finished arena round
type RoundHistoryRecord struct {
	RoundID       int                 `json:"roundId"`
	Asset         string              `json:"asset"`
	WinnerAddress string              `json:"winnerAddress"`
	WinnerPnl     float64             `json:"winnerPnl"`
	Rankings      []game.RankingEntry `json:"rankings"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// InitPostgres initializes the PostgreSQL connection pool
func InitPostgres() error {
	log.Println("🔌 Connecting to PostgreSQL...")

	// Get DATABASE_URL from environment
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = config.MaxOpenConns
	poolConfig.MinConns = config.MinIdleConns
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime

	// Create pool
	PostgresPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := PostgresPool.Ping(ctx); err != nil {
		PostgresPool = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ PostgreSQL connected successfully")

	// Initialize schema
	if err := InitSchema(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// ClosePostgres closes the PostgreSQL connection pool
func ClosePostgres() {
	if PostgresPool != nil {
		log.Println("🔌 Closing PostgreSQL connection...")
		PostgresPool.Close()
	}
}

// InitSchema creates the database tables if they don't exist
func InitSchema(ctx context.Context) error {
	log.Println("📋 Initializing database schema...")

	// Round results, one row per finished round
	roundHistorySchema := `
	CREATE TABLE IF NOT EXISTS round_history (
		id SERIAL PRIMARY KEY,
		round_id INTEGER NOT NULL UNIQUE,
		asset TEXT NOT NULL,
		winner_address TEXT,
		winner_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		rankings JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_round_history_created_at ON round_history(created_at DESC);
	`

	if _, err := PostgresPool.Exec(ctx, roundHistorySchema); err != nil {
		return fmt.Errorf("failed to create round_history table: %w", err)
	}

	// Lifetime wallet pnl, upserted at round end
	walletPnLSchema := `
	CREATE TABLE IF NOT EXISTS wallet_pnl (
		wallet_address TEXT PRIMARY KEY,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_pnl_amount ON wallet_pnl(amount DESC);
	`

	if _, err := PostgresPool.Exec(ctx, walletPnLSchema); err != nil {
		return fmt.Errorf("failed to create wallet_pnl table: %w", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

/* =========================
   ROUND HISTORY
========================= */

// StoreRoundHistory stores a finished round in PostgreSQL
func StoreRoundHistory(ctx context.Context, record *RoundHistoryRecord) error {
	if PostgresPool == nil {
		log.Println("⚠️  PostgreSQL not initialized, skipping round history storage")
		return nil
	}

	rankingsJSON, err := json.Marshal(record.Rankings)
	if err != nil {
		return fmt.Errorf("failed to marshal rankings: %w", err)
	}

	query := `
		INSERT INTO round_history
		(round_id, asset, winner_address, winner_pnl, rankings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (round_id) DO NOTHING
	`

	_, err = PostgresPool.Exec(
		ctx,
		query,
		record.RoundID,
		record.Asset,
		record.WinnerAddress,
		record.WinnerPnl,
		rankingsJSON,
		record.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to store round history: %w", err)
	}

	log.Printf("✅ Stored round history - Round: %d, Asset: %s", record.RoundID, record.Asset)
	return nil
}

// GetRecentRounds retrieves the most recent finished rounds, newest first
func GetRecentRounds(ctx context.Context, limit int) ([]*RoundHistoryRecord, error) {
	if PostgresPool == nil {
		return []*RoundHistoryRecord{}, nil
	}

	query := `
		SELECT round_id, asset, winner_address, winner_pnl, rankings, created_at
		FROM round_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := PostgresPool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query round history: %w", err)
	}
	defer rows.Close()

	var records []*RoundHistoryRecord
	for rows.Next() {
		var record RoundHistoryRecord
		var rankingsJSON []byte
		if err := rows.Scan(&record.RoundID, &record.Asset, &record.WinnerAddress,
			&record.WinnerPnl, &rankingsJSON, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(rankingsJSON, &record.Rankings); err != nil {
			log.Printf("⚠️  Failed to unmarshal rankings for round %d: %v", record.RoundID, err)
			continue
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

/* =========================
   WALLET PNL
========================= */

// WalletPnLRecord represents a wallet's cumulative PnL
type WalletPnLRecord struct {
	WalletAddress string  `json:"walletAddress"`
	Amount        float64 `json:"amount"`
	Rank          int     `json:"rank,omitempty"`
}

// AddWalletPnL adds a (possibly negative) round delta to a wallet's PnL
func AddWalletPnL(ctx context.Context, walletAddress string, delta float64) error {
	if PostgresPool == nil {
		log.Println("⚠️  PostgreSQL not initialized, skipping PnL update")
		return nil
	}

	query := `
		INSERT INTO wallet_pnl (wallet_address, amount)
		VALUES ($1, $2)
		ON CONFLICT (wallet_address) DO UPDATE
		SET amount = wallet_pnl.amount + $2
	`

	_, err := PostgresPool.Exec(ctx, query, walletAddress, delta)
	if err != nil {
		return fmt.Errorf("failed to update wallet PnL: %w", err)
	}

	log.Printf("📈 Applied %.4f to wallet %s PnL", delta, walletAddress)
	return nil
}

// GetWalletPnLLeaderboard returns top N wallets sorted by PnL descending
func GetWalletPnLLeaderboard(ctx context.Context, limit int) ([]*WalletPnLRecord, error) {
	if PostgresPool == nil {
		return []*WalletPnLRecord{}, nil
	}

	query := `
		SELECT wallet_address, amount,
		       ROW_NUMBER() OVER (ORDER BY amount DESC) as rank
		FROM wallet_pnl
		ORDER BY amount DESC
		LIMIT $1
	`

	rows, err := PostgresPool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var records []*WalletPnLRecord
	for rows.Next() {
		var record WalletPnLRecord
		if err := rows.Scan(&record.WalletAddress, &record.Amount, &record.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetWalletPnLRank returns a specific wallet's rank and PnL
func GetWalletPnLRank(ctx context.Context, walletAddress string) (*WalletPnLRecord, error) {
	if PostgresPool == nil {
		return nil, nil
	}

	query := `
		SELECT wallet_address, amount, rank FROM (
			SELECT wallet_address, amount,
			       ROW_NUMBER() OVER (ORDER BY amount DESC) as rank
			FROM wallet_pnl
		) ranked
		WHERE wallet_address = $1
	`

	var record WalletPnLRecord
	err := PostgresPool.QueryRow(ctx, query, walletAddress).Scan(
		&record.WalletAddress,
		&record.Amount,
		&record.Rank,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet rank: %w", err)
	}

	return &record, nil
}

/* =========================
   ROUND SINK
========================= */

// RoundRecorder adapts the persistence layer to the engine's RoundSink.
// The engine calls it from a goroutine at round end; both writes are
// best-effort and a down database only costs history, never game flow.
type RoundRecorder struct{}

// RecordRound persists per-player pnl deltas and the round result.
func (RoundRecorder) RecordRound(roundID int, asset string, result game.RoundResult, pnlDeltas map[string]float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for address, delta := range pnlDeltas {
		if delta == 0 {
			continue
		}
		if err := AddWalletPnL(ctx, address, delta); err != nil {
			log.Printf("⚠️  Failed to persist pnl for %s: %v", address, err)
		}
	}

	record := &RoundHistoryRecord{
		RoundID:   roundID,
		Asset:     asset,
		Rankings:  result.Rankings,
		CreatedAt: time.Now(),
	}
	if result.Winner != nil {
		record.WinnerAddress = result.Winner.Address
		record.WinnerPnl = result.Winner.Pnl
	}

	if err := StoreRoundHistory(ctx, record); err != nil {
		log.Printf("⚠️  Failed to store round history: %v", err)
	}
}
