package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"algoArenaServer/api"
	"algoArenaServer/auth"
	"algoArenaServer/config"
	"algoArenaServer/contract"
	"algoArenaServer/db"
	"algoArenaServer/game"
	"algoArenaServer/price"
	"algoArenaServer/ws"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}

	log.Println("🚀 Starting Algo Arena server...")

	// Initialize PostgreSQL (leaderboard and round history survive restarts)
	if err := db.InitPostgres(); err != nil {
		log.Printf("⚠️  PostgreSQL initialization failed: %v", err)
		log.Println("⚠️  Continuing without persistence - leaderboard and history disabled")
	}
	defer db.ClosePostgres()

	// Initialize Redis (access token mirror)
	if err := db.InitRedis(); err != nil {
		log.Printf("⚠️  Redis initialization failed: %v", err)
		log.Println("⚠️  Continuing without Redis - tokens are in-memory only")
	}
	defer db.CloseRedis()

	// Payment verifier; without it the paywall is disabled
	treasury, err := contract.NewTreasuryClient()
	if err != nil {
		log.Printf("⚠️  Treasury client initialization failed: %v", err)
		log.Println("⚠️  Continuing without paywall - hire/boost endpoints are free")
		treasury = nil
	} else {
		defer treasury.Close()
	}

	// Price oracle
	hermesURL := os.Getenv("HERMES_URL")
	if hermesURL == "" {
		hermesURL = config.DefaultHermesURL
	}
	pyth := price.NewPythClient(hermesURL)

	// Access tokens
	tokens := auth.NewStore()

	// Optional deterministic RNG for reproducing agent behavior locally
	var rng *rand.Rand
	if seed := os.Getenv("GAME_SEED"); seed != "" {
		rng = game.NewSeededRNG(seed)
		log.Printf("🎲 Using seeded RNG (GAME_SEED=%s)", seed)
	}

	// Game engine
	engine := game.NewEngine(game.Config{
		Prices: pyth,
		Out:    ws.HubBroadcaster{},
		Sink:   db.RoundRecorder{},
		Rand:   rng,
	})

	// Wire shared dependencies into the session and API layers
	ws.SetEngine(engine)
	ws.SetTokenStore(tokens)
	api.SetEngine(engine)
	api.SetTokenStore(tokens)
	api.SetTreasuryClient(treasury)
	api.SetPriceClient(pyth)

	// Start the game loop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	// WebSocket endpoint
	http.HandleFunc("/ws", ws.HandleGameWS)

	// REST API endpoints
	http.HandleFunc("/api/hire/bull", api.CORSMiddleware(api.HandleHireBull()))
	http.HandleFunc("/api/hire/bear", api.CORSMiddleware(api.HandleHireBear()))
	http.HandleFunc("/api/hire/crab", api.CORSMiddleware(api.HandleHireCrab()))
	http.HandleFunc("/api/boost", api.CORSMiddleware(api.HandleBoost()))
	http.HandleFunc("/api/game-state", api.CORSMiddleware(api.HandleGameState))
	http.HandleFunc("/api/prices", api.CORSMiddleware(api.HandlePrices))
	http.HandleFunc("/api/leaderboard", api.CORSMiddleware(api.HandleGetLeaderboard))
	http.HandleFunc("/api/rounds", api.CORSMiddleware(api.HandleGetRounds))
	http.HandleFunc("/api/health", api.CORSMiddleware(api.HandleHealthCheck))

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("🛑 Shutting down...")
		cancel()
		db.ClosePostgres()
		db.CloseRedis()
		os.Exit(0)
	}()

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = config.ServerPort
	}

	log.Printf("🌐 Server listening on :%s", port)
	log.Printf("   WebSocket: ws://localhost:%s/ws", port)
	log.Printf("   API:       http://localhost:%s/api", port)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal("❌ Server failed:", err)
	}
}
