package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"algoArenaServer/auth"
	"algoArenaServer/config"
	"algoArenaServer/game"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ClientConnection represents a connected client with their subscriptions
type ClientConnection struct {
	ID            string
	Conn          *websocket.Conn
	Subscriptions map[string]bool // game
	Address       string          // wallet address after join-game, "" before
	mu            sync.RWMutex
	writeMutex    sync.Mutex // Protects websocket writes
	Send          chan []byte
}

// writeJSON safely writes JSON to the websocket with mutex protection
func (c *ClientConnection) writeJSON(v interface{}) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.Conn.WriteJSON(v)
}

var (
	// All connected clients
	clients      = make(map[*ClientConnection]bool)
	clientsMutex sync.RWMutex

	// Broadcast channel for game events
	gameBroadcast    = make(chan interface{}, config.WSBroadcastBuffer)
	clientRegister   = make(chan *ClientConnection)
	clientUnregister = make(chan *ClientConnection)

	// Client ID counter
	clientIDCounter int64

	// Engine and token store, set from main before serving
	engine          *game.Engine
	tokenStore      *auth.Store
	dependencyMutex sync.RWMutex
)

// SetEngine wires the game engine into the websocket layer.
func SetEngine(e *game.Engine) {
	dependencyMutex.Lock()
	defer dependencyMutex.Unlock()
	engine = e
}

// SetTokenStore wires the hire-token store into the websocket layer.
func SetTokenStore(s *auth.Store) {
	dependencyMutex.Lock()
	defer dependencyMutex.Unlock()
	tokenStore = s
}

func getEngine() *game.Engine {
	dependencyMutex.RLock()
	defer dependencyMutex.RUnlock()
	return engine
}

func getTokenStore() *auth.Store {
	dependencyMutex.RLock()
	defer dependencyMutex.RUnlock()
	return tokenStore
}

// Message types from client
type ClientMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

func init() {
	// Start the event hub
	go runEventHub()
}

// runEventHub is the central message dispatcher
func runEventHub() {
	log.Println("🚀 Arena event hub started")

	for {
		select {
		case client := <-clientRegister:
			clientsMutex.Lock()
			clients[client] = true
			clientsMutex.Unlock()
			log.Printf("✅ Client registered: %s (Total: %d)", client.ID, len(clients))

		case client := <-clientUnregister:
			clientsMutex.Lock()
			if _, ok := clients[client]; ok {
				delete(clients, client)
				close(client.Send)
			}
			clientsMutex.Unlock()
			log.Printf("👋 Client unregistered: %s (Total: %d)", client.ID, len(clients))

		case message := <-gameBroadcast:
			broadcastToSubscribers("game", message)
		}
	}
}

// broadcastToSubscribers sends message to all clients subscribed to a channel
func broadcastToSubscribers(channel string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal message for %s: %v", channel, err)
		return
	}

	clientsMutex.RLock()
	defer clientsMutex.RUnlock()

	for client := range clients {
		client.mu.RLock()
		subscribed := client.Subscriptions[channel]
		client.mu.RUnlock()

		if subscribed {
			select {
			case client.Send <- data:
			default:
				// Client's send channel is full, skip
				log.Printf("⚠️  Client %s send buffer full, skipping message", client.ID)
			}
		}
	}
}

// BroadcastEvent fans an event out to every game subscriber.
func BroadcastEvent(event string, data interface{}) {
	message := map[string]interface{}{
		"type": event,
		"data": data,
	}
	select {
	case gameBroadcast <- message:
	default:
		// Channel full, skip this broadcast
		log.Printf("⚠️  Game broadcast buffer full, dropping %s", event)
	}
}

// SendToAddress targets every session joined as the given wallet address.
func SendToAddress(address, event string, data interface{}) {
	message := map[string]interface{}{
		"type": event,
		"data": data,
	}
	payload, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Failed to marshal targeted %s: %v", event, err)
		return
	}

	clientsMutex.RLock()
	defer clientsMutex.RUnlock()

	for client := range clients {
		client.mu.RLock()
		match := client.Address == address
		client.mu.RUnlock()

		if match {
			select {
			case client.Send <- payload:
			default:
				log.Printf("⚠️  Client %s send buffer full, skipping %s", client.ID, event)
			}
		}
	}
}

// HubBroadcaster adapts the hub to the engine's Broadcaster interface.
type HubBroadcaster struct{}

func (HubBroadcaster) Broadcast(event string, data interface{}) {
	BroadcastEvent(event, data)
}

func (HubBroadcaster) SendToPlayer(address, event string, data interface{}) {
	SendToAddress(address, event, data)
}

// HandleGameWS is the websocket endpoint for the arena.
func HandleGameWS(w http.ResponseWriter, r *http.Request) {
	log.Println("📥 WebSocket connection from:", r.RemoteAddr)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("❌ WebSocket upgrade failed:", err)
		return
	}

	// Create client
	client := &ClientConnection{
		ID:            generateClientID(),
		Conn:          conn,
		Subscriptions: make(map[string]bool),
		Send:          make(chan []byte, config.WSSendBufferSize),
	}

	// Register client
	clientRegister <- client

	// Start goroutines for this client
	go client.writePump()
	go client.readPump()
}

// writePump sends messages from the Send channel to the WebSocket
func (c *ClientConnection) writePump() {
	defer func() {
		c.Conn.Close()
	}()

	for message := range c.Send {
		c.writeMutex.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, message)
		c.writeMutex.Unlock()

		if err != nil {
			log.Printf("❌ Write error for client %s: %v", c.ID, err)
			return
		}
	}
}

// readPump reads messages from the WebSocket and handles subscriptions/actions
func (c *ClientConnection) readPump() {
	defer func() {
		clientUnregister <- c
		c.Conn.Close()
	}()

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ Read error for client %s: %v", c.ID, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("❌ Failed to parse message from client %s: %v", c.ID, err)
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes incoming client messages
func (c *ClientConnection) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		channel, _ := msg.Data["channel"].(string)
		if channel == "" {
			channel = "game"
		}
		c.mu.Lock()
		c.Subscriptions[channel] = true
		c.mu.Unlock()
		log.Printf("📡 Client %s subscribed to: %s", c.ID, channel)

		// Send initial data for the channel
		c.sendInitialData(channel)

	case "unsubscribe":
		channel, _ := msg.Data["channel"].(string)
		c.mu.Lock()
		delete(c.Subscriptions, channel)
		c.mu.Unlock()
		log.Printf("📴 Client %s unsubscribed from: %s", c.ID, channel)

	case "join-game":
		handleJoinGame(c, msg.Data)

	case "agent-hired":
		handleAgentHired(c, msg.Data)

	case "vote-asset":
		handleVoteAsset(c, msg.Data)

	default:
		log.Printf("⚠️  Unknown message type from client %s: %s", c.ID, msg.Type)
	}
}

// sendInitialData sends the current game snapshot when a client subscribes
func (c *ClientConnection) sendInitialData(channel string) {
	if channel != "game" {
		return
	}
	e := getEngine()
	if e == nil {
		return
	}

	snapshot := e.Snapshot()
	if err := c.writeJSON(map[string]interface{}{
		"type": "game-state",
		"data": snapshot,
	}); err != nil {
		log.Printf("⚠️  Failed to send game state to client %s: %v", c.ID, err)
	} else {
		log.Printf("📨 Client %s subscribed to game - sent snapshot (round %d)", c.ID, snapshot.CurrentRoundID)
	}
}

// sendError reports a per-request failure to this session only.
func (c *ClientConnection) sendError(message string) {
	if err := c.writeJSON(map[string]interface{}{
		"type": "error",
		"data": map[string]interface{}{"message": message},
	}); err != nil {
		log.Printf("⚠️  Failed to send error to client %s: %v", c.ID, err)
	}
}

// generateClientID creates a unique client ID
func generateClientID() string {
	id := atomic.AddInt64(&clientIDCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().Unix(), id)
}
