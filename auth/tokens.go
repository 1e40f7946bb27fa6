package auth

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"algoArenaServer/config"
	"algoArenaServer/db"

	"github.com/google/uuid"
)

// TokenData is what an access token proves: which player paid for which
// agent type, and until when the token is valid.
type TokenData struct {
	Address   string `json:"address"`
	AgentType string `json:"agentType"`
	ExpiresAt int64  `json:"expiresAt"` // epoch ms
}

// Matches reports whether the token was issued to this address for this
// agent type. Redemption requires an exact match on both.
func (d TokenData) Matches(address, agentType string) bool {
	return d.Address == address && d.AgentType == agentType
}

// Store issues and redeems single-use hire tokens. The in-memory map is the
// source of truth; tokens are mirrored to Redis (with a matching TTL) so
// they are observable across tooling, but Redis being down changes nothing.
type Store struct {
	mu     sync.Mutex
	tokens map[string]TokenData

	// now is injectable for expiry tests; defaults to wall clock millis.
	now func() int64
}

// NewStore creates an empty token store.
func NewStore() *Store {
	return &Store{
		tokens: make(map[string]TokenData),
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Generate issues a fresh token for a paid hire. Tokens expire after
// config.AccessTokenTTL and are deleted on first successful use.
func (s *Store) Generate(address, agentType string) string {
	token := fmt.Sprintf("%s_%s_%s", address, agentType, uuid.NewString())

	s.mu.Lock()
	data := TokenData{
		Address:   address,
		AgentType: agentType,
		ExpiresAt: s.now() + config.AccessTokenTTL.Milliseconds(),
	}
	s.tokens[token] = data
	s.mu.Unlock()

	// Mirror to Redis asynchronously; failures only cost observability.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := db.StoreAccessToken(ctx, token, data.Address, data.AgentType); err != nil {
			log.Printf("⚠️  Failed to mirror access token to Redis: %v", err)
		}
	}()

	log.Printf("🎟️  Issued %s token for %s (TTL %s)", agentType, address, config.AccessTokenTTL)
	return token
}

// Peek validates a token without consuming it. Expired tokens are removed
// on sight and reported as unknown, so a second use of a redeemed token and
// a stale token are indistinguishable to the caller.
func (s *Store) Peek(token string) (TokenData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.tokens[token]
	if !ok {
		return TokenData{}, false
	}
	if s.now() > data.ExpiresAt {
		delete(s.tokens, token)
		return TokenData{}, false
	}
	return data, true
}

// Consume deletes a token after the hire it authorized succeeded. Tokens
// are consumed only on success: a rejected hire leaves the token intact.
func (s *Store) Consume(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := db.DeleteAccessToken(ctx, token); err != nil {
			log.Printf("⚠️  Failed to delete mirrored access token: %v", err)
		}
	}()
}

// Len reports the number of live (possibly expired, not yet swept) tokens.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
