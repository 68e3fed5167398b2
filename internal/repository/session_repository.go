package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

// SessionRepository keeps login challenges and revoked session ids in Redis.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository constructs the Redis backed store.
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func challengeKey(address string) string { return keyPrefix + "challenge:" + address }
func revokedKey(id string) string        { return keyPrefix + "session:revoked:" + id }

// SaveChallenge stores the message an address must sign, replacing any previous one.
func (r *SessionRepository) SaveChallenge(ctx context.Context, address, message string, ttl time.Duration) error {
	if err := r.client.Set(ctx, challengeKey(address), message, ttl).Err(); err != nil {
		return fmt.Errorf("redis save challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge returns and deletes the pending challenge for address.
func (r *SessionRepository) ConsumeChallenge(ctx context.Context, address string) (string, error) {
	message, err := r.client.GetDel(ctx, challengeKey(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "no pending challenge for address")
		}
		return "", fmt.Errorf("redis consume challenge: %w", err)
	}
	return message, nil
}

// Revoke marks a session id as disconnected until ttl elapses.
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether the session id was disconnected.
func (r *SessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis session lookup: %w", err)
	}
	return n > 0, nil
}

// MemorySessionStore is the in-process store used when Redis is disabled.
type MemorySessionStore struct {
	mu         sync.Mutex
	now        func() time.Time
	challenges map[string]expiring
	revoked    map[string]time.Time
}

type expiring struct {
	value     string
	expiresAt time.Time
}

// NewMemorySessionStore constructs an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		now:        time.Now,
		challenges: make(map[string]expiring),
		revoked:    make(map[string]time.Time),
	}
}

// SaveChallenge implements the session store contract.
func (s *MemorySessionStore) SaveChallenge(_ context.Context, address, message string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[address] = expiring{value: message, expiresAt: s.now().Add(ttl)}
	return nil
}

// ConsumeChallenge implements the session store contract.
func (s *MemorySessionStore) ConsumeChallenge(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.challenges[address]
	delete(s.challenges, address)
	if !ok || s.now().After(entry.expiresAt) {
		return "", appErrors.Clone(appErrors.ErrNotFound, "no pending challenge for address")
	}
	return entry.value, nil
}

// Revoke implements the session store contract.
func (s *MemorySessionStore) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, until := range s.revoked {
		if now.After(until) {
			delete(s.revoked, id)
		}
	}
	if ttl > 0 {
		s.revoked[sessionID] = now.Add(ttl)
	}
	return nil
}

// IsRevoked implements the session store contract.
func (s *MemorySessionStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.revoked[sessionID]
	return ok && !s.now().After(until), nil
}
