package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"murmur/chat-server/utils"
)

// SessionRegistry owns the mapping from session ids to their owning user and
// the reverse membership set. The shared store is the single source of truth
// across processes; the registry keeps no local cache.
type SessionRegistry struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *utils.Logger
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration, logger *utils.Logger) *SessionRegistry {
	return &SessionRegistry{
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

// AddSession registers sessionID under username with the liveness TTL.
// SADD makes the call idempotent for a repeated session id. Each call also
// sweeps the user's other sessions, evicting entries whose liveness key has
// independently expired.
func (sr *SessionRegistry) AddSession(ctx context.Context, username, sessionID string) error {
	if err := sr.redis.Set(ctx, socketKey(sessionID), username, sr.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session liveness key: %w", err)
	}

	if err := sr.redis.SAdd(ctx, userSocketsKey(username), sessionID).Err(); err != nil {
		return fmt.Errorf("failed to add session to user set: %w", err)
	}

	if _, err := removeStaleSessions(ctx, sr.redis, username, sr.logger); err != nil {
		return err
	}

	sr.logger.Debug("Registered session", "user", username, "session_id", sessionID)
	return nil
}

// RemoveSession removes sessionID from the user's set and deletes its
// liveness key, then sweeps the remaining entries. Both the explicit
// disconnect and network-drop paths go through here.
func (sr *SessionRegistry) RemoveSession(ctx context.Context, username, sessionID string) error {
	if err := sr.redis.SRem(ctx, userSocketsKey(username), sessionID).Err(); err != nil {
		return fmt.Errorf("failed to remove session from user set: %w", err)
	}

	if err := sr.redis.Del(ctx, socketKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session liveness key: %w", err)
	}

	if _, err := removeStaleSessions(ctx, sr.redis, username, sr.logger); err != nil {
		return err
	}

	sr.logger.Debug("Removed session", "user", username, "session_id", sessionID)
	return nil
}

// CountSessions returns the user's session count after a sweep, so expired
// entries never inflate the result.
func (sr *SessionRegistry) CountSessions(ctx context.Context, username string) (int64, error) {
	if _, err := removeStaleSessions(ctx, sr.redis, username, sr.logger); err != nil {
		return 0, err
	}

	count, err := sr.redis.SCard(ctx, userSocketsKey(username)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// RefreshSession re-arms the liveness TTL for a session. The transport layer
// calls this on every heartbeat; without it a long-lived healthy connection
// would be swept as stale once the TTL window lapses.
func (sr *SessionRegistry) RefreshSession(ctx context.Context, sessionID string) error {
	ok, err := sr.redis.Expire(ctx, socketKey(sessionID), sr.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh session TTL: %w", err)
	}
	if !ok {
		// The key already expired; the next sweep will drop the set entry.
		sr.logger.Debug("Refresh on expired session", "session_id", sessionID)
	}
	return nil
}

// SessionOwner resolves a session id back to its owning user, or "" if the
// liveness key has expired.
func (sr *SessionRegistry) SessionOwner(ctx context.Context, sessionID string) (string, error) {
	owner, err := sr.redis.Get(ctx, socketKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve session owner: %w", err)
	}
	return owner, nil
}
