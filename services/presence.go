package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"murmur/chat-server/models"
	"murmur/chat-server/utils"
)

// PresenceStateStore derives each user's online/offline status from the
// session registry and keeps the ONLINE_USERS set and per-user meta hash in
// step. Transitions are published through the broadcaster; intermediate
// session churn while the set stays non-empty publishes nothing.
//
// The read-decide-write sequences here are not transactional against the
// registry. Two concurrent connects for the same user can both observe "was
// not online" and both publish an Online transition; consumers must tolerate
// the duplicate.
type PresenceStateStore struct {
	redis       *redis.Client
	registry    *SessionRegistry
	broadcaster *PresenceBroadcaster
	logger      *utils.Logger
}

func NewPresenceStateStore(client *redis.Client, registry *SessionRegistry, broadcaster *PresenceBroadcaster, logger *utils.Logger) *PresenceStateStore {
	return &PresenceStateStore{
		redis:       client,
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Connect registers a new session for the user and flips them online when
// this is their first live session. Called by the transport layer once per
// accepted connection.
func (ps *PresenceStateStore) Connect(ctx context.Context, username, sessionID string) error {
	if err := ps.registry.AddSession(ctx, username, sessionID); err != nil {
		return err
	}

	transitioned, err := ps.MarkOnlineIfNeeded(ctx, username)
	if err != nil {
		return err
	}
	if !transitioned {
		ps.logger.Debug("User already online, no transition", "user", username)
	}
	return nil
}

// Disconnect removes a session and flips the user offline when it was their
// last one. Explicit logouts and network drops are handled identically.
func (ps *PresenceStateStore) Disconnect(ctx context.Context, username, sessionID string) error {
	if err := ps.registry.RemoveSession(ctx, username, sessionID); err != nil {
		return err
	}

	transitioned, err := ps.MarkOfflineIfLastSession(ctx, username)
	if err != nil {
		return err
	}
	if !transitioned {
		ps.logger.Debug("User still has live sessions, staying online", "user", username)
	}
	return nil
}

// MarkOnlineIfNeeded flips the user online unless they already are. A user
// counts as "was online" only when the online set and the stored status
// agree; on disagreement (a previous cleanup that partially failed) we
// re-publish rather than risk a silently stale consumer.
func (ps *PresenceStateStore) MarkOnlineIfNeeded(ctx context.Context, username string) (bool, error) {
	wasInSet, err := ps.redis.SIsMember(ctx, onlineSetKey, username).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check online set: %w", err)
	}

	status, err := ps.redis.HGet(ctx, userMetaKey(username), "status").Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to read presence status: %w", err)
	}

	if wasInSet && status == models.StatusOnline {
		return false, nil
	}

	now := time.Now().UnixMilli()

	pipe := ps.redis.Pipeline()
	pipe.HSet(ctx, userMetaKey(username), "status", models.StatusOnline, "lastSeen", now)
	pipe.SAdd(ctx, onlineSetKey, username)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to mark user online: %w", err)
	}

	ps.publish(ctx, models.PresenceTransition{
		Username:  username,
		Status:    models.StatusOnline,
		LastSeen:  now,
		Timestamp: now,
	})
	return true, nil
}

// MarkOfflineIfLastSession flips the user offline when their live session
// count has reached zero. With sessions still live it is a no-op.
func (ps *PresenceStateStore) MarkOfflineIfLastSession(ctx context.Context, username string) (bool, error) {
	count, err := ps.registry.CountSessions(ctx, username)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	now := time.Now().UnixMilli()

	pipe := ps.redis.Pipeline()
	pipe.HSet(ctx, userMetaKey(username), "status", models.StatusOffline, "lastSeen", now)
	pipe.SRem(ctx, onlineSetKey, username)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to mark user offline: %w", err)
	}

	ps.publish(ctx, models.PresenceTransition{
		Username:  username,
		Status:    models.StatusOffline,
		LastSeen:  now,
		Timestamp: now,
	})
	return true, nil
}

// IsOnline reports whether the user is a member of the online set.
func (ps *PresenceStateStore) IsOnline(ctx context.Context, username string) (bool, error) {
	online, err := ps.redis.SIsMember(ctx, onlineSetKey, username).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check online set: %w", err)
	}
	return online, nil
}

// ListOnlineUsers returns every username currently in the online set.
func (ps *PresenceStateStore) ListOnlineUsers(ctx context.Context) ([]string, error) {
	users, err := ps.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return users, nil
}

// LastSeen returns the user's last transition timestamp in epoch
// milliseconds, or zero if the user has never connected.
func (ps *PresenceStateStore) LastSeen(ctx context.Context, username string) (int64, error) {
	raw, err := ps.redis.HGet(ctx, userMetaKey(username), "lastSeen").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read lastSeen: %w", err)
	}
	return raw, nil
}

// publish sends a transition on a best-effort basis. State is already
// committed to the store at this point, so a publish failure is logged and
// the triggering operation still succeeds.
func (ps *PresenceStateStore) publish(ctx context.Context, transition models.PresenceTransition) {
	if err := ps.broadcaster.Publish(ctx, transition); err != nil {
		ps.logger.Error("Failed to publish presence transition",
			"user", transition.Username, "status", transition.Status, "error", err)
	}
}
