package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"murmur/chat-server/utils"
)

// removeStaleSessions drops the session ids whose liveness key has expired
// from the user's membership set and returns how many were removed. Liveness
// keys expire passively, so these sweeps are the only mechanism reconciling
// the membership set with reality after a crashed process never called
// RemoveSession.
func removeStaleSessions(ctx context.Context, client *redis.Client, username string, logger *utils.Logger) (int, error) {
	members, err := client.SMembers(ctx, userSocketsKey(username)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for user: %w", err)
	}

	removed := 0
	for _, sessionID := range members {
		exists, err := client.Exists(ctx, socketKey(sessionID)).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to check session liveness: %w", err)
		}
		if exists == 0 {
			if err := client.SRem(ctx, userSocketsKey(username), sessionID).Err(); err != nil {
				return removed, fmt.Errorf("failed to remove stale session: %w", err)
			}
			logger.Debug("Removed stale session", "user", username, "session_id", sessionID)
			removed++
		}
	}
	return removed, nil
}

// StaleSessionReaper reconciles the session registry with reality. Sweep is
// pure cleanup and never publishes; SweepAll additionally forces an Offline
// transition for online users left with no live sessions, healing state left
// behind by crashed processes.
type StaleSessionReaper struct {
	redis    *redis.Client
	presence *PresenceStateStore
	interval time.Duration
	logger   *utils.Logger

	// Internal state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStaleSessionReaper(client *redis.Client, presence *PresenceStateStore, interval time.Duration, logger *utils.Logger) *StaleSessionReaper {
	ctx, cancel := context.WithCancel(context.Background())
	return &StaleSessionReaper{
		redis:    client,
		presence: presence,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Sweep removes exactly the session ids whose liveness key has expired and
// leaves all others untouched.
func (sr *StaleSessionReaper) Sweep(ctx context.Context, username string) error {
	_, err := removeStaleSessions(ctx, sr.redis, username, sr.logger)
	return err
}

// SweepAll sweeps every currently-online user and forces an Offline
// transition for those whose live session count has reached zero. One bad
// user must not stop the pass, so per-user errors are logged and skipped.
func (sr *StaleSessionReaper) SweepAll(ctx context.Context) error {
	users, err := sr.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list online users: %w", err)
	}

	for _, username := range users {
		if err := sr.Sweep(ctx, username); err != nil {
			sr.logger.Error("Sweep failed", "user", username, "error", err)
			continue
		}

		transitioned, err := sr.presence.MarkOfflineIfLastSession(ctx, username)
		if err != nil {
			sr.logger.Error("Failed to reconcile presence", "user", username, "error", err)
			continue
		}
		if transitioned {
			sr.logger.Info("Reaped user with no live sessions", "user", username)
		}
	}
	return nil
}

// Start begins the periodic maintenance loop. A non-positive interval
// disables it; SweepAll stays available on demand.
func (sr *StaleSessionReaper) Start() {
	if sr.interval <= 0 {
		sr.logger.Info("Stale session reaper disabled")
		return
	}

	sr.logger.Info("Starting stale session reaper", "interval", sr.interval.String())
	sr.wg.Add(1)
	go sr.run()
}

func (sr *StaleSessionReaper) run() {
	defer sr.wg.Done()

	ticker := time.NewTicker(sr.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sr.ctx.Done():
			return
		case <-ticker.C:
			if err := sr.SweepAll(sr.ctx); err != nil {
				sr.logger.Error("Periodic sweep failed", "error", err)
			}
		}
	}
}

// Stop shuts down the maintenance loop and waits for it to finish.
func (sr *StaleSessionReaper) Stop() {
	sr.cancel()
	sr.wg.Wait()
	sr.logger.Info("Stale session reaper stopped")
}
