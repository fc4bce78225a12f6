package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"murmur/chat-server/models"
	"murmur/chat-server/utils"
)

// presenceEnv wires the presence core against an in-process redis, with a
// subscriber recording every transition published on the channel.
type presenceEnv struct {
	mr          *miniredis.Miniredis
	client      *redis.Client
	registry    *SessionRegistry
	presence    *PresenceStateStore
	broadcaster *PresenceBroadcaster
	reaper      *StaleSessionReaper
	transitions chan models.PresenceTransition
}

func newRedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func newPresenceEnv(t *testing.T) *presenceEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	logger := utils.NewLogger()

	client := newRedisClient(t, mr)
	pub := newRedisClient(t, mr)
	sub := newRedisClient(t, mr)

	broadcaster := NewPresenceBroadcaster(pub, sub, logger)
	registry := NewSessionRegistry(client, 60*time.Second, logger)
	presence := NewPresenceStateStore(client, registry, broadcaster, logger)
	reaper := NewStaleSessionReaper(client, presence, 0, logger)

	transitions := make(chan models.PresenceTransition, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, broadcaster.Subscribe(ctx, func(tr models.PresenceTransition) {
		transitions <- tr
	}))

	return &presenceEnv{
		mr:          mr,
		client:      client,
		registry:    registry,
		presence:    presence,
		broadcaster: broadcaster,
		reaper:      reaper,
		transitions: transitions,
	}
}

func waitTransition(t *testing.T, ch <-chan models.PresenceTransition) models.PresenceTransition {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence transition")
		return models.PresenceTransition{}
	}
}

func assertNoTransition(t *testing.T, ch <-chan models.PresenceTransition) {
	t.Helper()
	select {
	case tr := <-ch:
		t.Fatalf("unexpected presence transition: %+v", tr)
	case <-time.After(200 * time.Millisecond):
	}
}
