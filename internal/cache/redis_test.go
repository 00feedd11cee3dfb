package cache

import (
	"context"
	"testing"

	"example.com/backstage/services/partyup/config"

	"github.com/stretchr/testify/require"
)

func TestDisabledCache(t *testing.T) {
	c, err := NewRedisCache(config.RedisConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.ErrorIs(t, c.Publish(ctx, EventMediaTopic("e1"), map[string]string{"a": "b"}), ErrDisabled)
	require.ErrorIs(t, c.AddMember(ctx, "e1", "u1"), ErrDisabled)

	ok, err := c.IsMember(ctx, "e1", "u1")
	require.ErrorIs(t, err, ErrDisabled)
	require.False(t, ok)

	var out []string
	require.ErrorIs(t, c.Get(ctx, "k", &out), ErrDisabled)
	require.NoError(t, c.Close())
}

func TestKeys(t *testing.T) {
	require.Equal(t, "event_media:abc", EventMediaTopic("abc"))
	require.Equal(t, "event_users:abc", EventUsersKey("abc"))
	require.Equal(t, "leaderboard:u1:UPCOMING:45.4642,9.1900:25:10:20", LeaderboardKey("u1", "UPCOMING", 45.46421, 9.19, 25, 10, 20))
}
