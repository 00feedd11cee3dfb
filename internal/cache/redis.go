package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"example.com/backstage/services/partyup/config"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// ErrCacheMiss is returned by Get when the key is absent
var ErrCacheMiss = errors.New("key not found in cache")

// ErrDisabled is returned by every call when Redis is disabled
var ErrDisabled = errors.New("cache is disabled")

// Subscription delivers raw messages published on a topic
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// RedisCache provides caching, publish/subscribe and stream membership using Redis
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return NewRedisCacheFromClient(client), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, enabled: true}
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return ErrDisabled
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return ErrDisabled
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled {
		return ErrDisabled
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "failed to delete keys from Redis")
	}
	return nil
}

// Publish sends payload as JSON on topic
func (c *RedisCache) Publish(ctx context.Context, topic string, payload interface{}) error {
	if !c.enabled {
		return ErrDisabled
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal published payload")
	}

	if err := c.client.Publish(ctx, topic, data).Err(); err != nil {
		return errors.Wrap(err, "failed to publish to Redis")
	}
	return nil
}

// Subscribe listens on topic until the subscription is closed
func (c *RedisCache) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}

	ps := c.client.Subscribe(ctx, topic)
	// Wait for the subscription confirmation so no early message is lost
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, errors.Wrap(err, "failed to subscribe to Redis topic")
	}

	sub := &redisSubscription{ps: ps, out: make(chan []byte), done: make(chan struct{})}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ps.Close()
}

// AddMember grants a user access to an event's media stream
func (c *RedisCache) AddMember(ctx context.Context, eventGUID, userGUID string) error {
	if !c.enabled {
		return ErrDisabled
	}
	if err := c.client.SAdd(ctx, EventUsersKey(eventGUID), userGUID).Err(); err != nil {
		return errors.Wrap(err, "failed to add stream member")
	}
	return nil
}

// RemoveMember revokes a user's access to an event's media stream
func (c *RedisCache) RemoveMember(ctx context.Context, eventGUID, userGUID string) error {
	if !c.enabled {
		return ErrDisabled
	}
	if err := c.client.SRem(ctx, EventUsersKey(eventGUID), userGUID).Err(); err != nil {
		return errors.Wrap(err, "failed to remove stream member")
	}
	return nil
}

// IsMember reports whether a user may watch an event's media stream
func (c *RedisCache) IsMember(ctx context.Context, eventGUID, userGUID string) (bool, error) {
	if !c.enabled {
		return false, ErrDisabled
	}
	ok, err := c.client.SIsMember(ctx, EventUsersKey(eventGUID), userGUID).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to check stream membership")
	}
	return ok, nil
}

// Close closes the client
func (c *RedisCache) Close() error {
	if !c.enabled {
		return nil
	}
	return c.client.Close()
}

// EventMediaTopic is the channel carrying media uploads of an event
func EventMediaTopic(eventGUID string) string {
	return fmt.Sprintf("event_media:%s", eventGUID)
}

// EventUsersKey is the set of users allowed on an event's media stream
func EventUsersKey(eventGUID string) string {
	return fmt.Sprintf("event_users:%s", eventGUID)
}

// LeaderboardKey caches one page of a user's event leaderboard around a point
func LeaderboardKey(userGUID, status string, lat, lon float64, radiusKm, limit, offset int) string {
	return fmt.Sprintf("leaderboard:%s:%s:%.4f,%.4f:%d:%d:%d", userGUID, status, lat, lon, radiusKm, limit, offset)
}
