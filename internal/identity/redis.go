package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nexthire/chatd/internal/metrics"
	"github.com/nexthire/chatd/internal/models"
)

const profileTTL = 5 * time.Minute

// RedisDirectory implements Directory and Authorizer against the Redis
// instance the identity service keeps synchronized: user profiles as
// JSON under user:{id}, follow relations as sets under
// user:{id}:following, and presence keys written back by this process.
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory creates a directory backed by the shared Redis.
func NewRedisDirectory(ctx context.Context, redisURL string) (*RedisDirectory, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisDirectory{client: client}, nil
}

// NewRedisDirectoryFromClient wraps an existing client, letting the
// directory share the connection pool with the rate limiter.
func NewRedisDirectoryFromClient(client *redis.Client) *RedisDirectory {
	return &RedisDirectory{client: client}
}

// Close closes the Redis connection.
func (d *RedisDirectory) Close() error {
	return d.client.Close()
}

// Ping checks the Redis connection.
func (d *RedisDirectory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Client exposes the underlying client for components that share it.
func (d *RedisDirectory) Client() *redis.Client {
	return d.client
}

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

func profileKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

func followingKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s:following", id)
}

func onlineKey(id uuid.UUID) string {
	return fmt.Sprintf("presence:online:%s", id)
}

func lastSeenKey(id uuid.UUID) string {
	return fmt.Sprintf("presence:lastseen:%s", id)
}

// Lookup returns the user profile, or nil when unknown.
func (d *RedisDirectory) Lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	defer observe(time.Now())

	data, err := d.client.Get(ctx, profileKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, err
	}
	user.ID = id

	online, _ := d.client.Exists(ctx, onlineKey(id)).Result()
	user.Online = online > 0
	if ts, err := d.client.Get(ctx, lastSeenKey(id)).Int64(); err == nil {
		t := time.UnixMilli(ts).UTC()
		user.LastSeen = &t
	}

	return &user, nil
}

// SetOnline records the online flag and, on disconnect, the last-seen
// timestamp.
func (d *RedisDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	if online {
		return d.client.Set(ctx, onlineKey(id), 1, 0).Err()
	}

	pipe := d.client.Pipeline()
	pipe.Del(ctx, onlineKey(id))
	pipe.Set(ctx, lastSeenKey(id), time.Now().UnixMilli(), 0)
	_, err := pipe.Exec(ctx)
	return err
}

// CanMessage allows messaging when either side follows the other, the
// policy the identity service applies to direct messages.
func (d *RedisDirectory) CanMessage(ctx context.Context, sender, receiver uuid.UUID) (bool, error) {
	defer observe(time.Now())

	pipe := d.client.Pipeline()
	senderFollows := pipe.SIsMember(ctx, followingKey(sender), receiver.String())
	receiverFollows := pipe.SIsMember(ctx, followingKey(receiver), sender.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return senderFollows.Val() || receiverFollows.Val(), nil
}

// StoreProfile caches a profile with a bounded TTL. Used by tests and
// by the identity service's sync job.
func (d *RedisDirectory) StoreProfile(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, profileKey(user.ID), data, profileTTL).Err()
}
