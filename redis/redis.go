package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/profiles"
)

// Client talks to Redis for locking and blob storage.
type Client struct {
	conn    *Connection
	isOwner bool
}

// NewClient returns a Client over the package-level connection opened with OpenConnection.
func NewClient() *Client {
	return &Client{}
}

// NewConnectionClient opens a dedicated Redis connection. Call Close when no longer needed.
func NewConnectionClient(options Options) *Client {
	log.Info("opening dedicated Redis connection", "address", options.Address, "db", options.DB)
	return &Client{
		conn:    openConnection(options),
		isOwner: true,
	}
}

// Close closes the owned Redis connection, if any.
func (c *Client) Close() error {
	if !c.isOwner || c.conn == nil {
		return nil
	}
	err := closeConnection(c.conn)
	c.conn = nil
	return err
}

func (c *Client) getConnection() (*Connection, error) {
	if c.isOwner {
		if c.conn == nil {
			return nil, errors.New("redis connection is closed")
		}
		return c.conn, nil
	}
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return nil, errors.New("redis connection is not open, call OpenConnection first")
	}
	return connection, nil
}

func keyNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping tests connectivity to Redis.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.getConnection()
	if err != nil {
		return err
	}
	if err := conn.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// extendIfOwned sets the TTL of key only when its value is owner, in one round trip.
var extendIfOwned = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ExpireIfOwner extends the TTL of key to expiration when its value equals owner and reports
// whether it did. A missing key or a different owner leaves the key untouched.
func (c *Client) ExpireIfOwner(ctx context.Context, key string, owner string, expiration time.Duration) (bool, error) {
	conn, err := c.getConnection()
	if err != nil {
		return false, err
	}
	n, err := extendIfOwned.Run(ctx, conn.Client, []string{key}, owner, expiration.Milliseconds()).Int64()
	if err != nil && !keyNotFound(err) {
		return false, fmt.Errorf("redis expire failed for key %s: %w", key, err)
	}
	return n == 1, nil
}

// Delete removes keys.
func (c *Client) Delete(ctx context.Context, keys []string) error {
	conn, err := c.getConnection()
	if err != nil {
		return err
	}
	if err := conn.Client.Del(ctx, keys...).Err(); err != nil && !keyNotFound(err) {
		return fmt.Errorf("redis delete failed for keys %v: %w", keys, err)
	}
	return nil
}

func init() {
	profiles.RegisterLocker(profiles.Redis, func() profiles.Locker { return NewClient() })
}
