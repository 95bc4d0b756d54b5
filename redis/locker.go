package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/profiles"
)

var _ profiles.Locker = (*Client)(nil)

// FormatLockKey prefixes the key with 'L' to form the namespaced Redis key used for locking.
func (c *Client) FormatLockKey(k string) string {
	return fmt.Sprintf("L%s", k)
}

// CreateLockKeys creates lock keys using newly generated lock IDs for each provided key name.
func (c *Client) CreateLockKeys(keys []string) []*profiles.LockKey {
	lockKeys := make([]*profiles.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &profiles.LockKey{
			Key:    c.FormatLockKey(keys[i]),
			LockID: profiles.NewUUID(),
		}
	}
	return lockKeys
}

// CreateLockKeysForIDs builds lock keys from (name, lockID) tuples.
func (c *Client) CreateLockKeysForIDs(keys []profiles.Tuple[string, profiles.UUID]) []*profiles.LockKey {
	lockKeys := make([]*profiles.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &profiles.LockKey{
			Key:    c.FormatLockKey(keys[i].First),
			LockID: keys[i].Second,
		}
	}
	return lockKeys
}

// Lock attempts to acquire locks for all provided keys using the given TTL duration.
// If any key is already locked by another owner, it returns false and that owner's UUID.
func (c *Client) Lock(ctx context.Context, duration time.Duration, lockKeys []*profiles.LockKey) (bool, profiles.UUID, error) {
	conn, err := c.getConnection()
	if err != nil {
		return false, profiles.NilUUID, err
	}

	pipe := conn.Client.Pipeline()
	setCmds := make([]*redis.BoolCmd, len(lockKeys))
	for i, lk := range lockKeys {
		setCmds[i] = pipe.SetNX(ctx, lk.Key, lk.LockID.String(), duration)
	}
	if _, err := pipe.Exec(ctx); err != nil && !keyNotFound(err) {
		return false, profiles.NilUUID, err
	}

	var failed []int
	for i, cmd := range setCmds {
		set, err := cmd.Result()
		if err != nil && !keyNotFound(err) {
			return false, profiles.NilUUID, err
		}
		if set {
			lockKeys[i].IsLockOwner = true
			continue
		}
		failed = append(failed, i)
	}
	if len(failed) == 0 {
		return true, profiles.NilUUID, nil
	}

	// Keys SETNX could not set are either ours already or someone else's.
	pipe = conn.Client.Pipeline()
	getCmds := make([]*redis.StringCmd, len(failed))
	for i, idx := range failed {
		getCmds[i] = pipe.Get(ctx, lockKeys[idx].Key)
	}
	_, _ = pipe.Exec(ctx)

	for i, cmd := range getCmds {
		lk := lockKeys[failed[i]]
		owner, err := cmd.Result()
		if err != nil {
			if keyNotFound(err) {
				// Expired in the interim, the caller retries.
				return false, profiles.NilUUID, nil
			}
			return false, profiles.NilUUID, err
		}
		if owner == lk.LockID.String() {
			lk.IsLockOwner = true
			continue
		}
		id, _ := profiles.ParseUUID(owner)
		return false, id, nil
	}
	return true, profiles.NilUUID, nil
}

// IsLocked reports whether all provided lock keys are currently owned by the caller.
func (c *Client) IsLocked(ctx context.Context, lockKeys []*profiles.LockKey) (bool, error) {
	if len(lockKeys) == 0 {
		return true, nil
	}
	conn, err := c.getConnection()
	if err != nil {
		return false, err
	}

	pipe := conn.Client.Pipeline()
	cmds := make([]*redis.StringCmd, len(lockKeys))
	for i, lk := range lockKeys {
		cmds[i] = pipe.Get(ctx, lk.Key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !keyNotFound(err) {
		return false, err
	}

	r := true
	var lastErr error
	for i, cmd := range cmds {
		lk := lockKeys[i]
		owner, err := cmd.Result()
		if err != nil || owner != lk.LockID.String() {
			lk.IsLockOwner = false
			r = false
			if err != nil && !keyNotFound(err) {
				lastErr = err
			}
			continue
		}
		lk.IsLockOwner = true
	}
	return r, lastErr
}

// IsLockedTTL reports whether all provided lock keys are owned by the caller and
// extends their TTL by duration when owned. Keys owned by others keep their TTL.
func (c *Client) IsLockedTTL(ctx context.Context, duration time.Duration, lockKeys []*profiles.LockKey) (bool, error) {
	r := true
	var lastErr error
	for _, lk := range lockKeys {
		owned, err := c.ExpireIfOwner(ctx, lk.Key, lk.LockID.String(), duration)
		if err != nil {
			lastErr = err
		}
		if !owned {
			lk.IsLockOwner = false
			r = false
			continue
		}
		lk.IsLockOwner = true
	}
	return r, lastErr
}

// IsLockedByOthers reports whether all given lock key names are currently locked.
func (c *Client) IsLockedByOthers(ctx context.Context, lockKeyNames []string) (bool, error) {
	if len(lockKeyNames) == 0 {
		return false, nil
	}
	conn, err := c.getConnection()
	if err != nil {
		return false, err
	}
	n, err := conn.Client.Exists(ctx, lockKeyNames...).Result()
	if err != nil {
		return false, err
	}
	return n == int64(len(lockKeyNames)), nil
}

// Unlock releases the provided lock keys, deleting only those owned by the caller.
func (c *Client) Unlock(ctx context.Context, lockKeys []*profiles.LockKey) error {
	var keys []string
	for _, lk := range lockKeys {
		if lk.IsLockOwner {
			keys = append(keys, lk.Key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.Delete(ctx, keys); err != nil {
		return err
	}
	for _, lk := range lockKeys {
		lk.IsLockOwner = false
	}
	return nil
}
