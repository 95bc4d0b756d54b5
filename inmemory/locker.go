// Package inmemory provides a Locker and a BlobStore living in process memory. They back the
// Standalone database mode and the tests of the packages built on top of them.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sharedcode/profiles"
)

type lockItem struct {
	owner      string
	expiration time.Time
}

type locker struct {
	mu    sync.Mutex
	locks map[string]lockItem
}

var shared = NewLocker()

// NewLocker returns a Locker that coordinates the goroutines holding it.
func NewLocker() profiles.Locker {
	return &locker{
		locks: make(map[string]lockItem),
	}
}

// get returns the live lock of key, dropping it if expired. Caller holds mu.
func (l *locker) get(key string) (lockItem, bool) {
	it, ok := l.locks[key]
	if !ok {
		return it, false
	}
	if !it.expiration.IsZero() && time.Now().After(it.expiration) {
		delete(l.locks, key)
		return it, false
	}
	return it, true
}

func expiry(duration time.Duration) time.Time {
	if duration <= 0 {
		return time.Time{}
	}
	return time.Now().Add(duration)
}

// FormatLockKey prefixes the key with 'L' like the Redis locker does.
func (l *locker) FormatLockKey(k string) string {
	return fmt.Sprintf("L%s", k)
}

func (l *locker) CreateLockKeys(keys []string) []*profiles.LockKey {
	lockKeys := make([]*profiles.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &profiles.LockKey{
			Key:    l.FormatLockKey(keys[i]),
			LockID: profiles.NewUUID(),
		}
	}
	return lockKeys
}

func (l *locker) CreateLockKeysForIDs(keys []profiles.Tuple[string, profiles.UUID]) []*profiles.LockKey {
	lockKeys := make([]*profiles.LockKey, len(keys))
	for i := range keys {
		lockKeys[i] = &profiles.LockKey{
			Key:    l.FormatLockKey(keys[i].First),
			LockID: keys[i].Second,
		}
	}
	return lockKeys
}

// Lock acquires all lock keys or none of them.
func (l *locker) Lock(ctx context.Context, duration time.Duration, lockKeys []*profiles.LockKey) (bool, profiles.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, lk := range lockKeys {
		if it, ok := l.get(lk.Key); ok && it.owner != lk.LockID.String() {
			id, _ := profiles.ParseUUID(it.owner)
			return false, id, nil
		}
	}
	exp := expiry(duration)
	for _, lk := range lockKeys {
		l.locks[lk.Key] = lockItem{owner: lk.LockID.String(), expiration: exp}
		lk.IsLockOwner = true
	}
	return true, profiles.NilUUID, nil
}

func (l *locker) IsLocked(ctx context.Context, lockKeys []*profiles.LockKey) (bool, error) {
	return l.isLocked(lockKeys, false, 0), nil
}

// IsLockedTTL reports ownership and extends the TTL of the owned keys.
func (l *locker) IsLockedTTL(ctx context.Context, duration time.Duration, lockKeys []*profiles.LockKey) (bool, error) {
	return l.isLocked(lockKeys, true, duration), nil
}

func (l *locker) isLocked(lockKeys []*profiles.LockKey, extend bool, duration time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := true
	for _, lk := range lockKeys {
		it, ok := l.get(lk.Key)
		if !ok || it.owner != lk.LockID.String() {
			lk.IsLockOwner = false
			r = false
			continue
		}
		lk.IsLockOwner = true
		if extend {
			it.expiration = expiry(duration)
			l.locks[lk.Key] = it
		}
	}
	return r
}

func (l *locker) IsLockedByOthers(ctx context.Context, lockKeyNames []string) (bool, error) {
	if len(lockKeyNames) == 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range lockKeyNames {
		if _, ok := l.get(k); !ok {
			return false, nil
		}
	}
	return true, nil
}

// Unlock deletes only the keys still owned by the caller.
func (l *locker) Unlock(ctx context.Context, lockKeys []*profiles.LockKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lk := range lockKeys {
		if !lk.IsLockOwner {
			continue
		}
		if it, ok := l.get(lk.Key); ok && it.owner == lk.LockID.String() {
			delete(l.locks, lk.Key)
		}
		lk.IsLockOwner = false
	}
	return nil
}

func init() {
	// Every Locker created through the registry shares one lock table, else they would not exclude each other.
	profiles.RegisterLocker(profiles.InMemory, func() profiles.Locker { return shared })
}
