package profiles

import (
	"context"
	"time"
)

// Document is the unit a RecordStore exchanges with the Manager: the encoded payload of one key
// plus the store's metadata for it.
type Document[M any] struct {
	// Store name the document belongs to.
	Store string
	// Key of the record within the store.
	Key string
	// Payload is the encoded record data. Empty for a record that was never saved.
	Payload []byte
	// Metadata is store-defined and opaque to the Manager.
	Metadata M
	// Session is the lock owner id of an exclusively loaded document. NilUUID for views.
	Session UUID
}

// RecordStore is the persistent key/value record store with per-key exclusive sessions.
type RecordStore[M any] interface {
	// LoadExclusive acquires the cross-process session for key and returns its document.
	// Failure covers a session held elsewhere as well as transient errors.
	LoadExclusive(ctx context.Context, storeName string, key string) (*Document[M], error)
	// ViewReadOnly reads a snapshot of key without acquiring its session.
	// A missing record returns (nil, false, nil).
	ViewReadOnly(ctx context.Context, storeName string, key string) (*Document[M], bool, error)
	// Release persists the document's payload then gives up its session. Idempotent.
	Release(ctx context.Context, doc *Document[M]) error
	// Persist writes the document's payload back to the store.
	Persist(ctx context.Context, doc *Document[M]) error
}

// SessionRefresher is implemented by record stores whose sessions expire and can be extended.
type SessionRefresher[M any] interface {
	// Refresh extends the session of doc and reports whether it is still owned.
	Refresh(ctx context.Context, doc *Document[M]) (bool, error)
}

// SessionDiscarder is implemented by record stores that can give up a session without writing
// the document back.
type SessionDiscarder[M any] interface {
	// Discard ends the session of doc, leaving the persisted record as it was. Idempotent.
	Discard(ctx context.Context, doc *Document[M]) error
}

// RecordDeleter is implemented by record stores that can remove a record.
type RecordDeleter[M any] interface {
	// Delete removes the persisted record of doc, whose session the caller must hold, then
	// gives up the session.
	Delete(ctx context.Context, doc *Document[M]) error
}

// SessionInspector is implemented by record stores that can report on sessions without
// acquiring them.
type SessionInspector[M any] interface {
	// IsLocked reports whether any process holds the session of key.
	IsLocked(ctx context.Context, storeName string, key string) (bool, error)
	// Owns reports whether the session of doc is still held by the process that loaded it.
	Owns(ctx context.Context, doc *Document[M]) (bool, error)
}

// LockKey is a lock on one key, owned by LockID.
type LockKey struct {
	// Key is the (prefixed) name under which the lock is kept.
	Key string
	// LockID is the owner id written as the lock's value.
	LockID UUID
	// IsLockOwner is set by the Locker when the caller owns the lock.
	IsLockOwner bool
}

// Tuple pairs two values.
type Tuple[T1 any, T2 any] struct {
	First  T1
	Second T2
}

// Locker is a TTL based lock service shared by every process that can load the same records.
type Locker interface {
	// FormatLockKey returns the namespaced name used to keep the lock of k.
	FormatLockKey(k string) string
	// CreateLockKeys creates lock keys using newly generated lock ids.
	CreateLockKeys(keys []string) []*LockKey
	// CreateLockKeysForIDs creates lock keys using the given (name, lock id) pairs.
	CreateLockKeysForIDs(keys []Tuple[string, UUID]) []*LockKey
	// Lock acquires all lock keys for duration. If any is held by another owner, it
	// returns false and that owner's id.
	Lock(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, UUID, error)
	// IsLocked reports whether all lock keys are owned by the caller.
	IsLocked(ctx context.Context, lockKeys []*LockKey) (bool, error)
	// IsLockedTTL is IsLocked that also extends the TTL of the owned keys.
	IsLockedTTL(ctx context.Context, duration time.Duration, lockKeys []*LockKey) (bool, error)
	// IsLockedByOthers reports whether all named lock keys are held by anyone.
	IsLockedByOthers(ctx context.Context, lockKeyNames []string) (bool, error)
	// Unlock releases the lock keys owned by the caller.
	Unlock(ctx context.Context, lockKeys []*LockKey) error
}

// BlobStore keeps encoded records, one blob per (store, key).
type BlobStore interface {
	// Get returns (blob, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, storeName string, key string) ([]byte, bool, error)
	// Put inserts or overwrites the blob of key.
	Put(ctx context.Context, storeName string, key string, blob []byte) error
	// Remove deletes the blob of key. Removing a missing key is not an error.
	Remove(ctx context.Context, storeName string, key string) error
}

// Validator checks an encoded payload before it is persisted.
type Validator interface {
	Validate(payload []byte) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(payload []byte) error

// Validate calls f(payload).
func (f ValidatorFunc) Validate(payload []byte) error {
	return f(payload)
}

// Reconciler fills the fields the template has and payload lacks, never overwriting payload values.
type Reconciler func(payload []byte, template []byte) ([]byte, error)
