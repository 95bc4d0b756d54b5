// Package lockstore composes a Locker and a BlobStore into the record store used by profiles.Manager.
//
// Each record is persisted as an envelope, {"metadata": {...}, "data": {...}}, under its key. An
// exclusive load takes the record's lock with a TTL; every persist checks the lock is still
// owned and extends it.
package lockstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "log/slog"

	"github.com/sharedcode/profiles"
	"github.com/sharedcode/profiles/encoding"
)

// DefaultLockTTL is the lock duration of a session that is not refreshed.
const DefaultLockTTL = 2 * time.Minute

// Metadata is kept next to every record.
type Metadata struct {
	// SessionID is the owner id of the last exclusive load.
	SessionID string `json:"session_id,omitempty"`
	// ActiveSince is when the last exclusive load acquired its session.
	ActiveSince time.Time `json:"active_since"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// LoadCount counts exclusive loads.
	LoadCount int64 `json:"load_count"`
	// Version counts persists.
	Version int64 `json:"version"`
}

type envelope struct {
	Metadata Metadata        `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// Options configures a Store.
type Options struct {
	// LockTTL is the session duration, extended on every persist and refresh. Defaults to DefaultLockTTL.
	LockTTL time.Duration
	// Marshaler encodes the envelope. Defaults to encoding.EnvelopeMarshaler.
	Marshaler encoding.Marshaler
}

// Store is a profiles.RecordStore over a Locker and a BlobStore.
type Store struct {
	locker profiles.Locker
	blobs  profiles.BlobStore
	opts   Options
}

var (
	_ profiles.RecordStore[Metadata]      = (*Store)(nil)
	_ profiles.SessionRefresher[Metadata] = (*Store)(nil)
	_ profiles.SessionDiscarder[Metadata] = (*Store)(nil)
	_ profiles.RecordDeleter[Metadata]    = (*Store)(nil)
	_ profiles.SessionInspector[Metadata] = (*Store)(nil)
)

// New returns a Store locking records with locker and keeping their envelopes in blobs.
func New(locker profiles.Locker, blobs profiles.BlobStore, options Options) *Store {
	if options.LockTTL <= 0 {
		options.LockTTL = DefaultLockTTL
	}
	if options.Marshaler == nil {
		options.Marshaler = encoding.EnvelopeMarshaler
	}
	return &Store{
		locker: locker,
		blobs:  blobs,
		opts:   options,
	}
}

func lockName(storeName, key string) string {
	return fmt.Sprintf("P%s:%s", storeName, key)
}

func (s *Store) lockKeys(doc *profiles.Document[Metadata]) []*profiles.LockKey {
	return s.locker.CreateLockKeysForIDs([]profiles.Tuple[string, profiles.UUID]{
		{First: lockName(doc.Store, doc.Key), Second: doc.Session},
	})
}

// LoadExclusive locks key and reads its envelope. A record that does not exist yet loads as
// an empty document. Failing to lock returns a LockAcquisitionFailure error.
func (s *Store) LoadExclusive(ctx context.Context, storeName string, key string) (*profiles.Document[Metadata], error) {
	lk := s.locker.CreateLockKeys([]string{lockName(storeName, key)})
	doc := &profiles.Document[Metadata]{
		Store:   storeName,
		Key:     key,
		Session: lk[0].LockID,
	}
	ok, owner, err := s.locker.Lock(ctx, s.opts.LockTTL, lk)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, profiles.Error{
			Code:     profiles.LockAcquisitionFailure,
			Err:      fmt.Errorf("profile %q is locked by session %s", key, owner.String()),
			UserData: key,
		}
	}

	env, found, err := s.read(ctx, storeName, key)
	if err != nil {
		if uerr := s.locker.Unlock(ctx, lk); uerr != nil {
			log.Warn("unlock after failed read failed", "store", storeName, "key", key, "error", uerr)
		}
		return nil, err
	}
	now := profiles.Now().UTC()
	if !found {
		env.Metadata.CreatedAt = now
	}
	env.Metadata.LoadCount++
	env.Metadata.SessionID = doc.Session.String()
	env.Metadata.ActiveSince = now

	doc.Payload = env.Data
	doc.Metadata = env.Metadata
	log.Debug("profile session acquired", "store", storeName, "key", key, "session", env.Metadata.SessionID)
	return doc, nil
}

// ViewReadOnly reads the envelope of key without locking it.
func (s *Store) ViewReadOnly(ctx context.Context, storeName string, key string) (*profiles.Document[Metadata], bool, error) {
	env, found, err := s.read(ctx, storeName, key)
	if err != nil || !found {
		return nil, false, err
	}
	return &profiles.Document[Metadata]{
		Store:    storeName,
		Key:      key,
		Payload:  env.Data,
		Metadata: env.Metadata,
	}, true, nil
}

// Persist writes the document if its session is still owned, extending the session's TTL.
// A session that expired or was taken over fails with a SessionLost error.
func (s *Store) Persist(ctx context.Context, doc *profiles.Document[Metadata]) error {
	if doc.Session.IsNil() {
		return profiles.Error{
			Code:     profiles.SessionLost,
			Err:      errors.New("document holds no session"),
			UserData: doc.Key,
		}
	}
	_, err := s.persist(ctx, doc)
	return err
}

func (s *Store) persist(ctx context.Context, doc *profiles.Document[Metadata]) ([]*profiles.LockKey, error) {
	lk := s.lockKeys(doc)
	owned, err := s.locker.IsLockedTTL(ctx, s.opts.LockTTL, lk)
	if err != nil {
		return lk, err
	}
	if !owned {
		return lk, profiles.Error{
			Code:     profiles.SessionLost,
			Err:      fmt.Errorf("session %s of profile %q is no longer owned", doc.Session.String(), doc.Key),
			UserData: doc.Key,
		}
	}

	meta := doc.Metadata
	meta.Version++
	meta.UpdatedAt = profiles.Now().UTC()
	env := envelope{Metadata: meta}
	if len(doc.Payload) > 0 {
		env.Data = doc.Payload
	}
	ba, err := s.opts.Marshaler.Marshal(env)
	if err != nil {
		return lk, err
	}
	if err := s.blobs.Put(ctx, doc.Store, doc.Key, ba); err != nil {
		return lk, fmt.Errorf("write of profile %q failed: %w", doc.Key, err)
	}
	doc.Metadata = meta
	return lk, nil
}

// Release persists the document then gives up its session. Releasing a document without a
// session, e.g. one already released, does nothing.
func (s *Store) Release(ctx context.Context, doc *profiles.Document[Metadata]) error {
	if doc.Session.IsNil() {
		return nil
	}
	lk, err := s.persist(ctx, doc)
	if profiles.CodeOf(err) != profiles.SessionLost {
		// Unlock deletes only keys persist found owned.
		if uerr := s.locker.Unlock(ctx, lk); uerr != nil && err == nil {
			err = uerr
		}
	}
	doc.Session = profiles.NilUUID
	if err != nil {
		return err
	}
	log.Debug("profile session released", "store", doc.Store, "key", doc.Key)
	return nil
}

// Discard gives up the document's session without writing it. The stored envelope keeps its
// last persisted payload.
func (s *Store) Discard(ctx context.Context, doc *profiles.Document[Metadata]) error {
	if doc.Session.IsNil() {
		return nil
	}
	lk, _, err := s.owned(ctx, doc)
	if err == nil {
		err = s.locker.Unlock(ctx, lk)
	}
	doc.Session = profiles.NilUUID
	if err != nil {
		return err
	}
	log.Debug("profile session discarded", "store", doc.Store, "key", doc.Key)
	return nil
}

// Delete removes the envelope of a document whose session is still owned, then unlocks it.
// A session that is no longer owned fails with a SessionLost error and removes nothing.
func (s *Store) Delete(ctx context.Context, doc *profiles.Document[Metadata]) error {
	lk, owned, err := s.owned(ctx, doc)
	if err != nil {
		return err
	}
	if !owned {
		return profiles.Error{
			Code:     profiles.SessionLost,
			Err:      fmt.Errorf("session %s of profile %q is no longer owned", doc.Session.String(), doc.Key),
			UserData: doc.Key,
		}
	}
	if err := s.blobs.Remove(ctx, doc.Store, doc.Key); err != nil {
		return fmt.Errorf("removal of profile %q failed: %w", doc.Key, err)
	}
	err = s.locker.Unlock(ctx, lk)
	doc.Session = profiles.NilUUID
	log.Debug("profile deleted", "store", doc.Store, "key", doc.Key)
	return err
}

// IsLocked reports whether any process holds the session of key.
func (s *Store) IsLocked(ctx context.Context, storeName string, key string) (bool, error) {
	return s.locker.IsLockedByOthers(ctx, []string{s.locker.FormatLockKey(lockName(storeName, key))})
}

// Owns reports whether the document's session is still held, without extending it.
func (s *Store) Owns(ctx context.Context, doc *profiles.Document[Metadata]) (bool, error) {
	_, owned, err := s.owned(ctx, doc)
	return owned, err
}

// owned checks the document's lock keys, marking the ones the session still holds so Unlock
// deletes only those.
func (s *Store) owned(ctx context.Context, doc *profiles.Document[Metadata]) ([]*profiles.LockKey, bool, error) {
	lk := s.lockKeys(doc)
	if doc.Session.IsNil() {
		return lk, false, nil
	}
	owned, err := s.locker.IsLocked(ctx, lk)
	return lk, owned, err
}

// Refresh extends the document's session and reports whether it is still owned.
func (s *Store) Refresh(ctx context.Context, doc *profiles.Document[Metadata]) (bool, error) {
	if doc.Session.IsNil() {
		return false, nil
	}
	return s.locker.IsLockedTTL(ctx, s.opts.LockTTL, s.lockKeys(doc))
}

func (s *Store) read(ctx context.Context, storeName string, key string) (envelope, bool, error) {
	var env envelope
	ba, found, err := s.blobs.Get(ctx, storeName, key)
	if err != nil {
		return env, false, fmt.Errorf("read of profile %q failed: %w", key, err)
	}
	if !found {
		return env, false, nil
	}
	if err := s.opts.Marshaler.Unmarshal(ba, &env); err != nil {
		return env, false, profiles.Error{Code: profiles.PayloadCorrupted, Err: err, UserData: key}
	}
	return env, true, nil
}
