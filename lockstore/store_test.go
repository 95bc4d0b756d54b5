package lockstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/profiles"
	"github.com/sharedcode/profiles/inmemory"
)

type save struct {
	Coins int `json:"coins"`
	Level int `json:"level"`
}

func newStore(ttl time.Duration) (*Store, profiles.BlobStore) {
	blobs := inmemory.NewBlobStore()
	return New(inmemory.NewLocker(), blobs, Options{LockTTL: ttl}), blobs
}

func TestLoadExclusiveOfNewRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(time.Minute)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.Empty(t, doc.Payload)
	assert.False(t, doc.Session.IsNil())
	assert.Equal(t, int64(1), doc.Metadata.LoadCount)
	assert.Equal(t, doc.Session.String(), doc.Metadata.SessionID)
	assert.False(t, doc.Metadata.CreatedAt.IsZero())

	_, found, err := s.ViewReadOnly(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.False(t, found, "a record exists only once persisted")
}

func TestSecondLoadExclusiveFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(time.Minute)

	first, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)

	_, err = s.LoadExclusive(ctx, "PlayerData", "p1")
	require.Error(t, err)
	assert.Equal(t, profiles.LockAcquisitionFailure, profiles.CodeOf(err))
	assert.Contains(t, err.Error(), first.Session.String())

	// Other keys and other stores are independent.
	_, err = s.LoadExclusive(ctx, "PlayerData", "p2")
	assert.NoError(t, err)
	_, err = s.LoadExclusive(ctx, "GuildData", "p1")
	assert.NoError(t, err)

	require.NoError(t, s.Release(ctx, first))
	_, err = s.LoadExclusive(ctx, "PlayerData", "p1")
	assert.NoError(t, err)
}

func TestPersistAndView(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(time.Minute)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	doc.Payload = []byte(`{"coins":5}`)
	require.NoError(t, s.Persist(ctx, doc))
	assert.Equal(t, int64(1), doc.Metadata.Version)

	view, found, err := s.ViewReadOnly(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"coins":5}`, string(view.Payload))
	assert.True(t, view.Session.IsNil())
	assert.Equal(t, int64(1), view.Metadata.Version)
	assert.Equal(t, int64(1), view.Metadata.LoadCount)

	require.NoError(t, s.Release(ctx, doc))
	assert.True(t, doc.Session.IsNil())
	require.NoError(t, s.Release(ctx, doc))

	again, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Metadata.LoadCount)
	assert.Equal(t, int64(2), again.Metadata.Version)
}

func TestPersistAfterSessionExpired(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(20 * time.Millisecond)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	owned, err := s.Refresh(ctx, doc)
	require.NoError(t, err)
	assert.False(t, owned)

	thief, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)

	doc.Payload = []byte(`{"coins":1}`)
	err = s.Persist(ctx, doc)
	assert.Equal(t, profiles.SessionLost, profiles.CodeOf(err))
	err = s.Release(ctx, doc)
	assert.Equal(t, profiles.SessionLost, profiles.CodeOf(err))

	// The stale release must leave the new owner's lock alone.
	owned, err = s.Refresh(ctx, thief)
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestRefreshKeepsSessionAlive(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(50 * time.Millisecond)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		owned, err := s.Refresh(ctx, doc)
		require.NoError(t, err)
		require.True(t, owned)
	}
	_, err = s.LoadExclusive(ctx, "PlayerData", "p1")
	assert.Equal(t, profiles.LockAcquisitionFailure, profiles.CodeOf(err))
}

func TestCorruptedEnvelope(t *testing.T) {
	ctx := context.Background()
	s, blobs := newStore(time.Minute)
	require.NoError(t, blobs.Put(ctx, "PlayerData", "p1", []byte("not json")))

	_, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	assert.Equal(t, profiles.PayloadCorrupted, profiles.CodeOf(err))
	_, _, err = s.ViewReadOnly(ctx, "PlayerData", "p1")
	assert.Equal(t, profiles.PayloadCorrupted, profiles.CodeOf(err))

	// The failed load did not keep the lock.
	require.NoError(t, blobs.Remove(ctx, "PlayerData", "p1"))
	_, err = s.LoadExclusive(ctx, "PlayerData", "p1")
	assert.NoError(t, err)
}

func TestManagerOverStore(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(time.Minute)
	newManager := func() *profiles.Manager[save, Metadata] {
		m, err := profiles.NewManager[save, Metadata](s, profiles.ManagerOptions[save]{
			StoreName:  "PlayerData",
			Template:   save{Level: 1},
			RetryDelay: 5 * time.Millisecond,
		})
		require.NoError(t, err)
		return m
	}
	a, b, c := newManager(), newManager(), newManager()

	p, err := a.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, save{Level: 1}, p.Data)
	p.Mutate(func(d *save) { d.Coins = 50 })

	// b contends for the session until a releases it.
	loaded := make(chan *profiles.Profile[save, Metadata])
	go func() {
		p, err := b.Load(ctx, "p1")
		assert.NoError(t, err)
		loaded <- p
	}()
	time.Sleep(30 * time.Millisecond)

	v, err := c.View(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, v, "nothing was persisted yet")

	ok, err := a.Unload(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)

	bp := <-loaded
	assert.Equal(t, save{Coins: 50, Level: 1}, bp.Data)
	assert.Equal(t, int64(2), bp.Metadata.LoadCount)
	require.NoError(t, b.Close(ctx))
}

func TestDiscardKeepsPersistedPayload(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(time.Minute)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	doc.Payload = []byte(`{"coins":5}`)
	require.NoError(t, s.Persist(ctx, doc))

	doc.Payload = []byte(`{"coins":-5}`)
	require.NoError(t, s.Discard(ctx, doc))
	assert.True(t, doc.Session.IsNil())
	require.NoError(t, s.Discard(ctx, doc))

	view, found, err := s.ViewReadOnly(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"coins":5}`, string(view.Payload))

	// Unlocked.
	next, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Metadata.LoadCount)
}

func TestDiscardLeavesOtherOwnersLock(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(20 * time.Millisecond)

	stale, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	current, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)

	require.NoError(t, s.Discard(ctx, stale))
	owned, err := s.Owns(ctx, current)
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestDeleteRemovesEnvelope(t *testing.T) {
	ctx := context.Background()
	s, blobs := newStore(time.Minute)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	doc.Payload = []byte(`{"coins":5}`)
	require.NoError(t, s.Persist(ctx, doc))

	require.NoError(t, s.Delete(ctx, doc))
	assert.True(t, doc.Session.IsNil())
	_, found, err := blobs.Get(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.False(t, found)

	locked, err := s.IsLocked(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.False(t, locked)

	err = s.Delete(ctx, doc)
	assert.Equal(t, profiles.SessionLost, profiles.CodeOf(err))
}

func TestDeleteAfterSessionExpired(t *testing.T) {
	ctx := context.Background()
	s, blobs := newStore(20 * time.Millisecond)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	doc.Payload = []byte(`{"coins":5}`)
	require.NoError(t, s.Persist(ctx, doc))
	time.Sleep(40 * time.Millisecond)

	err = s.Delete(ctx, doc)
	assert.Equal(t, profiles.SessionLost, profiles.CodeOf(err))
	_, found, err := blobs.Get(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestIsLockedAndOwns(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(time.Minute)

	locked, err := s.IsLocked(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.False(t, locked)

	doc, err := s.LoadExclusive(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	locked, err = s.IsLocked(ctx, "PlayerData", "p1")
	require.NoError(t, err)
	assert.True(t, locked)
	locked, err = s.IsLocked(ctx, "GuildData", "p1")
	require.NoError(t, err)
	assert.False(t, locked)

	owned, err := s.Owns(ctx, doc)
	require.NoError(t, err)
	assert.True(t, owned)

	require.NoError(t, s.Release(ctx, doc))
	owned, err = s.Owns(ctx, doc)
	require.NoError(t, err)
	assert.False(t, owned)
}
