package profiles

import (
	"sync"

	"github.com/sharedcode/profiles/encoding"
)

// Profile is a loaded or viewed record of one key.
//
// A loaded profile is owned by the Manager that loaded it until Unload; its Data may be changed
// and persisted with Manager.Save. A viewed profile is a read-only snapshot: the Manager never
// persists it. Hosts that touch Data from several goroutines go through Mutate and Snapshot.
type Profile[T any, M any] struct {
	// Key of the record.
	Key string
	// Data is the reconciled payload.
	Data T
	// Metadata as last reported by the record store.
	Metadata M

	viewOnly bool
	mux      sync.Mutex
	// session mirrors doc.Session as of the last store call; guarded by mux.
	session UUID
	// io serializes store calls made on behalf of this profile.
	io  sync.Mutex
	doc *Document[M]
}

// ViewOnly reports whether the profile is a read-only snapshot.
func (p *Profile[T, M]) ViewOnly() bool {
	return p.viewOnly
}

// Session returns the id of the session backing a loaded profile, NilUUID for views.
// It turns NilUUID once the profile is unloaded or deleted.
func (p *Profile[T, M]) Session() UUID {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.session
}

// Mutate runs fn with exclusive access to Data.
func (p *Profile[T, M]) Mutate(fn func(data *T)) {
	p.mux.Lock()
	defer p.mux.Unlock()
	fn(&p.Data)
}

// Snapshot returns a copy of Data and Metadata taken under the profile's lock.
// The copy is shallow: maps and slices inside T are shared.
func (p *Profile[T, M]) Snapshot() (T, M) {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.Data, p.Metadata
}

// encode marshals Data into the backing document's payload.
func (p *Profile[T, M]) encode(m encoding.Marshaler) ([]byte, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	ba, err := m.Marshal(p.Data)
	if err != nil {
		return nil, err
	}
	p.doc.Payload = ba
	return ba, nil
}

// syncMetadata copies the document's metadata and session, updated by the last store call,
// onto the profile. Callers hold p.io.
func (p *Profile[T, M]) syncMetadata() {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.Metadata = p.doc.Metadata
	p.session = p.doc.Session
}
