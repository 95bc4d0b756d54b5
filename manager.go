package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Now returns the current time and can be "synthesized" if needed.
var Now = time.Now

// Manager mediates access to the records of one store. It caches loaded and viewed profiles,
// keeps at most one in-flight store call per key for views, and retries contended loads.
//
// A Manager is safe for concurrent use. Its caches are owned by the instance; create one
// Manager per store name.
type Manager[T any, M any] struct {
	storeName string
	store     RecordStore[M]
	template  []byte
	opts      ManagerOptions[T]
	log       *slog.Logger

	mux     sync.Mutex
	loaded  map[string]*Profile[T, M]
	viewed  map[string]*Profile[T, M]
	pending map[string]*pendingOp[T, M]
	closed  bool
}

// NewManager creates a manager over store. The template is encoded once here; a template that
// does not encode to a JSON object is a configuration error.
func NewManager[T any, M any](store RecordStore[M], options ManagerOptions[T]) (*Manager[T, M], error) {
	if store == nil {
		return nil, Error{Code: TemplateMisconfigured, Err: errors.New("record store can't be nil")}
	}
	if options.StoreName == "" {
		return nil, Error{Code: TemplateMisconfigured, Err: errors.New("store name can't be empty")}
	}
	options.applyDefaults()

	tmpl, err := options.Marshaler.Marshal(options.Template)
	if err != nil {
		return nil, Error{Code: TemplateMisconfigured, Err: err, UserData: options.StoreName}
	}
	if o, err := decodeObject(tmpl); err != nil || o == nil {
		if err == nil {
			err = errors.New("template encodes to null")
		}
		return nil, Error{Code: TemplateMisconfigured, Err: err, UserData: options.StoreName}
	}

	return &Manager[T, M]{
		storeName: options.StoreName,
		store:     store,
		template:  tmpl,
		opts:      options,
		log:       options.Logger.With("store", options.StoreName),
		loaded:    make(map[string]*Profile[T, M]),
		viewed:    make(map[string]*Profile[T, M]),
		pending:   make(map[string]*pendingOp[T, M]),
	}, nil
}

// StoreName returns the name of the store the manager is bound to.
func (m *Manager[T, M]) StoreName() string {
	return m.storeName
}

// Load returns the profile of key, acquiring its session when it is not loaded yet.
//
// A failed exclusive load (session held elsewhere, transient store error) is retried after
// RetryDelay, doubling the delay on each further failure, with no retry limit. ctx is the only
// bound: when it is done Load returns its error and caches nothing.
//
// Concurrent Load calls for the same uncached key are not coalesced; each contacts the store
// and the store's exclusivity decides the winner. Concurrent View calls do wait for the load.
func (m *Manager[T, M]) Load(ctx context.Context, key string) (*Profile[T, M], error) {
	start := Now()

	m.mux.Lock()
	if m.closed {
		m.mux.Unlock()
		return nil, ErrManagerClosed
	}
	if p, ok := m.loaded[key]; ok {
		m.mux.Unlock()
		return p, nil
	}
	var op *pendingOp[T, M]
	if _, ok := m.pending[key]; !ok {
		op = newPendingOp[T, M](loadOp)
		m.pending[key] = op
	}
	m.mux.Unlock()

	p, err := m.loadExclusive(ctx, key)

	var duplicate *Profile[T, M]
	m.mux.Lock()
	if op != nil {
		delete(m.pending, key)
	}
	closed := m.closed
	if err == nil {
		switch existing, ok := m.loaded[key]; {
		case closed:
			duplicate, p, err = p, nil, ErrManagerClosed
		case ok:
			// Another Load of this key won; keep the cached profile.
			duplicate, p = p, existing
		default:
			m.loaded[key] = p
		}
	}
	loadedCount := len(m.loaded)
	m.mux.Unlock()

	if op != nil {
		op.resolve(p, err)
	}
	if duplicate != nil {
		if rerr := m.store.Release(ctx, duplicate.doc); rerr != nil {
			m.log.Warn("release of duplicate profile session failed", "key", key, "error", rerr)
		}
	}
	if err != nil {
		return nil, err
	}
	if duplicate == nil {
		m.opts.Metrics.loadDone(loadedCount)
		m.logCompleted("profile loaded", key, start)
	}
	return p, nil
}

func (m *Manager[T, M]) loadExclusive(ctx context.Context, key string) (*Profile[T, M], error) {
	b := newLoadBackoff(m.opts.RetryDelay, m.opts.MaxRetryDelay, func(d time.Duration) {
		m.opts.Metrics.retried()
		if d > m.opts.RetryWarnAfter {
			m.log.Warn("profile load retrying", "key", key, "delay", d)
		}
	})

	var doc *Document[M]
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		d, err := m.store.LoadExclusive(ctx, m.storeName, key)
		if err != nil {
			if CodeOf(err) == PayloadCorrupted {
				return err
			}
			m.log.Debug("exclusive load failed", "key", key, "error", err)
			return retry.RetryableError(err)
		}
		doc = d
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load of profile %q aborted: %w", key, err)
	}

	p, err := m.decode(key, doc, false)
	if err != nil {
		// A session on a payload nobody can use is only in the way.
		if rerr := m.store.Release(ctx, doc); rerr != nil {
			m.log.Warn("release of undecodable profile failed", "key", key, "error", rerr)
		}
		return nil, err
	}
	return p, nil
}

// View returns a read-only snapshot of key, or nil when the store has no record for it.
//
// A loaded profile takes precedence over a view and is returned as is. Views are cached until
// ForgetView. Concurrent callers for a key without a cached profile share a single store call,
// including callers arriving while a Load of the key is in flight. Store errors are returned to
// every waiting caller and are not retried.
func (m *Manager[T, M]) View(ctx context.Context, key string) (*Profile[T, M], error) {
	for {
		start := Now()

		m.mux.Lock()
		if m.closed {
			m.mux.Unlock()
			return nil, ErrManagerClosed
		}
		if p, ok := m.loaded[key]; ok {
			m.mux.Unlock()
			m.opts.Metrics.viewed(viewHit)
			return p, nil
		}
		if p, ok := m.viewed[key]; ok {
			m.mux.Unlock()
			m.opts.Metrics.viewed(viewHit)
			return p, nil
		}
		if op, ok := m.pending[key]; ok {
			m.mux.Unlock()
			m.opts.Metrics.viewed(viewDedup)
			p, err := op.wait(ctx)
			if err != nil && op.kind == loadOp && ctx.Err() == nil {
				// The load we waited on gave up; read the record ourselves.
				continue
			}
			return p, err
		}
		op := newPendingOp[T, M](viewOp)
		m.pending[key] = op
		m.mux.Unlock()

		// The store call outlives a caller that gives up; other waiters still get its result.
		go m.viewReadOnly(context.WithoutCancel(ctx), key, op, start)
		return op.wait(ctx)
	}
}

func (m *Manager[T, M]) viewReadOnly(ctx context.Context, key string, op *pendingOp[T, M], start time.Time) {
	doc, found, err := m.store.ViewReadOnly(ctx, m.storeName, key)
	var p *Profile[T, M]
	if err == nil && found {
		p, err = m.decode(key, doc, true)
	}

	m.mux.Lock()
	if m.pending[key] == op {
		delete(m.pending, key)
	}
	if p != nil {
		m.viewed[key] = p
	}
	m.mux.Unlock()

	op.resolve(p, err)

	switch {
	case err != nil:
		m.opts.Metrics.viewed(viewError)
		m.log.Warn("profile view failed", "key", key, "error", err)
	case p == nil:
		m.opts.Metrics.viewed(viewAbsent)
		m.log.Info("profile not found", "key", key)
	default:
		m.opts.Metrics.viewed(viewStore)
		m.logCompleted("profile viewed", key, start)
	}
}

// Unload persists and releases the session of a loaded profile and drops it from the cache.
// It returns false when key is not loaded; cached views and in-flight calls are left alone.
//
// A payload the Validator rejects is not written: Unload returns false with a ValidationFailed
// error and the profile stays loaded, so the caller can fix it and retry. The profile is dropped
// even if the store fails to release it, in which case the error is returned with true.
func (m *Manager[T, M]) Unload(ctx context.Context, key string) (bool, error) {
	return m.unload(ctx, key, false)
}

// unload does Unload. With discardInvalid, a profile whose payload can't be written is dropped
// anyway and its session given up without persisting, when the store can do that.
func (m *Manager[T, M]) unload(ctx context.Context, key string, discardInvalid bool) (bool, error) {
	p, ok := m.lockLoaded(key)
	if !ok {
		m.log.Warn("could not unload profile, it is not loaded", "key", key)
		return false, nil
	}
	defer p.io.Unlock()

	_, err := m.encodeValid(p)
	if err != nil {
		d, canDiscard := m.store.(SessionDiscarder[M])
		if !discardInvalid || !canDiscard {
			return false, err
		}
		m.forget(p)
		derr := d.Discard(ctx, p.doc)
		p.syncMetadata()
		m.log.Warn("profile unloaded, changes discarded", "key", key, "error", err)
		if derr != nil {
			return true, errors.Join(err, fmt.Errorf("discard of profile %q failed: %w", key, derr))
		}
		return true, err
	}

	m.forget(p)
	err = m.store.Release(ctx, p.doc)
	p.syncMetadata()
	if err != nil {
		m.log.Warn("profile unloaded, release failed", "key", key, "error", err)
		return true, fmt.Errorf("release of profile %q failed: %w", key, err)
	}
	m.log.Info("profile unloaded", "key", key)
	return true, nil
}

// Save persists the current data of a loaded profile. It returns false, writing nothing, when key
// is not loaded or the payload fails validation. A store write failure is returned with true.
func (m *Manager[T, M]) Save(ctx context.Context, key string) (bool, error) {
	p, ok := m.lockLoaded(key)
	if !ok {
		return false, nil
	}
	defer p.io.Unlock()
	return m.save(ctx, p)
}

// save persists p. Callers hold p.io and checked p is still loaded.
func (m *Manager[T, M]) save(ctx context.Context, p *Profile[T, M]) (bool, error) {
	if _, err := m.encodeValid(p); err != nil {
		return false, err
	}
	err := m.store.Persist(ctx, p.doc)
	m.opts.Metrics.saved(err)
	if err != nil {
		m.log.Warn("profile save failed", "key", p.Key, "error", err)
		if CodeOf(err) == SessionLost {
			m.dropLost(p)
		}
		return true, fmt.Errorf("save of profile %q failed: %w", p.Key, err)
	}
	p.syncMetadata()
	m.log.Debug("profile saved", "key", p.Key)
	return true, nil
}

// Delete removes the stored record of a loaded profile, gives up its session and drops it, and a
// cached view of it, from the manager. It returns false when key is not loaded. The store must
// implement RecordDeleter.
func (m *Manager[T, M]) Delete(ctx context.Context, key string) (bool, error) {
	d, ok := m.store.(RecordDeleter[M])
	if !ok {
		return false, fmt.Errorf("record store of %s can't delete profiles", m.storeName)
	}
	p, ok := m.lockLoaded(key)
	if !ok {
		return false, nil
	}
	defer p.io.Unlock()

	err := d.Delete(ctx, p.doc)
	if CodeOf(err) == SessionLost {
		m.dropLost(p)
	}
	if err != nil {
		return true, fmt.Errorf("delete of profile %q failed: %w", key, err)
	}
	m.forget(p)
	m.mux.Lock()
	delete(m.viewed, key)
	m.mux.Unlock()
	p.syncMetadata()
	m.log.Info("profile deleted", "key", key)
	return true, nil
}

// SessionStatus describes the session of one key.
type SessionStatus struct {
	// Loaded reports whether this manager holds the profile loaded.
	Loaded bool `json:"loaded"`
	// Owned reports whether the session of the loaded profile is still held. False when not loaded.
	Owned bool `json:"owned"`
	// Locked reports whether any process, this one included, holds the key's session.
	Locked bool `json:"locked"`
}

// SessionStatus reports on the session of key without acquiring or extending it. The store must
// implement SessionInspector.
func (m *Manager[T, M]) SessionStatus(ctx context.Context, key string) (SessionStatus, error) {
	var st SessionStatus
	si, ok := m.store.(SessionInspector[M])
	if !ok {
		return st, fmt.Errorf("record store of %s can't inspect sessions", m.storeName)
	}
	if p, ok := m.lockLoaded(key); ok {
		st.Loaded = true
		owned, err := si.Owns(ctx, p.doc)
		p.io.Unlock()
		if err != nil {
			return st, fmt.Errorf("session check of profile %q failed: %w", key, err)
		}
		st.Owned = owned
	}
	locked, err := si.IsLocked(ctx, m.storeName, key)
	if err != nil {
		return st, fmt.Errorf("lock check of profile %q failed: %w", key, err)
	}
	st.Locked = locked
	return st, nil
}

// lockLoaded returns the loaded profile of key with its io mutex held. A profile unloaded while
// the caller waited for the mutex is not returned.
func (m *Manager[T, M]) lockLoaded(key string) (*Profile[T, M], bool) {
	m.mux.Lock()
	p, ok := m.loaded[key]
	m.mux.Unlock()
	if !ok {
		return nil, false
	}
	p.io.Lock()
	if !m.isLoaded(p) {
		p.io.Unlock()
		return nil, false
	}
	return p, true
}

func (m *Manager[T, M]) isLoaded(p *Profile[T, M]) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.loaded[p.Key] == p
}

// forget drops p from the loaded cache.
func (m *Manager[T, M]) forget(p *Profile[T, M]) {
	m.mux.Lock()
	if m.loaded[p.Key] == p {
		delete(m.loaded, p.Key)
	}
	loadedCount := len(m.loaded)
	m.mux.Unlock()
	m.opts.Metrics.unloaded(loadedCount)
}

// encodeValid encodes p's data into its document and runs the Validator over the result.
func (m *Manager[T, M]) encodeValid(p *Profile[T, M]) ([]byte, error) {
	payload, err := p.encode(m.opts.Marshaler)
	if err != nil {
		return nil, Error{Code: PayloadCorrupted, Err: err, UserData: p.Key}
	}
	if m.opts.Validator != nil {
		if err := m.opts.Validator.Validate(payload); err != nil {
			m.log.Warn("profile not written, validation failed", "key", p.Key, "error", err)
			return nil, Error{Code: ValidationFailed, Err: err, UserData: p.Key}
		}
	}
	return payload, nil
}

// Loaded returns the loaded profile of key, if any. It never contacts the store.
func (m *Manager[T, M]) Loaded(key string) (*Profile[T, M], bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	p, ok := m.loaded[key]
	return p, ok
}

// Keys returns the sorted keys of the loaded profiles.
func (m *Manager[T, M]) Keys() []string {
	m.mux.Lock()
	keys := make([]string, 0, len(m.loaded))
	for k := range m.loaded {
		keys = append(keys, k)
	}
	m.mux.Unlock()
	sort.Strings(keys)
	return keys
}

// ForgetView drops the cached view of key so the next View reads the store again.
func (m *Manager[T, M]) ForgetView(key string) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	_, ok := m.viewed[key]
	delete(m.viewed, key)
	return ok
}

// SaveAll saves every loaded profile and returns the first error encountered.
func (m *Manager[T, M]) SaveAll(ctx context.Context) error {
	return m.forEachLoaded(func(p *Profile[T, M]) error {
		p.io.Lock()
		defer p.io.Unlock()
		// Unloaded since the snapshot.
		if !m.isLoaded(p) {
			return nil
		}
		_, err := m.save(ctx, p)
		return err
	})
}

// UnloadAll unloads every loaded profile and returns the first error encountered. Unlike
// Unload, a profile whose payload fails validation is dropped with its changes discarded when
// the store implements SessionDiscarder, so no session outlives the call.
func (m *Manager[T, M]) UnloadAll(ctx context.Context) error {
	return m.forEachLoaded(func(p *Profile[T, M]) error {
		_, err := m.unload(ctx, p.Key, true)
		return err
	})
}

// Refresh extends the sessions of all loaded profiles when the store supports it. A profile
// whose session turns out lost is dropped from the cache and reported to OnSessionLost.
func (m *Manager[T, M]) Refresh(ctx context.Context) error {
	r, ok := m.store.(SessionRefresher[M])
	if !ok {
		return nil
	}
	return m.forEachLoaded(func(p *Profile[T, M]) error {
		p.io.Lock()
		if !m.isLoaded(p) {
			p.io.Unlock()
			return nil
		}
		owned, err := r.Refresh(ctx, p.doc)
		p.io.Unlock()
		if err != nil {
			return fmt.Errorf("refresh of profile %q failed: %w", p.Key, err)
		}
		if !owned {
			m.dropLost(p)
		}
		return nil
	})
}

// Run autosaves loaded profiles every interval, refreshing their sessions first, until ctx is done.
func (m *Manager[T, M]) Run(ctx context.Context, options AutosaveOptions) {
	interval := options.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.Refresh(ctx); err != nil {
				m.log.Warn("autosave session refresh failed", "error", err)
			}
			if err := m.SaveAll(ctx); err != nil {
				m.log.Warn("autosave failed", "error", err)
			}
		}
	}
}

// Close unloads every loaded profile. Operations issued afterwards fail with ErrManagerClosed.
func (m *Manager[T, M]) Close(ctx context.Context) error {
	m.mux.Lock()
	if m.closed {
		m.mux.Unlock()
		return nil
	}
	m.closed = true
	m.mux.Unlock()
	return m.UnloadAll(ctx)
}

func (m *Manager[T, M]) forEachLoaded(fn func(p *Profile[T, M]) error) error {
	m.mux.Lock()
	ps := make([]*Profile[T, M], 0, len(m.loaded))
	for _, p := range m.loaded {
		ps = append(ps, p)
	}
	m.mux.Unlock()

	var eg errgroup.Group
	eg.SetLimit(m.opts.MaxConcurrency)
	for _, p := range ps {
		eg.Go(func() error {
			return fn(p)
		})
	}
	return eg.Wait()
}

// dropLost removes p from the loaded cache after its session was found lost.
func (m *Manager[T, M]) dropLost(p *Profile[T, M]) {
	m.mux.Lock()
	cur, ok := m.loaded[p.Key]
	if ok && cur == p {
		delete(m.loaded, p.Key)
	}
	loadedCount := len(m.loaded)
	m.mux.Unlock()
	if !ok || cur != p {
		return
	}

	m.opts.Metrics.lost(loadedCount)
	m.log.Warn("profile session lost, dropped from cache", "key", p.Key)
	if m.opts.OnSessionLost != nil {
		m.opts.OnSessionLost(p.Key)
	}
}

// decode reconciles the document's payload with the template and unmarshals it into a Profile.
// The reconciled payload replaces the document's.
func (m *Manager[T, M]) decode(key string, doc *Document[M], viewOnly bool) (*Profile[T, M], error) {
	payload, err := m.opts.Reconciler(doc.Payload, m.template)
	if err != nil {
		return nil, Error{Code: PayloadCorrupted, Err: err, UserData: key}
	}
	var data T
	if err := m.opts.Marshaler.Unmarshal(payload, &data); err != nil {
		return nil, Error{Code: PayloadCorrupted, Err: err, UserData: key}
	}
	doc.Payload = payload
	return &Profile[T, M]{
		Key:      key,
		Data:     data,
		Metadata: doc.Metadata,
		viewOnly: viewOnly,
		session:  doc.Session,
		doc:      doc,
	}, nil
}

func (m *Manager[T, M]) logCompleted(msg string, key string, start time.Time) {
	elapsed := Now().Sub(start)
	seconds := math.Round(elapsed.Seconds()*100) / 100
	if elapsed > m.opts.SlowOperation {
		m.log.Warn(msg, "key", key, "elapsed", seconds)
		return
	}
	m.log.Info(msg, "key", key, "elapsed", seconds)
}
