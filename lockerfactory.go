package profiles

import "sync"

// LockerType names a registered Locker implementation.
type LockerType int

const (
	// InMemory lockers coordinate goroutines of a single process.
	InMemory LockerType = iota
	// Redis lockers coordinate every process connected to the same Redis.
	Redis
)

func (t LockerType) String() string {
	switch t {
	case InMemory:
		return "inmemory"
	case Redis:
		return "redis"
	}
	return "unknown"
}

// LockerFactory creates a Locker client.
type LockerFactory func() Locker

var (
	lockerRegistry = make(map[LockerType]LockerFactory)
	registryMux    sync.RWMutex
)

// RegisterLocker registers a locker factory for a given type. Adapter packages call it from init.
func RegisterLocker(t LockerType, f LockerFactory) {
	registryMux.Lock()
	defer registryMux.Unlock()
	lockerRegistry[t] = f
}

// NewLockerByType creates a Locker using the factory registered for t.
// It returns nil if no factory is registered, e.g. the adapter package was not imported.
func NewLockerByType(t LockerType) Locker {
	registryMux.RLock()
	f, ok := lockerRegistry[t]
	registryMux.RUnlock()
	if !ok {
		return nil
	}
	return f()
}
