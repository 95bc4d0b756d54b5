// Package database wires a Locker and a BlobStore into a lockstore.Store and opens profile
// managers over it.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "log/slog"

	"github.com/sharedcode/profiles"
	"github.com/sharedcode/profiles/aws_s3"
	"github.com/sharedcode/profiles/cassandra"
	"github.com/sharedcode/profiles/fs"
	"github.com/sharedcode/profiles/inmemory"
	"github.com/sharedcode/profiles/lockstore"
	"github.com/sharedcode/profiles/redis"
)

// DatabaseType defines the deployment mode of the database.
type DatabaseType int

const (
	// Standalone mode locks in process memory.
	// Suitable for a single service instance.
	Standalone DatabaseType = iota
	// Clustered mode locks in Redis, excluding every instance connected to it.
	Clustered
)

// ParseDatabaseType parses "standalone" or "clustered".
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "", "standalone":
		return Standalone, nil
	case "clustered":
		return Clustered, nil
	}
	return Standalone, fmt.Errorf("unknown database type %q", s)
}

// BlobBackend selects where profile envelopes are kept.
type BlobBackend int

const (
	// DefaultBackend is FileSystem when StoragePath is set, else Memory in Standalone mode and Redis in Clustered mode.
	DefaultBackend BlobBackend = iota
	Memory
	FileSystem
	RedisBackend
	Cassandra
	S3
)

// ParseBlobBackend parses "memory", "fs", "redis", "cassandra" or "s3".
func ParseBlobBackend(s string) (BlobBackend, error) {
	switch strings.ToLower(s) {
	case "":
		return DefaultBackend, nil
	case "memory":
		return Memory, nil
	case "fs":
		return FileSystem, nil
	case "redis":
		return RedisBackend, nil
	case "cassandra":
		return Cassandra, nil
	case "s3":
		return S3, nil
	}
	return DefaultBackend, fmt.Errorf("unknown blob backend %q", s)
}

// DatabaseOptions configures NewDatabase.
type DatabaseOptions struct {
	Type DatabaseType
	Blob BlobBackend
	// StoragePath is the base folder of the FileSystem backend.
	StoragePath string
	// Redis addresses the server of Clustered mode and of the Redis backend. RedisURL, when set, takes precedence.
	Redis    redis.Options
	RedisURL string
	// Cassandra configures the Cassandra backend.
	Cassandra cassandra.Config
	// S3 and S3BucketPrefix configure the S3 backend.
	S3             aws_s3.Config
	S3BucketPrefix string
	// LockTTL is the session duration of the store. Defaults to lockstore.DefaultLockTTL.
	LockTTL time.Duration
}

// Database holds the record store shared by the managers opened on it.
type Database struct {
	options DatabaseOptions
	locker  profiles.Locker
	blobs   profiles.BlobStore
	store   *lockstore.Store
	closers []func() error
}

// NewDatabase connects the locker and the blob backend named by options.
func NewDatabase(ctx context.Context, options DatabaseOptions) (*Database, error) {
	db := &Database{options: options}
	if err := db.open(ctx); err != nil {
		db.Close()
		return nil, err
	}
	db.store = lockstore.New(db.locker, db.blobs, lockstore.Options{LockTTL: options.LockTTL})
	log.Info("profiles database opened", "type", options.Type, "blob", db.backend())
	return db, nil
}

func (db *Database) backend() BlobBackend {
	if db.options.Blob != DefaultBackend {
		return db.options.Blob
	}
	switch {
	case db.options.StoragePath != "":
		return FileSystem
	case db.options.Type == Clustered:
		return RedisBackend
	}
	return Memory
}

func (db *Database) open(ctx context.Context) error {
	backend := db.backend()
	if db.options.Type == Clustered || backend == RedisBackend {
		if err := db.openRedis(ctx); err != nil {
			return err
		}
	}

	lt := profiles.InMemory
	if db.options.Type == Clustered {
		lt = profiles.Redis
	}
	db.locker = profiles.NewLockerByType(lt)
	if db.locker == nil {
		return fmt.Errorf("no %s locker registered", lt)
	}

	switch backend {
	case Memory:
		db.blobs = inmemory.NewBlobStore()
	case FileSystem:
		if db.options.StoragePath == "" {
			return errors.New("fs blob backend needs a storage path")
		}
		db.blobs = fs.NewBlobStore(db.options.StoragePath, nil)
	case RedisBackend:
		db.blobs = redis.NewBlobStore(redis.NewClient())
	case Cassandra:
		if _, err := cassandra.OpenConnection(db.options.Cassandra); err != nil {
			return fmt.Errorf("cassandra connection failed: %w", err)
		}
		db.closers = append(db.closers, func() error {
			cassandra.CloseConnection()
			return nil
		})
		db.blobs = cassandra.NewBlobStore()
	case S3:
		bs, err := aws_s3.NewBlobStore(aws_s3.Connect(db.options.S3), db.options.S3BucketPrefix, db.options.S3.Region)
		if err != nil {
			return err
		}
		db.blobs = bs
	default:
		return fmt.Errorf("unknown blob backend %d", backend)
	}
	return nil
}

func (db *Database) openRedis(ctx context.Context) error {
	var err error
	if db.options.RedisURL != "" {
		_, err = redis.OpenConnectionWithURL(db.options.RedisURL)
	} else {
		o := db.options.Redis
		if o.Address == "" {
			o = redis.DefaultOptions()
		}
		_, err = redis.OpenConnection(o)
	}
	if err != nil {
		return err
	}
	db.closers = append(db.closers, redis.CloseConnection)
	if err := redis.NewClient().Ping(ctx); err != nil {
		return err
	}
	return nil
}

// Store returns the record store managers of this database share.
func (db *Database) Store() *lockstore.Store {
	return db.store
}

// Close releases the connections NewDatabase opened. Close managers first.
func (db *Database) Close() error {
	var errs []error
	for i := len(db.closers) - 1; i >= 0; i-- {
		if err := db.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	db.closers = nil
	return errors.Join(errs...)
}

// OpenManager returns a manager of the store named in options over db's record store.
func OpenManager[T any](db *Database, options profiles.ManagerOptions[T]) (*profiles.Manager[T, lockstore.Metadata], error) {
	return profiles.NewManager[T, lockstore.Metadata](db.store, options)
}

func (t DatabaseType) String() string {
	if t == Clustered {
		return "clustered"
	}
	return "standalone"
}

func (b BlobBackend) String() string {
	switch b {
	case Memory:
		return "memory"
	case FileSystem:
		return "fs"
	case RedisBackend:
		return "redis"
	case Cassandra:
		return "cassandra"
	case S3:
		return "s3"
	}
	return "default"
}
