// Package cassandra provides a BlobStore keeping profile envelopes in a Cassandra table.
package cassandra

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "log/slog"

	"github.com/gocql/gocql"
)

// DefaultKeyspace is the keyspace used when Config.Keyspace is empty.
const DefaultKeyspace = "profiles"

// Config contains configuration for connecting to a Cassandra cluster.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	// Keyspace holds the profiles table.
	Keyspace string
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator
	// ReplicationClause defines the keyspace replication (e.g., SimpleStrategy).
	ReplicationClause string

	// ConsistencyBook allows overriding per-API consistency levels.
	ConsistencyBook ConsistencyBook
}

// ConsistencyBook enumerates per-API consistency levels. Levels left at gocql.Any use Config.Consistency.
type ConsistencyBook struct {
	BlobStoreGet    gocql.Consistency
	BlobStorePut    gocql.Consistency
	BlobStoreRemove gocql.Consistency
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config
}

var connection *Connection
var mux sync.Mutex

var errNotConnected = errors.New("cassandra connection is closed, call OpenConnection(config) to open it")

// IsConnectionInstantiated reports whether a global Connection has been created.
func IsConnectionInstantiated() bool {
	mux.Lock()
	defer mux.Unlock()
	return connection != nil
}

// OpenConnection returns the existing global Connection or opens a new one using config.
// The keyspace and the profiles table are created if missing.
func OpenConnection(config Config) (*Connection, error) {
	mux.Lock()
	defer mux.Unlock()
	if connection != nil {
		return connection, nil
	}

	config = withDefaults(config)
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		// Not needed past session creation.
		config.Authenticator = nil
	}

	log.Info("opening Cassandra connection", "hosts", config.ClusterHosts, "keyspace", config.Keyspace)
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema(config) {
		if err := s.Query(stmt).Exec(); err != nil {
			s.Close()
			return nil, fmt.Errorf("cassandra schema setup failed: %w", err)
		}
	}

	connection = &Connection{
		Session: s,
		Config:  config,
	}
	return connection, nil
}

// CloseConnection closes and clears the global connection, if it exists.
func CloseConnection() {
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return
	}
	connection.Session.Close()
	connection = nil
}

func getConnection() (*Connection, error) {
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return nil, errNotConnected
	}
	return connection, nil
}

func withDefaults(config Config) Config {
	if config.Keyspace == "" {
		config.Keyspace = DefaultKeyspace
	}
	if config.Consistency == gocql.Any {
		// Defaults to LocalQuorum consistency. You should set it to an appropriate level.
		config.Consistency = gocql.LocalQuorum
	}
	if config.ReplicationClause == "" {
		// Specify an appropriate replication feature.
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	return config
}

func schema(config Config) []string {
	return []string{
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;", config.Keyspace, config.ReplicationClause),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.profiles (store text, key text, payload blob, PRIMARY KEY(store, key));", config.Keyspace),
	}
}
