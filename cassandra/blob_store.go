package cassandra

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/profiles"
)

type blobStore struct{}

// NewBlobStore returns a BlobStore over the global connection opened with OpenConnection.
func NewBlobStore() profiles.BlobStore {
	return &blobStore{}
}

func query(ctx context.Context, c *Connection, consistency gocql.Consistency, stmt string, values ...any) *gocql.Query {
	qry := c.Session.Query(stmt, values...).WithContext(ctx)
	if consistency > gocql.Any {
		qry.Consistency(consistency)
	}
	return qry
}

func (b *blobStore) Get(ctx context.Context, storeName string, key string) ([]byte, bool, error) {
	c, err := getConnection()
	if err != nil {
		return nil, false, err
	}
	stmt := fmt.Sprintf("SELECT payload FROM %s.profiles WHERE store = ? AND key = ?;", c.Keyspace)
	var ba []byte
	err = query(ctx, c, c.ConsistencyBook.BlobStoreGet, stmt, storeName, key).Scan(&ba)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return ba, true, nil
}

// Put upserts the blob; a Cassandra INSERT overwrites an existing row.
func (b *blobStore) Put(ctx context.Context, storeName string, key string, blob []byte) error {
	c, err := getConnection()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s.profiles (store, key, payload) VALUES(?,?,?);", c.Keyspace)
	return query(ctx, c, c.ConsistencyBook.BlobStorePut, stmt, storeName, key, blob).Exec()
}

func (b *blobStore) Remove(ctx context.Context, storeName string, key string) error {
	c, err := getConnection()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s.profiles WHERE store = ? AND key = ?;", c.Keyspace)
	return query(ctx, c, c.ConsistencyBook.BlobStoreRemove, stmt, storeName, key).Exec()
}
