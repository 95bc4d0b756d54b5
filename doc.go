// Package profiles manages exclusive, crash-safe sessions over per-key records (player save data)
// kept in an external record store.
//
// A Manager is bound to one store name. Load acquires the record's cross-process session through
// the store, retrying with exponential backoff while another process holds it, and caches the
// result until Unload. View takes a read-only snapshot without locking and coalesces concurrent
// callers for the same key into a single store call. Save persists the current payload of a loaded
// profile. Payloads are reconciled against a template so fields added to the template show up in
// old records.
//
// The record store itself is an interface (RecordStore). Package lockstore builds one out of a
// Locker (inmemory for standalone processes, redis for clustered deployments) and a BlobStore
// (inmemory, fs, redis, cassandra or aws_s3).
package profiles

// Timeout model
//
// Load retries forever while the store reports failures. The caller's context is the only bound:
// once it is done, Load returns the context error and nothing is cached. Session locks carry a TTL
// (lockstore.Options.LockTTL) so a crashed process releases its profiles when the TTL lapses;
// Manager.Refresh extends the TTL of sessions still held.
