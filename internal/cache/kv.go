// Package cache persists ledger state in a local key-value store so the
// ledger works fully offline and shows instantly on restart.
package cache

import "errors"

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("cache key not found")

// KV is the local persistent cache collaborator: get/set/remove of opaque
// string blobs, eventually durable across process restarts.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}
