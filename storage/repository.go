// Package storage provides the durable slot abstraction that backs browser sessions.
//
// A slot is a small opaque value addressed by (namespace, key). Each browser
// gets its own namespace, so the keys inside it can mirror the fixed names the
// web client uses for its local storage.
package storage

import "errors"

// ErrNotFound is returned when a slot does not exist.
var ErrNotFound = errors.New("slot not found")

// BatchTx provides Put and Delete within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Put(key string, value []byte) error
	Delete(key string) error
}

// Repository defines the interface for durable slot storage.
//
// Delete is idempotent: removing a missing slot is not an error.
type Repository interface {
	Get(namespace string, key string) ([]byte, error)
	Put(namespace string, key string, value []byte) error
	Delete(namespace string, key string) error
	List(namespace string) ([]string, error)
	Batch(namespace string, fn func(tx BatchTx) error) error
}
