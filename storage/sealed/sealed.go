// Package sealed wraps a storage.Repository so that every value is encrypted
// with AES-256-GCM before it reaches the backing store. Refresh tokens are
// long-lived bearer credentials and should not sit in a database file in the
// clear.
//
// Each value is bound to its namespace and key through the GCM additional
// data, so a ciphertext copied to another slot fails to open.
package sealed

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/jmcleod/campusgate/storage"
)

// hkdfInfo separates the slot-encryption key from any other use of the
// configured master key.
const hkdfInfo = "campusgate sealed slots v1"

// KeySize is the required key length in bytes.
const KeySize = 32

// ErrOpen is returned when a stored value cannot be decrypted: wrong key,
// tampering, or a value moved between slots.
var ErrOpen = errors.New("sealed: cannot open value")

// Repository encrypts values on the way into next and decrypts them on the
// way out. Keys and namespaces are stored as-is.
type Repository struct {
	next storage.Repository
	aead cipher.AEAD
}

// New wraps next. The AES key is derived from the 32-byte master key with
// HKDF-SHA256.
func New(next storage.Repository, master []byte) (*Repository, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("sealed: invalid key size: got %d, want %d", len(master), KeySize)
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("sealed: deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating GCM: %w", err)
	}
	return &Repository{next: next, aead: aead}, nil
}

// ParseKey decodes a standard base64 key as accepted by New.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("sealed: key is not base64: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealed: invalid key size: got %d, want %d", len(key), KeySize)
	}
	return key, nil
}

func aad(namespace, key string) []byte {
	return []byte(namespace + "\x00" + key)
}

func (r *Repository) seal(namespace, key string, plain []byte) ([]byte, error) {
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plain)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealed: generating nonce: %w", err)
	}
	return r.aead.Seal(nonce, nonce, plain, aad(namespace, key)), nil
}

func (r *Repository) open(namespace, key string, sealed []byte) ([]byte, error) {
	n := r.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrOpen
	}
	plain, err := r.aead.Open(nil, sealed[:n], sealed[n:], aad(namespace, key))
	if err != nil {
		return nil, ErrOpen
	}
	return plain, nil
}

func (r *Repository) Get(namespace, key string) ([]byte, error) {
	sealed, err := r.next.Get(namespace, key)
	if err != nil {
		return nil, err
	}
	return r.open(namespace, key, sealed)
}

func (r *Repository) Put(namespace, key string, value []byte) error {
	sealed, err := r.seal(namespace, key, value)
	if err != nil {
		return err
	}
	return r.next.Put(namespace, key, sealed)
}

func (r *Repository) Delete(namespace, key string) error {
	return r.next.Delete(namespace, key)
}

func (r *Repository) List(namespace string) ([]string, error) {
	return r.next.List(namespace)
}

func (r *Repository) Batch(namespace string, fn func(tx storage.BatchTx) error) error {
	return r.next.Batch(namespace, func(tx storage.BatchTx) error {
		return fn(&sealedTx{repo: r, namespace: namespace, next: tx})
	})
}

type sealedTx struct {
	repo      *Repository
	namespace string
	next      storage.BatchTx
}

func (tx *sealedTx) Put(key string, value []byte) error {
	sealed, err := tx.repo.seal(tx.namespace, key, value)
	if err != nil {
		return err
	}
	return tx.next.Put(key, sealed)
}

func (tx *sealedTx) Delete(key string) error {
	return tx.next.Delete(key)
}
