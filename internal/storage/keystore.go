// Package storage persists the local node identity using BoltDB so a peer
// keeps the same ID across restarts.
package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"gossip-chat/internal/crypto"
)

const identityBucket = "identity"

var (
	privateKeyName = []byte("private_key")
	sealedName     = []byte("sealed")
)

var (
	// ErrNoIdentity is returned by Load when nothing has been stored yet.
	ErrNoIdentity = errors.New("no identity stored")
	// ErrPassphraseRequired is returned when the stored key is sealed and the
	// store was opened without a passphrase.
	ErrPassphraseRequired = errors.New("identity is sealed, passphrase required")
)

// KeyStore keeps the node's private key in a bolt database, optionally
// sealed with a passphrase box.
type KeyStore struct {
	db  *bbolt.DB
	box *crypto.Box
}

func OpenKeyStore(path string, box *crypto.Box) (*KeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(identityBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &KeyStore{db: db, box: box}, nil
}

func (s *KeyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores key, replacing any previous identity.
func (s *KeyStore) Save(key p2pcrypto.PrivKey) error {
	raw, err := p2pcrypto.MarshalPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	data, err := s.box.Seal(raw)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}
	sealed := []byte{0}
	if s.box.Enabled() {
		sealed[0] = 1
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(identityBucket))
		if err := bucket.Put(sealedName, sealed); err != nil {
			return err
		}
		return bucket.Put(privateKeyName, data)
	})
}

// Load returns the stored key.
func (s *KeyStore) Load() (p2pcrypto.PrivKey, error) {
	var data []byte
	var sealed bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(identityBucket))
		v := bucket.Get(privateKeyName)
		if v == nil {
			return ErrNoIdentity
		}
		// Values are only valid inside the transaction.
		data = append([]byte(nil), v...)
		flag := bucket.Get(sealedName)
		sealed = len(flag) == 1 && flag[0] == 1
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sealed {
		if !s.box.Enabled() {
			return nil, ErrPassphraseRequired
		}
		if data, err = s.box.Open(data); err != nil {
			return nil, fmt.Errorf("open private key: %w", err)
		}
	}
	key, err := p2pcrypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal private key: %w", err)
	}
	// A passphrase given for a plaintext key seals it from now on.
	if !sealed && s.box.Enabled() {
		if err := s.Save(key); err != nil {
			return nil, fmt.Errorf("seal stored identity: %w", err)
		}
		log.Info().Msg("stored identity was unsealed, sealed it with the passphrase")
	}
	return key, nil
}

// LoadOrCreate returns the stored key, generating and saving a new Ed25519
// key on first use. created reports whether a new key was made.
func (s *KeyStore) LoadOrCreate() (key p2pcrypto.PrivKey, created bool, err error) {
	key, err = s.Load()
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, ErrNoIdentity) {
		return nil, false, err
	}
	key, _, err = p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("generate identity: %w", err)
	}
	if err := s.Save(key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}
