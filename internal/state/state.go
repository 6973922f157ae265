// Package state holds the protocol client's on-disk device state: the
// bound identity, room memberships and the cached recovery key. Values are
// sealed under a key derived from the local-store passphrase.
package state

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/mxlink/internal/errors"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

// FileName is the database file inside the local-store directory. Its
// presence marks residual state.
const FileName = "mxlink-state.db"

const (
	// stateDirPerm is the permission mode for the local-store directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second

	saltLen = 16

	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = chacha20poly1305.KeySize
)

var (
	metaBucket     = []byte("meta")
	roomsBucket    = []byte("rooms")
	recoveryBucket = []byte("recovery")

	saltKey        = []byte("salt")
	verifierKey    = []byte("verifier")
	identityKey    = []byte("identity")
	recoveryKeyKey = []byte("key")

	verifierPlain = []byte("mxlink local store v1")
)

// Identity is the user and device a store is bound to.
type Identity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// RecoveryKey is a secret-storage key cached after a successful recovery.
type RecoveryKey struct {
	KeyID string `json:"key_id"`
	Key   []byte `json:"key"`
}

// State wraps a bbolt database whose values are sealed with the
// local-store passphrase.
type State struct {
	db   *bolt.DB
	aead cipher.AEAD
}

// Open opens or creates the store in dir. Opening an existing store with
// a different passphrase fails with ErrWrongStorePassphrase.
func Open(dir, passphrase string) (*State, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("local store passphrase is empty")
	}

	if err := os.MkdirAll(dir, stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, FileName), stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	s := &State{db: db}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}

		if _, err := tx.CreateBucketIfNotExists(roomsBucket); err != nil {
			return err
		}

		if _, err := tx.CreateBucketIfNotExists(recoveryBucket); err != nil {
			return err
		}

		return s.unlock(meta, passphrase)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return s, nil
}

// unlock derives the value key. A new store gets a salt and a verifier;
// an existing one must open its verifier.
func (s *State) unlock(meta *bolt.Bucket, passphrase string) error {
	salt := meta.Get(saltKey)
	fresh := salt == nil

	if fresh {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("generating salt: %w", err)
		}
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}

	s.aead = aead

	if fresh {
		sealed, err := s.seal(verifierPlain)
		if err != nil {
			return err
		}

		if err := meta.Put(saltKey, salt); err != nil {
			return err
		}

		return meta.Put(verifierKey, sealed)
	}

	verifier := meta.Get(verifierKey)
	if verifier == nil {
		return apperrors.ErrStoreCorrupt
	}

	if _, err := s.open(verifier); err != nil {
		return apperrors.ErrWrongStorePassphrase
	}

	return nil
}

// deriveKey runs scrypt over the NFKC-normalized passphrase.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	passphrase = norm.NFKC.String(passphrase)

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	return key, nil
}

func (s *State) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *State) open(sealed []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return nil, apperrors.ErrStoreCorrupt
	}

	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrStoreCorrupt, err)
	}

	return plain, nil
}

func (s *State) putJSON(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	sealed, err := s.seal(data)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, sealed)
	})
}

// getJSON decodes the value at key into v, reporting whether it existed.
func (s *State) getJSON(bucket, key []byte, v any) (bool, error) {
	var sealed []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucket).Get(key); raw != nil {
			sealed = append([]byte(nil), raw...)
		}

		return nil
	})

	if sealed == nil {
		return false, nil
	}

	plain, err := s.open(sealed)
	if err != nil {
		return false, err
	}

	return true, json.Unmarshal(plain, v)
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Identity returns the bound identity, or nil if the store is unbound.
func (s *State) Identity() (*Identity, error) {
	var id Identity

	ok, err := s.getJSON(metaBucket, identityKey, &id)
	if err != nil || !ok {
		return nil, err
	}

	return &id, nil
}

// BindIdentity records the user and device the store belongs to. A store
// already bound to a different device refuses the new binding.
func (s *State) BindIdentity(id Identity) error {
	existing, err := s.Identity()
	if err != nil {
		return err
	}

	if existing != nil && (existing.UserID != id.UserID || existing.DeviceID != id.DeviceID) {
		return fmt.Errorf("%w: bound to %s/%s", apperrors.ErrStoreCorrupt, existing.UserID, existing.DeviceID)
	}

	return s.putJSON(metaBucket, identityKey, id)
}

// SetMembership records the last known membership for a room.
func (s *State) SetMembership(roomID, membership string) error {
	return s.putJSON(roomsBucket, []byte(roomID), membership)
}

// Membership returns the last known membership for a room, or "".
func (s *State) Membership(roomID string) (string, error) {
	var m string

	_, err := s.getJSON(roomsBucket, []byte(roomID), &m)

	return m, err
}

// Rooms returns all rooms with a recorded membership.
func (s *State) Rooms() (map[string]string, error) {
	sealed := make(map[string][]byte)

	_ = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(roomsBucket).ForEach(func(k, v []byte) error {
			sealed[string(k)] = append([]byte(nil), v...)
			return nil
		})
	})

	result := make(map[string]string, len(sealed))

	for room, v := range sealed {
		plain, err := s.open(v)
		if err != nil {
			return nil, err
		}

		var m string
		if err := json.Unmarshal(plain, &m); err != nil {
			return nil, err
		}

		result[room] = m
	}

	return result, nil
}

// SetRecoveryKey caches the unlocked secret-storage key.
func (s *State) SetRecoveryKey(rk RecoveryKey) error {
	return s.putJSON(recoveryBucket, recoveryKeyKey, rk)
}

// RecoveryKey returns the cached secret-storage key, or nil.
func (s *State) RecoveryKey() (*RecoveryKey, error) {
	var rk RecoveryKey

	ok, err := s.getJSON(recoveryBucket, recoveryKeyKey, &rk)
	if err != nil || !ok {
		return nil, err
	}

	return &rk, nil
}

// residualSuffixes match files this package may delete when purging.
var residualSuffixes = []string{".db", ".db.lock"}

func isResidualName(name string) bool {
	for _, suffix := range residualSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}

// HasResidualState reports whether dir holds a store file left behind
// without a session record.
func HasResidualState(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, FileName))
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, fmt.Errorf("checking residual state: %w", err)
}

// PurgeResidualState deletes the regular files in dir that this package
// recognizes as its own. Directories and other files are left alone.
func PurgeResidualState(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("listing local store: %w", err)
	}

	var removed []string

	for _, e := range entries {
		if !e.Type().IsRegular() || !isResidualName(e.Name()) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("removing %s: %w", e.Name(), err)
		}

		removed = append(removed, path)
	}

	return removed, nil
}
