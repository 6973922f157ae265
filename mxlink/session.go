package mxlink

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/alexjbarnes/mxlink/blobcodec"
	"github.com/alexjbarnes/mxlink/matrix"
)

const (
	sessionDirPerm  = fs.FileMode(0o700)
	sessionFilePerm = fs.FileMode(0o600)
)

// clientSession is what is needed to rebuild the protocol client.
type clientSession struct {
	Homeserver           string `json:"homeserver"`
	LocalStorePath       string `json:"local_store_path"`
	LocalStorePassphrase string `json:"local_store_passphrase"`
}

// fullSession is the reconnection record kept in the session file.
type fullSession struct {
	ClientSession clientSession  `json:"client_session"`
	UserSession   matrix.Session `json:"user_session"`
	SyncToken     string         `json:"sync_token,omitempty"`
}

// sessionStore reads and writes the session file. The whole JSON
// document is passed through the codec, and every write replaces the file
// atomically.
type sessionStore struct {
	path  string
	codec *blobcodec.Codec

	mu sync.Mutex
}

func newSessionStore(path string, codec *blobcodec.Codec) *sessionStore {
	return &sessionStore{path: path, codec: codec}
}

func (s *sessionStore) exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, fmt.Errorf("%w: checking session file: %w", ErrSessionPersistence, err)
}

func (s *sessionStore) load() (*fullSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadLocked()
}

func (s *sessionStore) loadLocked() (*fullSession, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading session file: %w", ErrSessionPersistence, err)
	}

	plain, err := s.codec.Decrypt(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decrypting session file: %w", ErrSessionPersistence, err)
	}

	var sess fullSession
	if err := json.Unmarshal([]byte(plain), &sess); err != nil {
		return nil, fmt.Errorf("%w: decoding session file: %w", ErrSessionPersistence, err)
	}

	return &sess, nil
}

func (s *sessionStore) save(sess *fullSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(sess)
}

func (s *sessionStore) saveLocked(sess *fullSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: encoding session: %w", ErrSessionPersistence, err)
	}

	sealed, err := s.codec.Encrypt(string(data))
	if err != nil {
		return fmt.Errorf("%w: encrypting session: %w", ErrSessionPersistence, err)
	}

	if err := writeFileAtomic(s.path, []byte(sealed)); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionPersistence, err)
	}

	return nil
}

// saveSyncToken rewrites the record with a new checkpoint.
func (s *sessionStore) saveSyncToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.loadLocked()
	if err != nil {
		return err
	}

	sess.SyncToken = token

	return s.saveLocked(sess)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, sessionDirPerm); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(sessionFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting session file mode: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing session file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}

	return nil
}
