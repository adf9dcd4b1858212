package baseline

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"topo/internal/artifact"
)

// keyFile holds the hex-encoded key secret digests are computed with.
const keyFile = "secret.key"

// SecretKey returns the store's secret digest key, creating it on first
// use. Artifacts digested under one store's key compare only against
// artifacts of the same store.
func (s *Store) SecretKey() ([]byte, error) {
	path := filepath.Join(s.Dir, keyFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(key) != artifact.KeySize {
			return nil, fmt.Errorf("invalid secret key %s", path)
		}
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	key := make([]byte, artifact.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		// Another process created it first.
		return s.SecretKey()
	}
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return nil, err
	}
	return key, f.Close()
}
