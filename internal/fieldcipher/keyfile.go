package fieldcipher

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// KeySize is the length of the master key in bytes.
const KeySize = 32

// ErrInvalidKeyFile is returned when an existing key file cannot be decoded
// into a master key. The file is never regenerated in that case: replacing it
// would make every stored record unreadable.
var ErrInvalidKeyFile = errors.New("invalid key file")

// LoadOrCreateKey returns the master key stored at path, creating the file
// with a fresh random key if it does not exist. created reports whether this
// call wrote the file.
//
// Creation is atomic across processes: the key is written to a private
// temporary file which is then hard-linked to path. Link fails if path already
// exists, in which case the key that won the race is read and returned.
func LoadOrCreateKey(path string) (key []byte, created bool, err error) {
	key, err = readKeyFile(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("create key directory: %w", err)
	}

	fresh := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, fresh); err != nil {
		return nil, false, fmt.Errorf("generate master key: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fieldkey-*")
	if err != nil {
		return nil, false, fmt.Errorf("create temporary key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return nil, false, fmt.Errorf("restrict temporary key file: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(fresh) + "\n"
	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		return nil, false, fmt.Errorf("write temporary key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, false, fmt.Errorf("sync temporary key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, false, fmt.Errorf("close temporary key file: %w", err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			ZeroBytes(fresh)
			key, err := readKeyFile(path)
			return key, false, err
		}
		return nil, false, fmt.Errorf("install key file: %w", err)
	}
	return fresh, true, nil
}

func readKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: not base64", ErrInvalidKeyFile, path)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %s: want %d bytes, got %d", ErrInvalidKeyFile, path, KeySize, len(key))
	}
	return key, nil
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
