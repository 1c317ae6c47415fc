package campus

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// CredentialStore persists the cached credential.
type CredentialStore interface {
	Load() (Credential, error)
	Save(cred Credential) error
	Delete() error
}

// ErrNoCredential is returned by Load when nothing is cached.
var ErrNoCredential = errors.New("no cached credential")

// ErrSealed is returned when a sealed file cannot be opened with the
// configured password.
var ErrSealed = errors.New("credential file is sealed with a different password")

var vaultMagic = []byte("DWV1")

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// Vault stores the credential in a single file, sealed with a key derived
// from Password when one is set.
type Vault struct {
	Path     string
	Password string
}

// NewVault creates a vault at path.
func NewVault(path, password string) *Vault {
	return &Vault{Path: path, Password: password}
}

// Load reads the cached credential. It returns ErrNoCredential when the file
// does not exist and ErrSealed when Password cannot open it.
func (v *Vault) Load() (Credential, error) {
	data, err := os.ReadFile(v.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, ErrNoCredential
		}
		return Credential{}, fmt.Errorf("read token file: %w", err)
	}

	plain := data
	if bytes.HasPrefix(data, vaultMagic) {
		if v.Password == "" {
			return Credential{}, ErrSealed
		}
		plain, err = open(data[len(vaultMagic):], v.Password)
		if err != nil {
			return Credential{}, err
		}
	}

	var cred Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return Credential{}, fmt.Errorf("parse token file: %w", err)
	}
	return cred, nil
}

// Save replaces the file atomically with mode 0600, sealing it when Password
// is set.
func (v *Vault) Save(cred Credential) error {
	plain, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	data := plain
	if v.Password != "" {
		sealed, err := seal(plain, v.Password)
		if err != nil {
			return err
		}
		data = append(append([]byte{}, vaultMagic...), sealed...)
	}

	dir := filepath.Dir(v.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens.*.tmp")
	if err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), v.Path); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Delete removes the file. A missing file is not an error.
func (v *Vault) Delete() error {
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete token file: %w", err)
	}
	return nil
}

func deriveKey(password string, salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key([]byte(password), salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// seal returns salt || nonce || secretbox(plain).
func seal(plain []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	out := append(salt, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func open(data []byte, password string) ([]byte, error) {
	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("token file truncated")
	}
	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])
	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrSealed
	}
	return plain, nil
}
