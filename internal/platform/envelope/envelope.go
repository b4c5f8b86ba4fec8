// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package envelope encrypts small secrets at rest with a two-level key scheme.

Every call to [Cipher.Encrypt] draws a fresh 256-bit data key, seals the
plaintext with it, then seals the data key itself under the active master key.
Only the wrapped data key is stored next to the ciphertext.

Layout of a [Payload]:

  - Ciphertext: ChaCha20-Poly1305 output (ciphertext || tag) under the data key.
  - Nonce: the 96-bit random nonce used for Ciphertext.
  - EncryptedDataKey: wrapNonce || seal(masterKey, dataKey), authenticated with the key version.
  - KeyVersion: which master key wrapped the data key.

Master keys live in a [Keyring]. Rotating means adding a new version, making it
active, and calling [Cipher.Rewrap] on stored payloads.
*/
package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/taibuivan/warden/internal/platform/apperr"
)

// KeySize is the length in bytes of both master keys and data keys.
const KeySize = chacha20poly1305.KeySize

// Payload is the persisted form of one encrypted secret.
type Payload struct {
	Ciphertext       []byte    `json:"ciphertext"`
	Nonce            []byte    `json:"nonce"`
	KeyVersion       int       `json:"keyVersion"`
	EncryptedDataKey []byte    `json:"encryptedDataKey"`
	CreatedAt        time.Time `json:"createdAt"`
}

// # Keyring

// Keyring holds every master key version still needed for decryption.
type Keyring struct {
	keys   map[int][]byte
	active int
}

// NewKeyring validates the key material and the active version.
func NewKeyring(keys map[int][]byte, active int) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, errors.New("envelope: keyring is empty")
	}

	copied := make(map[int][]byte, len(keys))
	for version, key := range keys {
		if len(key) != KeySize {
			return nil, fmt.Errorf("envelope: master key v%d must be %d bytes, got %d", version, KeySize, len(key))
		}
		copied[version] = append([]byte(nil), key...)
	}

	if _, ok := copied[active]; !ok {
		return nil, fmt.Errorf("envelope: active version %d not present in keyring", active)
	}

	return &Keyring{keys: copied, active: active}, nil
}

// ParseKeyring reads the "version:base64key,version:base64key" format used by configuration.
func ParseKeyring(encoded string, active int) (*Keyring, error) {
	keys := make(map[int][]byte)

	for _, entry := range strings.Split(encoded, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		versionText, encoded, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("envelope: malformed key entry %q", entry)
		}

		version, err := strconv.Atoi(strings.TrimSpace(versionText))
		if err != nil {
			return nil, fmt.Errorf("envelope: invalid key version %q: %w", versionText, err)
		}

		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("envelope: invalid base64 for key v%d: %w", version, err)
		}

		if _, dup := keys[version]; dup {
			return nil, fmt.Errorf("envelope: duplicate key version %d", version)
		}
		keys[version] = key
	}

	return NewKeyring(keys, active)
}

// ActiveVersion returns the version used by new encryptions.
func (k *Keyring) ActiveVersion() int { return k.active }

// Versions lists the loaded versions in ascending order.
func (k *Keyring) Versions() []int {
	versions := make([]int, 0, len(k.keys))
	for version := range k.keys {
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions
}

// # Cipher

// Cipher performs envelope encryption against a [Keyring].
type Cipher struct {
	keyring *Keyring
	now     func() time.Time
}

// NewCipher creates a Cipher bound to keyring.
func NewCipher(keyring *Keyring) *Cipher {
	return &Cipher{keyring: keyring, now: time.Now}
}

// Encrypt seals plaintext under a fresh data key wrapped by the active master key.
func (c *Cipher) Encrypt(plaintext []byte) (*Payload, error) {
	dataKey := make([]byte, KeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("envelope: generate data key: %w", err)
	}

	dataAEAD, err := chacha20poly1305.New(dataKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: init data cipher: %w", err)
	}

	nonce := make([]byte, dataAEAD.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}

	version := c.keyring.active
	wrapped, err := c.wrap(version, dataKey)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Ciphertext:       dataAEAD.Seal(nil, nonce, plaintext, nil),
		Nonce:            nonce,
		KeyVersion:       version,
		EncryptedDataKey: wrapped,
		CreatedAt:        c.now().UTC(),
	}, nil
}

// Decrypt unwraps the data key and opens the ciphertext.
//
// Any missing master key, authentication failure or malformed field yields
// [apperr.ErrEncryptionKeyMismatch].
func (c *Cipher) Decrypt(payload *Payload) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("envelope: nil payload: %w", apperr.ErrEncryptionKeyMismatch)
	}

	dataKey, err := c.unwrap(payload.KeyVersion, payload.EncryptedDataKey)
	if err != nil {
		return nil, err
	}

	dataAEAD, err := chacha20poly1305.New(dataKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: init data cipher: %w", apperr.ErrEncryptionKeyMismatch)
	}

	if len(payload.Nonce) != dataAEAD.NonceSize() {
		return nil, fmt.Errorf("envelope: bad nonce length: %w", apperr.ErrEncryptionKeyMismatch)
	}

	plaintext, err := dataAEAD.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("envelope: open ciphertext: %w", apperr.ErrEncryptionKeyMismatch)
	}

	return plaintext, nil
}

// NeedsRewrap reports whether payload was wrapped by a version other than the active one.
func (c *Cipher) NeedsRewrap(payload *Payload) bool {
	return payload != nil && payload.KeyVersion != c.keyring.active
}

// Rewrap re-seals the data key under the active master key. The ciphertext is untouched.
func (c *Cipher) Rewrap(payload *Payload) (*Payload, error) {
	dataKey, err := c.unwrap(payload.KeyVersion, payload.EncryptedDataKey)
	if err != nil {
		return nil, err
	}

	version := c.keyring.active
	wrapped, err := c.wrap(version, dataKey)
	if err != nil {
		return nil, err
	}

	rewrapped := *payload
	rewrapped.KeyVersion = version
	rewrapped.EncryptedDataKey = wrapped
	return &rewrapped, nil
}

// # Key Wrapping

func (c *Cipher) wrap(version int, dataKey []byte) ([]byte, error) {
	masterAEAD, err := chacha20poly1305.New(c.keyring.keys[version])
	if err != nil {
		return nil, fmt.Errorf("envelope: init master cipher: %w", err)
	}

	nonce := make([]byte, masterAEAD.NonceSize(), masterAEAD.NonceSize()+len(dataKey)+masterAEAD.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("envelope: generate wrap nonce: %w", err)
	}

	return masterAEAD.Seal(nonce, nonce, dataKey, versionAAD(version)), nil
}

func (c *Cipher) unwrap(version int, wrapped []byte) ([]byte, error) {
	masterKey, ok := c.keyring.keys[version]
	if !ok {
		return nil, fmt.Errorf("envelope: no master key v%d: %w", version, apperr.ErrEncryptionKeyMismatch)
	}

	masterAEAD, err := chacha20poly1305.New(masterKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: init master cipher: %w", apperr.ErrEncryptionKeyMismatch)
	}

	if len(wrapped) < masterAEAD.NonceSize()+masterAEAD.Overhead() {
		return nil, fmt.Errorf("envelope: wrapped key too short: %w", apperr.ErrEncryptionKeyMismatch)
	}

	nonce, sealed := wrapped[:masterAEAD.NonceSize()], wrapped[masterAEAD.NonceSize():]
	dataKey, err := masterAEAD.Open(nil, nonce, sealed, versionAAD(version))
	if err != nil {
		return nil, fmt.Errorf("envelope: unwrap data key v%d: %w", version, apperr.ErrEncryptionKeyMismatch)
	}

	return dataKey, nil
}

// versionAAD binds a wrapped key to the version recorded beside it.
func versionAAD(version int) []byte {
	return []byte("warden-envelope-v" + strconv.Itoa(version))
}
