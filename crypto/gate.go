// Package crypto holds the key material gate: sealed signing keys are opened
// with a process-wide AES-256-GCM key and exposed only inside a callback.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/log"
)

const (
	ScryptN = 32768 // 2^15
	ScryptR = 8
	ScryptP = 1
	KeyLen  = 32 // AES-256 key length

	nonceLen  = 12
	tagLen    = 16
	delimiter = ":"
)

// DefaultSalt is used when no salt is configured.
var DefaultSalt = []byte("odyssey-core/key-gate/v1")

// KeyMode says how key input is interpreted.
type KeyMode string

const (
	// KeyModeAuto treats input containing the delimiter as sealed and
	// anything else as plaintext.
	KeyModeAuto      KeyMode = "auto"
	KeyModeEncrypted KeyMode = "encrypted"
	KeyModePlaintext KeyMode = "plaintext"
)

// ParseKeyMode converts a request or config value. Empty means auto.
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(strings.ToLower(s)) {
	case "", KeyModeAuto:
		return KeyModeAuto, nil
	case KeyModeEncrypted:
		return KeyModeEncrypted, nil
	case KeyModePlaintext:
		return KeyModePlaintext, nil
	}
	return "", errors.Errorf("unknown key mode %q", s)
}

// Gate seals and opens signing keys. The AES key is derived from the
// configured secret on first use and kept for the life of the process.
type Gate struct {
	secret []byte
	salt   []byte

	once sync.Once
	aead cipher.AEAD
	err  error
}

// NewGate creates a gate for secret. The gate keeps its own copies.
func NewGate(secret, salt []byte) *Gate {
	if len(salt) == 0 {
		salt = DefaultSalt
	}
	return &Gate{
		secret: append([]byte(nil), secret...),
		salt:   append([]byte(nil), salt...),
	}
}

func (g *Gate) cipher() (cipher.AEAD, error) {
	g.once.Do(func() {
		defer clearBytes(g.secret)
		if len(g.secret) == 0 {
			g.err = errors.New("key gate secret is not configured")
			return
		}

		key, err := scrypt.Key(g.secret, g.salt, ScryptN, ScryptR, ScryptP, KeyLen)
		if err != nil {
			g.err = errors.Wrap(err, "scrypt key derivation failed")
			return
		}
		defer clearBytes(key)

		block, err := aes.NewCipher(key)
		if err != nil {
			g.err = errors.Wrap(err, "failed to create cipher")
			return
		}
		g.aead, g.err = cipher.NewGCM(block)
		if g.err != nil {
			g.err = errors.Wrap(g.err, "failed to create GCM")
		}
	})
	return g.aead, g.err
}

// Seal encrypts plaintext into hex(nonce):hex(tag):hex(ciphertext).
func (g *Gate) Seal(plaintext []byte) (string, error) {
	aead, err := g.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]
	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, delimiter), nil
}

// open decrypts a sealed key into a fresh buffer owned by the caller.
func (g *Gate) open(sealed string) ([]byte, error) {
	aead, err := g.cipher()
	if err != nil {
		return nil, chains.Wrap(chains.ErrKeyDecryptionFailed, err)
	}

	parts := strings.Split(strings.TrimSpace(sealed), delimiter)
	if len(parts) != 3 {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "sealed key must have three parts")
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceLen {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "bad nonce")
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLen {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "bad tag")
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "bad ciphertext")
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "authentication failed")
	}
	return plaintext, nil
}

// IsSealed reports whether input looks like a sealed key.
func IsSealed(input string) bool {
	return strings.Contains(input, delimiter)
}

// WithDecryptedKey passes the key material for input to fn and zeroes the
// buffer when fn returns or panics. In KeyModeAuto input without the
// delimiter is used as plaintext, for keys that never passed through Seal.
func WithDecryptedKey[T any](g *Gate, input string, mode KeyMode, fn func(key []byte) (T, error)) (T, error) {
	var zero T

	sealed := mode == KeyModeEncrypted || (mode != KeyModePlaintext && IsSealed(input))
	var key []byte
	if sealed {
		var err error
		key, err = g.open(input)
		if err != nil {
			log.Keys.Warn().Str("mode", string(mode)).Msg("Key decryption failed")
			return zero, err
		}
	} else {
		key = []byte(input)
	}
	defer clearBytes(key)

	return fn(key)
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
