// Package envelope implements the vault's durable encryption format:
// a versioned binary blob combining salt, IV and AES-256-CBC ciphertext,
// with the key derived from a passphrase via PBKDF2-HMAC-SHA256.
//
// Wire layout (version 1, bit-exact for backward compatibility):
//
//	blob[0]     version byte
//	blob[1:33]  salt (32 bytes)
//	blob[33:49] IV (16 bytes)
//	blob[49:]   ciphertext (multiple of 16 bytes)
//
// A new format requires bumping the version byte and adding a decrypt
// branch while keeping the old one.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/dpetrovs/passvault/internal/common"
)

const (
	// FormatVersion is the current envelope version byte.
	FormatVersion = 1

	// DefaultIterations is the PBKDF2 iteration count used unless
	// configured otherwise.
	DefaultIterations = 100000

	// MinIterations is the lowest acceptable PBKDF2 iteration count.
	// Anything below is rejected as insecure.
	MinIterations = 10000

	saltSize = 32
	ivSize   = aes.BlockSize
	keySize  = 32

	headerSize = 1 + saltSize + ivSize
	minSize    = headerSize + aes.BlockSize
)

// Engine encrypts and decrypts envelope blobs with a fixed iteration count.
// An Engine is stateless and safe for concurrent use.
type Engine struct {
	iterations int
}

// New returns an Engine with the given PBKDF2 iteration count.
// Iteration counts below MinIterations are rejected.
func New(iterations int) (*Engine, error) {
	if iterations < MinIterations {
		return nil, fmt.Errorf("%w: pbkdf2 iterations %d below minimum %d",
			common.ErrInvalidInput, iterations, MinIterations)
	}
	return &Engine{iterations: iterations}, nil
}

// Iterations reports the engine's PBKDF2 iteration count.
func (e *Engine) Iterations() int {
	return e.iterations
}

func (e *Engine) deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, e.iterations, keySize, sha256.New)
}

// Encrypt derives a key from passphrase with a fresh random salt, pads the
// plaintext to the AES block size and encrypts it in CBC mode under a fresh
// random IV. The returned blob carries everything needed to decrypt except
// the passphrase itself.
func (e *Engine) Encrypt(plaintext string, passphrase []byte) ([]byte, error) {
	salt := common.GenerateRandByteArray(saltSize)
	iv := common.GenerateRandByteArray(ivSize)

	key := e.deriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	defer common.WipeByteArray(padded)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	blob := make([]byte, 0, headerSize+len(ciphertext))
	blob = append(blob, FormatVersion)
	blob = append(blob, salt...)
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Decrypt validates the blob structure, re-derives the key from the embedded
// salt and returns the plaintext.
//
// Structural problems (short blob, unknown version, misaligned ciphertext)
// yield common.ErrCorruptedEnvelope; a well-formed blob that produces invalid
// padding (i.e. wrong passphrase or tampered ciphertext) yields
// common.ErrDecryptionFailed. Both match common.ErrDecryptionFailed under
// errors.Is, so callers that must not distinguish them see one class.
func (e *Engine) Decrypt(blob, passphrase []byte) (string, error) {
	if len(blob) < minSize {
		return "", fmt.Errorf("%w: blob too short (%d bytes)", common.ErrCorruptedEnvelope, len(blob))
	}
	if blob[0] != FormatVersion {
		return "", fmt.Errorf("%w: unsupported version %d", common.ErrCorruptedEnvelope, blob[0])
	}

	salt := blob[1 : 1+saltSize]
	iv := blob[1+saltSize : headerSize]
	ciphertext := blob[headerSize:]

	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d not block-aligned",
			common.ErrCorruptedEnvelope, len(ciphertext))
	}

	key := e.deriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cipher init: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	defer common.WipeByteArray(padded)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", common.ErrDecryptionFailed
	}

	// plaintext aliases padded, which the deferred wipe covers; copy out first.
	return string(plaintext), nil
}

// Verify reports whether the blob decrypts under passphrase. It never
// exposes plaintext and never distinguishes failure reasons.
func (e *Engine) Verify(blob, passphrase []byte) bool {
	_, err := e.Decrypt(blob, passphrase)
	return err == nil
}

// Rotate decrypts the blob under oldPassphrase and re-encrypts it under
// newPassphrase. The new blob always carries a freshly generated salt and IV.
func (e *Engine) Rotate(blob, oldPassphrase, newPassphrase []byte) ([]byte, error) {
	plaintext, err := e.Decrypt(blob, oldPassphrase)
	if err != nil {
		return nil, err
	}
	return e.Encrypt(plaintext, newPassphrase)
}
