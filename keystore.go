package attachcrypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams controls the key derivation function protecting a
// Keystore file, grounded on the teacher's PasswordKeyProvider params.
type Argon2idParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltSize    int
}

// DefaultArgon2idParams returns conservative interactive-login
// parameters (64 MiB, 1 iteration, parallelism 4), matching the
// teacher's own Argon2id default.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{Memory: 64 * 1024, Iterations: 1, Parallelism: 4, SaltSize: 32}
}

// Keystore persists named combined keys to a single file on a Storage
// backend, encrypted with this package's own AES-256-CBC+HMAC-SHA-256
// frame under a key derived from a passphrase via Argon2id. This is a
// convenience around the outside of the engine: it is never consulted
// by EncryptAttachment/DecryptAttachmentToSink/DecryptAndReencryptLocally,
// and it reuses the engine's own primitives rather than inventing a
// second encryption scheme.
type Keystore struct {
	Storage Storage
	Params  Argon2idParams
}

// NewKeystore returns a Keystore backed by storage with the default
// Argon2id parameters.
func NewKeystore(storage Storage) *Keystore {
	return &Keystore{Storage: storage, Params: DefaultArgon2idParams()}
}

// deriveKeystoreKey derives a KeySetLength-byte combined key from
// passphrase and salt.
func (k *Keystore) deriveKeystoreKey(passphrase string, salt []byte) []byte {
	p := k.Params
	return argon2.IDKey([]byte(passphrase), salt, p.Iterations, p.Memory, p.Parallelism, KeySetLength)
}

// Save encrypts keys (name -> combined key) under passphrase and writes
// the result to relPath.
func (k *Keystore) Save(relPath, passphrase string, keys map[string][]byte) error {
	payload := make(map[string]string, len(keys))
	for name, combined := range keys {
		payload[name] = base64.StdEncoding.EncodeToString(combined)
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	salt := make([]byte, k.Params.SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return newIOError("read", "", err)
	}
	iv := make([]byte, IVLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return newIOError("read", "", err)
	}

	combined := k.deriveKeystoreKey(passphrase, salt)
	aesKey, macKey, _ := SplitKeys(combined)

	ciphertext, err := aesCbcEncrypt(aesKey, iv, plaintext)
	if err != nil {
		return err
	}
	frame := append(append([]byte{}, iv...), ciphertext...)
	mac := computeHMAC(macKey, frame)
	frame = append(frame, mac...)

	out := append(append([]byte{}, salt...), frame...)

	w, err := k.Storage.CreateForWrite(relPath)
	if err != nil {
		return newIOError("open", relPath, err)
	}
	defer w.Close()
	if _, err := w.Write(out); err != nil {
		return newIOError("write", relPath, err)
	}
	return nil
}

// Load decrypts relPath under passphrase and returns the stored
// name -> combined key map.
func (k *Keystore) Load(relPath, passphrase string) (map[string][]byte, error) {
	r, err := k.Storage.OpenRead(relPath)
	if err != nil {
		return nil, newIOError("open", relPath, err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, newIOError("read", relPath, err)
	}
	if len(raw) < k.Params.SaltSize+IVLength+MACLength {
		return nil, ErrTruncatedFrame
	}

	salt := raw[:k.Params.SaltSize]
	frame := raw[k.Params.SaltSize:]
	iv := frame[:IVLength]
	macStart := len(frame) - MACLength
	ciphertext := frame[IVLength:macStart]
	theirMAC := frame[macStart:]

	combined := k.deriveKeystoreKey(passphrase, salt)
	aesKey, macKey, _ := SplitKeys(combined)

	if !constantTimeEqual(computeHMAC(macKey, frame[:macStart]), theirMAC) {
		return nil, ErrBadMAC
	}

	plaintext, err := aesCbcDecrypt(aesKey, iv, ciphertext)
	if err != nil {
		return nil, err
	}

	var payload map[string]string
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, err
	}
	keys := make(map[string][]byte, len(payload))
	for name, b64 := range payload {
		combined, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		keys[name] = combined
	}
	return keys, nil
}
