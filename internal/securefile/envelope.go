// Package securefile seals JSON values into password-encrypted envelopes
// (Argon2id key derivation, XChaCha20-Poly1305) and writes plain files
// atomically.
package securefile

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidPasswordOrCorrupt covers every authentication failure so
	// callers cannot tell a wrong password from a damaged envelope.
	ErrInvalidPasswordOrCorrupt = errors.New("invalid password or corrupted data")

	ErrEmptyPassword = errors.New("securefile: empty password")
)

const (
	envelopeVersion = 2
	modePassword    = "password"
	saltLen         = 16
)

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
	KeyLen    uint32 `json:"key_len"`
}

var DefaultKDF = KDFParams{
	Time:      2,
	MemoryKiB: 64 * 1024,
	Threads:   1,
	KeyLen:    chacha20poly1305.KeySize,
}

// Envelope is the stored form of a sealed value. Binary fields are base64.
type Envelope struct {
	Version    int       `json:"version"`
	Mode       string    `json:"mode"`
	KDF        KDFParams `json:"kdf"`
	Salt       string    `json:"salt"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
}

type Options struct {
	// Zero value means DefaultKDF.
	KDF KDFParams

	// AAD binds the envelope to its purpose; opening needs the same value.
	AAD []byte
}

func resolve(opt []Options) Options {
	var o Options
	if len(opt) > 0 {
		o = opt[0]
	}
	if o.KDF == (KDFParams{}) {
		o.KDF = DefaultKDF
	}
	return o
}

// SealJSON marshals v and encrypts it under a key derived from password.
// It returns the JSON encoded Envelope.
func SealJSON[T any](v T, password []byte, opt ...Options) ([]byte, error) {
	o := resolve(opt)
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	if o.KDF.KeyLen != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("securefile: key length %d, want %d", o.KDF.KeyLen, chacha20poly1305.KeySize)
	}

	plain, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	defer wipe(plain)

	salt, err := randomBytes(saltLen)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(password, salt, o.KDF)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		Version:    envelopeVersion,
		Mode:       modePassword,
		KDF:        o.KDF,
		Salt:       b64.EncodeToString(salt),
		Nonce:      b64.EncodeToString(nonce),
		Ciphertext: b64.EncodeToString(aead.Seal(nil, nonce, plain, o.AAD)),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return out, nil
}

// OpenJSON reverses SealJSON. The KDF parameters come from the envelope;
// only the AAD of opt is used.
func OpenJSON[T any](sealed []byte, password []byte, opt ...Options) (T, error) {
	var zero T
	o := resolve(opt)
	if err := checkPassword(password); err != nil {
		return zero, err
	}

	var env Envelope
	if err := json.Unmarshal(sealed, &env); err != nil {
		return zero, ErrInvalidPasswordOrCorrupt
	}
	if env.Version != envelopeVersion || env.Mode != modePassword {
		return zero, fmt.Errorf("unsupported envelope version %d mode %q", env.Version, env.Mode)
	}
	if env.KDF.KeyLen != chacha20poly1305.KeySize {
		return zero, ErrInvalidPasswordOrCorrupt
	}

	salt, err1 := b64.DecodeString(env.Salt)
	nonce, err2 := b64.DecodeString(env.Nonce)
	ct, err3 := b64.DecodeString(env.Ciphertext)
	if err := errors.Join(err1, err2, err3); err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return zero, ErrInvalidPasswordOrCorrupt
	}

	aead, err := newAEAD(password, salt, env.KDF)
	if err != nil {
		return zero, err
	}
	plain, err := aead.Open(nil, nonce, ct, o.AAD)
	if err != nil {
		return zero, ErrInvalidPasswordOrCorrupt
	}
	defer wipe(plain)

	var out T
	if err := json.Unmarshal(plain, &out); err != nil {
		return zero, fmt.Errorf("unmarshal json: %w", err)
	}
	return out, nil
}

var b64 = base64.StdEncoding

func newAEAD(password, salt []byte, p KDFParams) (cipher.AEAD, error) {
	key := argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	return aead, nil
}

func checkPassword(pw []byte) error {
	if len(pw) == 0 {
		return ErrEmptyPassword
	}
	for _, b := range pw {
		if b != 0 {
			return nil
		}
	}
	return errors.New("securefile: zeroed password buffer")
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("rand: %w", err)
	}
	return b, nil
}

func wipe(b []byte) {
	clear(b)
}
