// Package nkeys implements the typed, checksummed text encoding for Ed25519
// key material used during the client handshake, plus nonce signing and
// verification.
//
// A public or private key is base32(prefix || key || crc16), padding
// stripped, so the first letter of the text identifies the key role. A seed
// additionally packs the role of its derived public key into the two leading
// bytes, which is why every seed begins with "S" followed by the role letter.
package nkeys

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

const seedLen = ed25519.SeedSize

// KeyPair is a handle over decoded key material.
type KeyPair interface {
	// Seed returns the encoded seed, or an error for public-only pairs.
	Seed() ([]byte, error)

	// PublicKey returns the encoded public key.
	PublicKey() (string, error)

	// PrivateKey returns the encoded raw private key, or an error for
	// public-only pairs.
	PrivateKey() ([]byte, error)

	// Sign signs input with the private key.
	Sign(input []byte) ([]byte, error)

	// Verify checks sig over input against the public key.
	Verify(input []byte, sig []byte) error
}

// keypair holds the decoded seed and its public-key role.
type keypair struct {
	prefix PrefixByte
	seed   []byte
}

// CreatePair generates a fresh key pair for the given public-key role.
func CreatePair(prefix PrefixByte) (KeyPair, error) {
	if !checkValidPublicPrefixByte(prefix) {
		return nil, ErrInvalidPrefixByte
	}
	seed := make([]byte, seedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("nkeys: entropy source failed: %w", err)
	}
	return &keypair{prefix: prefix, seed: seed}, nil
}

// CreateUser generates a fresh user key pair.
func CreateUser() (KeyPair, error) {
	return CreatePair(PrefixByteUser)
}

// CreateAccount generates a fresh account key pair.
func CreateAccount() (KeyPair, error) {
	return CreatePair(PrefixByteAccount)
}

// CreateServer generates a fresh server key pair.
func CreateServer() (KeyPair, error) {
	return CreatePair(PrefixByteServer)
}

// FromSeed restores a key pair from an encoded seed.
func FromSeed(seed []byte) (KeyPair, error) {
	prefix, raw, err := DecodeSeed(seed)
	if err != nil {
		return nil, err
	}
	if len(raw) != seedLen {
		return nil, ErrInvalidSeedLen
	}
	return &keypair{prefix: prefix, seed: raw}, nil
}

// ParseDecoratedNKey scans text for the first seed it contains. Lines that do
// not decode as a seed are ignored, which tolerates surrounding prose and
// armor lines in credentials files.
func ParseDecoratedNKey(contents []byte) (KeyPair, error) {
	for _, line := range splitLines(contents) {
		if len(line) == 0 || line[0] != 'S' {
			continue
		}
		if kp, err := FromSeed(line); err == nil {
			return kp, nil
		}
	}
	return nil, ErrInvalidSeed
}

func splitLines(b []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' || c == '\r' {
			if i > start {
				lines = append(lines, b[start:i])
			}
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, b[start:])
	}
	return lines
}

func (kp *keypair) keys() (ed25519.PublicKey, ed25519.PrivateKey) {
	priv := ed25519.NewKeyFromSeed(kp.seed)
	return priv.Public().(ed25519.PublicKey), priv
}

// Seed re-encodes the seed in its original text form.
func (kp *keypair) Seed() ([]byte, error) {
	s, err := EncodeSeed(kp.prefix, kp.seed)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// PublicKey derives and encodes the public key.
func (kp *keypair) PublicKey() (string, error) {
	pub, _ := kp.keys()
	return Encode(kp.prefix, pub)
}

// PrivateKey encodes the full Ed25519 private key with the 'P' prefix.
func (kp *keypair) PrivateKey() ([]byte, error) {
	_, priv := kp.keys()
	s, err := Encode(PrefixBytePrivate, priv)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Sign signs input, typically the server-provided handshake nonce.
func (kp *keypair) Sign(input []byte) ([]byte, error) {
	_, priv := kp.keys()
	return ed25519.Sign(priv, input), nil
}

// Verify checks sig over input against the derived public key.
func (kp *keypair) Verify(input []byte, sig []byte) error {
	pub, _ := kp.keys()
	if !ed25519.Verify(pub, input, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Wipe overwrites the seed held by the pair.
func (kp *keypair) Wipe() {
	wipe(kp.seed)
}

// pub is a public-only pair that can verify but not sign.
type pub struct {
	prefix PrefixByte
	key    ed25519.PublicKey
}

// FromPublicKey restores a verify-only pair from an encoded public key.
func FromPublicKey(public string) (KeyPair, error) {
	raw, err := decode([]byte(public))
	if err != nil {
		return nil, err
	}
	prefix := PrefixByte(raw[0])
	if !checkValidPublicPrefixByte(prefix) {
		return nil, ErrInvalidPublicKey
	}
	key := raw[1:]
	// Tolerate text forms that carry extra trailing material after the key.
	if len(key) > ed25519.PublicKeySize {
		key = key[:ed25519.PublicKeySize]
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return &pub{prefix: prefix, key: ed25519.PublicKey(key)}, nil
}

func (p *pub) Seed() ([]byte, error) {
	return nil, ErrPublicKeyOnly
}

func (p *pub) PublicKey() (string, error) {
	return Encode(p.prefix, p.key)
}

func (p *pub) PrivateKey() ([]byte, error) {
	return nil, ErrPublicKeyOnly
}

func (p *pub) Sign(input []byte) ([]byte, error) {
	return nil, ErrCannotSign
}

func (p *pub) Verify(input []byte, sig []byte) error {
	if !ed25519.Verify(p.key, input, sig) {
		return ErrInvalidSignature
	}
	return nil
}

var (
	_ KeyPair = (*keypair)(nil)
	_ KeyPair = (*pub)(nil)
)
