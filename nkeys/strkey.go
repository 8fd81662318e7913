package nkeys

import (
	"encoding/base32"
	"encoding/binary"
)

// PrefixByte identifies the role of a key in its text form. The role letter
// is the first character of the base-32 encoding.
type PrefixByte byte

const (
	// PrefixByteSeed marks an encoded seed, letter 'S'.
	PrefixByteSeed PrefixByte = 18 << 3
	// PrefixBytePrivate marks a raw private key, letter 'P'.
	PrefixBytePrivate PrefixByte = 15 << 3
	// PrefixByteOperator marks an operator public key, letter 'O'.
	PrefixByteOperator PrefixByte = 14 << 3
	// PrefixByteServer marks a server public key, letter 'N'.
	PrefixByteServer PrefixByte = 13 << 3
	// PrefixByteCluster marks a cluster public key, letter 'C'.
	PrefixByteCluster PrefixByte = 2 << 3
	// PrefixByteAccount marks an account public key, letter 'A'.
	PrefixByteAccount PrefixByte = 0
	// PrefixByteUser marks a user public key, letter 'U'.
	PrefixByteUser PrefixByte = 20 << 3
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

func (p PrefixByte) String() string {
	switch p {
	case PrefixByteOperator:
		return "operator"
	case PrefixByteServer:
		return "server"
	case PrefixByteCluster:
		return "cluster"
	case PrefixByteAccount:
		return "account"
	case PrefixByteUser:
		return "user"
	case PrefixByteSeed:
		return "seed"
	case PrefixBytePrivate:
		return "private"
	}
	return "unknown"
}

// checkValidPrefixByte reports whether p is any recognized prefix.
func checkValidPrefixByte(p PrefixByte) bool {
	switch p {
	case PrefixByteOperator, PrefixByteServer, PrefixByteCluster,
		PrefixByteAccount, PrefixByteUser, PrefixByteSeed, PrefixBytePrivate:
		return true
	}
	return false
}

// checkValidPublicPrefixByte reports whether p may appear on a public key.
func checkValidPublicPrefixByte(p PrefixByte) bool {
	switch p {
	case PrefixByteOperator, PrefixByteServer, PrefixByteCluster,
		PrefixByteAccount, PrefixByteUser:
		return true
	}
	return false
}

// Encode serializes src as base32(prefix || src || crc16le), padding stripped.
func Encode(prefix PrefixByte, src []byte) (string, error) {
	if !checkValidPrefixByte(prefix) {
		return "", ErrInvalidPrefixByte
	}

	raw := make([]byte, 0, 1+len(src)+2)
	raw = append(raw, byte(prefix))
	raw = append(raw, src...)

	var crc [2]byte
	binary.LittleEndian.PutUint16(crc[:], crc16(raw))
	raw = append(raw, crc[:]...)

	return b32.EncodeToString(raw), nil
}

// EncodeSeed serializes an Ed25519 seed with its intended public-key role
// packed into the two leading bytes, so the text begins "S" followed by the
// public role letter.
func EncodeSeed(public PrefixByte, src []byte) (string, error) {
	if !checkValidPublicPrefixByte(public) {
		return "", ErrInvalidPrefixByte
	}
	if len(src) != seedLen {
		return "", ErrInvalidSeedLen
	}

	b1 := byte(PrefixByteSeed) | byte(public)>>5
	b2 := (byte(public) & 0x1F) << 3

	raw := make([]byte, 0, 2+len(src)+2)
	raw = append(raw, b1, b2)
	raw = append(raw, src...)

	var crc [2]byte
	binary.LittleEndian.PutUint16(crc[:], crc16(raw))
	raw = append(raw, crc[:]...)

	return b32.EncodeToString(raw), nil
}

// decode strips the base-32 wrapping and validates the checksum. The returned
// bytes still carry the prefix byte(s).
func decode(src []byte) ([]byte, error) {
	raw := make([]byte, b32.DecodedLen(len(src)))
	n, err := b32.Decode(raw, src)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	raw = raw[:n]
	if len(raw) < 4 {
		return nil, ErrInvalidEncoding
	}

	crc := binary.LittleEndian.Uint16(raw[len(raw)-2:])
	raw = raw[:len(raw)-2]
	if !validCRC16(raw, crc) {
		return nil, ErrInvalidChecksum
	}
	return raw, nil
}

// Decode unwraps a key in text form and checks that it carries the expected
// prefix.
func Decode(expected PrefixByte, src []byte) ([]byte, error) {
	if !checkValidPrefixByte(expected) {
		return nil, ErrInvalidPrefixByte
	}
	raw, err := decode(src)
	if err != nil {
		return nil, err
	}
	if PrefixByte(raw[0]) != expected {
		return nil, ErrPrefixMismatch
	}
	return raw[1:], nil
}

// DecodeSeed unwraps an encoded seed, returning the public-key role it was
// minted for and the raw seed bytes.
func DecodeSeed(src []byte) (PrefixByte, []byte, error) {
	raw, err := decode(src)
	if err != nil {
		return PrefixByteSeed, nil, err
	}
	if len(raw) < 2 {
		return PrefixByteSeed, nil, ErrInvalidSeed
	}

	b1 := raw[0] & 0xF8
	b2 := (raw[0]&0x07)<<5 | raw[1]>>3

	if PrefixByte(b1) != PrefixByteSeed {
		return PrefixByteSeed, nil, ErrInvalidSeed
	}
	if !checkValidPublicPrefixByte(PrefixByte(b2)) {
		return PrefixByteSeed, nil, ErrInvalidSeed
	}
	return PrefixByte(b2), raw[2:], nil
}

// IsValidEncoding reports whether src is well-formed, checksum included.
func IsValidEncoding(src []byte) bool {
	_, err := decode(src)
	return err == nil
}

// Prefix returns the role of an encoded key, or an error if the text is not
// a valid key form.
func Prefix(src string) (PrefixByte, error) {
	raw, err := decode([]byte(src))
	if err != nil {
		return 0, err
	}
	p := PrefixByte(raw[0])
	if checkValidPrefixByte(p) {
		return p, nil
	}
	// Seeds pack the role into two bytes; recognize them too.
	if PrefixByte(raw[0]&0xF8) == PrefixByteSeed {
		return PrefixByteSeed, nil
	}
	return 0, ErrInvalidPrefixByte
}

// wipe overwrites key material before release.
func wipe(b []byte) {
	for i := range b {
		b[i] = 'x'
	}
}
