package nkeys

import "errors"

var (
	ErrInvalidPrefixByte = errors.New("nkeys: invalid prefix byte")
	ErrInvalidSeed       = errors.New("nkeys: invalid seed")
	ErrInvalidEncoding   = errors.New("nkeys: invalid encoded key")
	ErrInvalidChecksum   = errors.New("nkeys: invalid checksum")
	ErrInvalidPublicKey  = errors.New("nkeys: not a valid public key")
	ErrInvalidSeedLen    = errors.New("nkeys: invalid seed length")
	ErrCannotSign        = errors.New("nkeys: cannot sign, no private key available")
	ErrPublicKeyOnly     = errors.New("nkeys: no seed or private key available")
	ErrInvalidSignature  = errors.New("nkeys: signature verification failed")
	ErrPrefixMismatch    = errors.New("nkeys: key prefix does not match requested type")
)
