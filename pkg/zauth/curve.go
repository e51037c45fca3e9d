package zauth

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// CURVE key helpers: Z85 text encoding (ZMQ RFC 32) and keypair
// generation. Only the handshake shape uses these; no encryption is
// performed in this layer.

const (
	// CurveKeySize is the byte length of a curve25519 key
	CurveKeySize = 32

	// CurveKeyTextSize is the Z85 length of an encoded key
	CurveKeyTextSize = 40
)

var (
	ErrZ85Length   = errors.New("z85: length must be a multiple of the block size")
	ErrZ85Char     = errors.New("z85: invalid character")
	ErrZ85Overflow = errors.New("z85: block value overflows 32 bits")
)

const z85Chars = "0123456789abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var z85Values = func() [256]int16 {
	var table [256]int16
	for i := range table {
		table[i] = -1
	}
	for i, c := range []byte(z85Chars) {
		table[c] = int16(i)
	}
	return table
}()

// Z85Encode encodes binary data whose length is a multiple of 4 into
// the Z85 text form (5 characters per 4 bytes)
func Z85Encode(data []byte) (string, error) {
	if len(data)%4 != 0 {
		return "", fmt.Errorf("%w: %d bytes", ErrZ85Length, len(data))
	}

	out := make([]byte, 0, len(data)/4*5)
	for i := 0; i < len(data); i += 4 {
		value := uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		var block [5]byte
		for j := 4; j >= 0; j-- {
			block[j] = z85Chars[value%85]
			value /= 85
		}
		out = append(out, block[:]...)
	}
	return string(out), nil
}

// Z85Decode decodes Z85 text whose length is a multiple of 5 back into
// binary form
func Z85Decode(text string) ([]byte, error) {
	if len(text)%5 != 0 {
		return nil, fmt.Errorf("%w: %d characters", ErrZ85Length, len(text))
	}

	out := make([]byte, 0, len(text)/5*4)
	for i := 0; i < len(text); i += 5 {
		var value uint64
		for j := 0; j < 5; j++ {
			v := z85Values[text[i+j]]
			if v < 0 {
				return nil, fmt.Errorf("%w: %q", ErrZ85Char, text[i+j])
			}
			value = value*85 + uint64(v)
		}
		if value > 0xFFFFFFFF {
			return nil, ErrZ85Overflow
		}
		out = append(out, byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	}
	return out, nil
}

// ValidateCurveKey checks that a Z85 text key decodes to a 32-byte
// curve25519 key
func ValidateCurveKey(text string) error {
	if len(text) != CurveKeyTextSize {
		return fmt.Errorf("curve key must be %d characters, got %d", CurveKeyTextSize, len(text))
	}
	raw, err := Z85Decode(text)
	if err != nil {
		return err
	}
	if len(raw) != CurveKeySize {
		return fmt.Errorf("curve key must decode to %d bytes, got %d", CurveKeySize, len(raw))
	}
	return nil
}

// NewCurveKeypair generates a curve25519 keypair and returns both
// halves Z85-encoded
func NewCurveKeypair() (publicKey, secretKey string, err error) {
	secret := make([]byte, CurveKeySize)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("generate secret key: %w", err)
	}

	public, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		return "", "", fmt.Errorf("derive public key: %w", err)
	}

	publicKey, err = Z85Encode(public)
	if err != nil {
		return "", "", err
	}
	secretKey, err = Z85Encode(secret)
	if err != nil {
		return "", "", err
	}
	return publicKey, secretKey, nil
}
