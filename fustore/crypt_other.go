//go:build !windows

package fustore

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// embeddedKey obscures sealed values; anyone with the binary can recover it.
var embeddedKey = [32]byte{
	0x3c, 0x91, 0x5e, 0xd2, 0x07, 0xab, 0x68, 0xf4,
	0x2d, 0xc6, 0x19, 0x8a, 0x73, 0xe0, 0x4f, 0xb5,
	0x96, 0x0e, 0x5b, 0xc8, 0x31, 0x7f, 0xa4, 0x1d,
	0xe9, 0x62, 0x8c, 0x05, 0xd7, 0x4a, 0xbe, 0x23,
}

const nonceSize = 24

// seal returns nonce followed by the secretbox ciphertext.
func seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &embeddedKey), nil
}

func unseal(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed value too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &embeddedKey)
	if !ok {
		return nil, errors.New("unseal failed")
	}
	return plaintext, nil
}
