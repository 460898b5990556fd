//go:build windows

package fustore

import "github.com/billgraziano/dpapi"

func seal(plaintext []byte) ([]byte, error) { return dpapi.EncryptBytes(plaintext) }

func unseal(sealed []byte) ([]byte, error) { return dpapi.DecryptBytes(sealed) }
