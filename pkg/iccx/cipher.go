package iccx

import (
	"fmt"
	"sort"
	"sync"
)

// ClientKey is the host half of the session key.
var ClientKey = [4]byte{0x29, 0x23, 0xbe, 0x84}

// Cipher is the stream cipher of an encrypted session.
type Cipher interface {
	// DeriveSession keys the cipher from both halves of the session key.
	DeriveSession(clientKey, deviceKey [4]byte)
	// Transform encrypts or decrypts buf in place.
	Transform(buf []byte)
	// CRC16 computes the CRC protecting a poll block.
	CRC16(buf []byte) uint16
}

// CipherFactory creates an unkeyed Cipher.
type CipherFactory func() Cipher

var (
	ciphers     = make(map[string]CipherFactory)
	ciphersLock sync.RWMutex
)

// RegisterCipher makes a cipher available by name.
func RegisterCipher(name string, factory CipherFactory) {
	ciphersLock.Lock()
	ciphers[name] = factory
	ciphersLock.Unlock()
}

// LookupCipher finds a registered cipher.
func LookupCipher(name string) (CipherFactory, error) {
	ciphersLock.RLock()
	factory, ok := ciphers[name]
	ciphersLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoCipher, name)
	}
	return factory, nil
}

// CipherNames lists registered ciphers.
func CipherNames() []string {
	ciphersLock.RLock()
	names := make([]string, 0, len(ciphers))
	for name := range ciphers {
		names = append(names, name)
	}
	ciphersLock.RUnlock()
	sort.Strings(names)
	return names
}

// CRC16CCITT computes CRC-16/CCITT-FALSE: polynomial 0x1021, initial
// value 0xffff, no reflection.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
