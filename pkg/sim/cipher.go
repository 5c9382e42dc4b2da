package sim

import (
	"encoding/binary"

	"github.com/robotalks/wavepass.go/pkg/iccx"
)

// CipherName is the name the emulator cipher is registered with.
const CipherName = "sim"

// Cipher is a xorshift keystream standing in for the reader firmware
// cipher. Both ends stay in sync as long as they transform the same
// number of bytes.
type Cipher struct {
	state uint32
}

// NewCipher implements iccx.CipherFactory.
func NewCipher() iccx.Cipher {
	return &Cipher{}
}

func init() {
	iccx.RegisterCipher(CipherName, NewCipher)
}

// DeriveSession implements iccx.Cipher.
func (c *Cipher) DeriveSession(clientKey, deviceKey [4]byte) {
	c.state = binary.BigEndian.Uint32(clientKey[:])<<1 ^ binary.BigEndian.Uint32(deviceKey[:])
	if c.state == 0 {
		c.state = 1
	}
}

// Transform implements iccx.Cipher.
func (c *Cipher) Transform(buf []byte) {
	for n := range buf {
		c.state ^= c.state << 13
		c.state ^= c.state >> 17
		c.state ^= c.state << 5
		buf[n] ^= byte(c.state)
	}
}

// CRC16 implements iccx.Cipher.
func (c *Cipher) CRC16(buf []byte) uint16 {
	return iccx.CRC16CCITT(buf)
}
