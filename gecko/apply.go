package gecko

import (
	"fmt"

	"github.com/mintwald/dolkit/dol"
	"github.com/mintwald/dolkit/ppc"
)

// ApplyDOL permanently folds a direct-write command into the image. ASM
// inserts are not handled here: they need new code space and are folded by
// the build pipeline that owns the allocation. Anything else is rejected.
func (c *Command) ApplyDOL(f *dol.File) error {
	addr := c.Address()
	value := c.Value()

	switch c.Kind() {
	case Write8:
		count := value>>16 + 1
		for i := uint32(0); i < count; i++ {
			if err := f.WriteBytes(addr+i, []byte{byte(value)}); err != nil {
				return err
			}
		}

	case Write16:
		count := value>>16 + 1
		for i := uint32(0); i < count; i++ {
			if err := f.WriteUint16(addr+2*i, uint16(value)); err != nil {
				return err
			}
		}

	case Write32:
		return f.WriteUint32(addr, value)

	case WriteString:
		payload := c.Payload()
		if int(value) < len(payload) {
			payload = payload[:value]
		}
		return f.WriteBytes(addr, payload)

	case WriteSerial:
		control := c.Words[2]
		valueInc := c.Words[3]
		size := control >> 28
		count := (control>>16)&0xFFF + 1
		addrInc := control & 0xFFFF

		for i := uint32(0); i < count; i++ {
			var err error
			switch size {
			case 0:
				err = f.WriteBytes(addr, []byte{byte(value)})
			case 1:
				err = f.WriteUint16(addr, uint16(value))
			default:
				err = f.WriteUint32(addr, value)
			}
			if err != nil {
				return err
			}
			addr += addrInc
			value += valueInc
		}

	case WriteBranch:
		// Bit 0 of the target selects branch-and-link.
		return ppc.WriteBranch(f, addr, value&^1, value&1 != 0)

	default:
		return fmt.Errorf("%w: %s", ErrorUnsupported, c.Kind())
	}

	return nil
}

func header(kind Kind, addr uint32) uint32 {
	return uint32(kind)<<24 | addr&0x01FFFFFF
}

func NewWrite8(addr uint32, value uint8) *Command {
	return &Command{Words: []uint32{header(Write8, addr), uint32(value)}}
}

func NewWrite16(addr uint32, value uint16) *Command {
	return &Command{Words: []uint32{header(Write16, addr), uint32(value)}}
}

func NewWrite32(addr uint32, value uint32) *Command {
	return &Command{Words: []uint32{header(Write32, addr), value}}
}

// NewWriteString builds a string-write command; data is padded with zeros
// to a whole number of 8-byte pairs, with the true length in the header.
func NewWriteString(addr uint32, data []byte) *Command {
	words := []uint32{header(WriteString, addr), uint32(len(data))}
	padded := append([]byte(nil), data...)
	for len(padded)%8 != 0 {
		padded = append(padded, 0)
	}
	for i := 0; i < len(padded); i += 4 {
		words = append(words, uint32(padded[i])<<24|uint32(padded[i+1])<<16|uint32(padded[i+2])<<8|uint32(padded[i+3]))
	}
	return &Command{Words: words}
}

func NewWriteBranch(addr, target uint32, lk bool) *Command {
	value := target
	if lk {
		value |= 1
	}
	return &Command{Words: []uint32{header(WriteBranch, addr), value}}
}
