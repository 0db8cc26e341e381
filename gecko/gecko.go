// Package gecko reads, writes and applies Gecko code lists, both as raw GCT
// binaries and in the Dolphin text format. A code is an ordered list of
// 8-byte commands; a small closed set of command kinds can be baked directly
// into a DOL image, the rest only make sense under a live code handler.
package gecko

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrorBadMagic    = errors.New("missing GCT magic")
	ErrorTruncated   = errors.New("truncated code list")
	ErrorUnsupported = errors.New("unsupported codetype")
)

// Kind is a Gecko codetype with the pointer-mode and base-address bits
// masked off.
type Kind uint8

const (
	Write8       Kind = 0x00
	Write16      Kind = 0x02
	Write32      Kind = 0x04
	WriteString  Kind = 0x06
	WriteSerial  Kind = 0x08
	WriteBranch  Kind = 0xC6
	AsmInsert    Kind = 0xC2
	AsmInsertXOR Kind = 0xF2
	Terminator   Kind = 0xF0
)

func (k Kind) String() string {
	switch k {
	case Write8:
		return "write8"
	case Write16:
		return "write16"
	case Write32:
		return "write32"
	case WriteString:
		return "writestring"
	case WriteSerial:
		return "writeserial"
	case WriteBranch:
		return "writebranch"
	case AsmInsert:
		return "asminsert"
	case AsmInsertXOR:
		return "asminsertxor"
	case Terminator:
		return "terminator"
	}
	return fmt.Sprintf("codetype-%02X", uint8(k))
}

// SupportedDOL reports whether a command of this kind can be permanently
// folded into a DOL image.
func (k Kind) SupportedDOL() bool {
	switch k {
	case Write8, Write16, Write32, WriteString, WriteSerial, WriteBranch, AsmInsert, AsmInsertXOR:
		return true
	}
	return false
}

// Command is one Gecko command: a header pair of 32-bit words plus any
// payload pairs that follow it.
type Command struct {
	Words []uint32
}

// Kind masks off the pointer-mode bit (0x10) and the base-address bit
// (0x01) of the codetype byte.
func (c *Command) Kind() Kind {
	return Kind(uint8(c.Words[0]>>24) &^ 0x11)
}

// Address recovers the full target address. The low 25 bits of the first
// word are an offset from 0x80000000; the base-address bit selects the
// 0x81000000 region.
func (c *Command) Address() uint32 {
	return c.Words[0]&0x01FFFFFF | 0x80000000
}

// Value is the second header word.
func (c *Command) Value() uint32 {
	return c.Words[1]
}

// Payload returns the raw bytes of the words following the header pair.
func (c *Command) Payload() []byte {
	buf := make([]byte, 0, (len(c.Words)-2)*4)
	for _, w := range c.Words[2:] {
		buf = binary.BigEndian.AppendUint32(buf, w)
	}
	return buf
}

// payloadPairs gives the number of 8-byte pairs following the header pair
// for a command whose header is first/second.
func payloadPairs(first, second uint32) int {
	switch Kind(uint8(first>>24) &^ 0x11) {
	case WriteString:
		return int(second+7) / 8
	case WriteSerial:
		return 1
	case AsmInsert:
		return int(second)
	case AsmInsertXOR:
		return int(second & 0xFF)
	}
	return 0
}

// Code is a named, toggleable sequence of commands.
type Code struct {
	Name     string
	Enabled  bool
	Commands []*Command
}

// Table is an ordered collection of codes, the unit stored in a GCT file or
// a [Gecko] ini section.
type Table struct {
	Name  string
	Codes []*Code
}

func (t *Table) Add(c *Code) {
	t.Codes = append(t.Codes, c)
}

// Append merges every code of other into t.
func (t *Table) Append(other *Table) {
	t.Codes = append(t.Codes, other.Codes...)
}

var gctMagic = []byte{0x00, 0xD0, 0xC0, 0xDE, 0x00, 0xD0, 0xC0, 0xDE}

// ParseGCT decodes a raw GCT blob. The container has no code boundaries, so
// all commands land in a single code named after the file.
func ParseGCT(raw []byte, name string) (*Table, error) {
	if len(raw) < len(gctMagic)+8 || !bytes.HasPrefix(raw, gctMagic) {
		return nil, ErrorBadMagic
	}
	raw = raw[len(gctMagic):]

	code := &Code{Name: name, Enabled: true}
	for {
		if len(raw) < 8 {
			return nil, ErrorTruncated
		}
		first := binary.BigEndian.Uint32(raw)
		second := binary.BigEndian.Uint32(raw[4:])
		raw = raw[8:]

		if Kind(uint8(first>>24)) == Terminator {
			break
		}

		pairs := payloadPairs(first, second)
		if len(raw) < pairs*8 {
			return nil, ErrorTruncated
		}

		words := []uint32{first, second}
		for i := 0; i < pairs*2; i++ {
			words = append(words, binary.BigEndian.Uint32(raw[4*i:]))
		}
		raw = raw[pairs*8:]

		code.Commands = append(code.Commands, &Command{Words: words})
	}

	t := &Table{Name: name}
	t.Add(code)
	return t, nil
}

// ParseText decodes the Dolphin text format: "$Name" starts a code, pairs
// of 8-digit hex words form its commands, "*" lines are comments.
func ParseText(r io.Reader) (*Table, error) {
	t := &Table{}
	var current *Code
	var pending []uint32

	flush := func() error {
		if current == nil {
			return nil
		}
		for len(pending) >= 2 {
			need := 2 + payloadPairs(pending[0], pending[1])*2
			if len(pending) < need {
				return ErrorTruncated
			}
			current.Commands = append(current.Commands, &Command{
				Words: append([]uint32(nil), pending[:need]...),
			})
			pending = pending[need:]
		}
		if len(pending) != 0 {
			return ErrorTruncated
		}
		t.Add(current)
		return nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || line == "[Gecko]":
		case strings.HasPrefix(line, "*"):
		case strings.HasPrefix(line, "$"):
			if err := flush(); err != nil {
				return nil, err
			}
			current = &Code{Name: strings.TrimSpace(line[1:]), Enabled: true}
			pending = nil
		default:
			fields := strings.Fields(line)
			if len(fields) != 2 || current == nil {
				return nil, fmt.Errorf("malformed code line: %q", line)
			}
			for _, field := range fields {
				var w uint32
				if _, err := fmt.Sscanf(field, "%08X", &w); err != nil {
					return nil, fmt.Errorf("malformed code line: %q", line)
				}
				pending = append(pending, w)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return t, nil
}

// Bytes serializes every enabled code into a GCT blob.
func (t *Table) Bytes() []byte {
	out := append([]byte(nil), gctMagic...)
	for _, code := range t.Codes {
		if !code.Enabled {
			continue
		}
		for _, c := range code.Commands {
			for _, w := range c.Words {
				out = binary.BigEndian.AppendUint32(out, w)
			}
		}
	}
	out = binary.BigEndian.AppendUint32(out, uint32(Terminator)<<24)
	out = binary.BigEndian.AppendUint32(out, 0)
	return out
}

// AsText renders one code in the Dolphin text format, without the $ header.
func (c *Code) AsText() string {
	var b strings.Builder
	for _, cmd := range c.Commands {
		for i := 0; i+1 < len(cmd.Words); i += 2 {
			fmt.Fprintf(&b, "%08X %08X\n", cmd.Words[i], cmd.Words[i+1])
		}
	}
	return b.String()
}

// WriteText renders the whole table as a [Gecko] ini section.
func (t *Table) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "[Gecko]"); err != nil {
		return err
	}
	for _, code := range t.Codes {
		if !code.Enabled {
			continue
		}
		if _, err := fmt.Fprintf(w, "$%s\n%s", code.Name, code.AsText()); err != nil {
			return err
		}
	}
	return nil
}
