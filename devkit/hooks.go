package devkit

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/mintwald/dolkit/gecko"
	"github.com/mintwald/dolkit/ppc"
)

// Immediate-field modifiers understood by Immediate16Hook and
// Immediate12Hook.
const (
	ModifierLo   = "@l"
	ModifierHi   = "@h"
	ModifierHa   = "@ha"
	ModifierSda  = "@sda"
	ModifierSda2 = "@sda2"
)

// Hook is a declarative patch: write computed bytes at a fixed address in
// the target image. The concrete variants form a closed set; resolution
// matches them exhaustively rather than dispatching through methods, so all
// encoding logic stays in one place.
type Hook interface {
	HookAddr() uint32
}

// BranchHook writes a PC-relative branch to a symbol. Link selects bl
// over b.
type BranchHook struct {
	Address uint32
	Symbol  string
	Link    bool
}

// PointerHook writes a symbol's absolute address as a 4-byte value.
type PointerHook struct {
	Address uint32
	Symbol  string
}

// StringHook writes text encoded with Encoding and NUL-terminated. A
// nonzero MaxLength bounds the write: longer text is truncated to
// MaxLength-1 bytes plus the terminator, shorter text is zero padded.
type StringHook struct {
	Address   uint32
	Text      string
	Encoding  string
	MaxLength int
}

// FileHook writes a byte range [Start, End) of an external file. End <= 0
// counts back from the end of the file, with 0 meaning the file end
// itself. A nonzero MaxSize clamps the range length. A file that cannot be
// opened makes the hook a silent no-op.
type FileHook struct {
	Address uint32
	Path    string
	Start   int64
	End     int64
	MaxSize int64
}

// Immediate16Hook writes the 16-bit immediate field of an instruction,
// derived from a symbol's address via one of the modifiers above.
type Immediate16Hook struct {
	Address  uint32
	Symbol   string
	Modifier string
}

// Immediate12Hook is the paired-single load/store form: the immediate
// occupies 12 bits and shares its halfword with the W and I sub-fields,
// which the caller must supply since they cannot be derived from the
// target address.
type Immediate12Hook struct {
	Address  uint32
	Symbol   string
	Modifier string
	W        uint8
	I        uint8
}

func (h BranchHook) HookAddr() uint32      { return h.Address }
func (h PointerHook) HookAddr() uint32     { return h.Address }
func (h StringHook) HookAddr() uint32      { return h.Address }
func (h FileHook) HookAddr() uint32        { return h.Address }
func (h Immediate16Hook) HookAddr() uint32 { return h.Address }
func (h Immediate12Hook) HookAddr() uint32 { return h.Address }

// resolvedHook is a hook with its bytes fully computed against the symbol
// table: Data is what gets written at the hook address in image mode, Cmd
// is the equivalent code-list entry. A skipped hook writes nothing.
type resolvedHook struct {
	hook    Hook
	data    []byte
	cmd     *gecko.Command
	skipped bool
}

// resolveHook computes the exact bytes for one hook. Hooks resolve
// independently of each other; no hook may depend on another hook's write.
func (p *Project) resolveHook(h Hook) (resolvedHook, error) {
	r := resolvedHook{hook: h}

	switch h := h.(type) {
	case BranchHook:
		sym, err := p.symbols.Resolve(h.Symbol)
		if err != nil {
			return r, err
		}
		insn, err := ppc.AssembleBranch(h.Address, sym.Address, h.Link)
		if err != nil {
			return r, fmt.Errorf("%w: %s %08X -> %08X", ErrorBranchOutOfRange, h.Symbol, h.Address, sym.Address)
		}
		r.data = binary.BigEndian.AppendUint32(nil, insn)
		r.cmd = gecko.NewWriteBranch(h.Address, sym.Address, h.Link)

	case PointerHook:
		sym, err := p.symbols.Resolve(h.Symbol)
		if err != nil {
			return r, err
		}
		r.data = binary.BigEndian.AppendUint32(nil, sym.Address)
		r.cmd = gecko.NewWrite32(h.Address, sym.Address)

	case StringHook:
		data, err := encodeString(h.Text, h.Encoding)
		if err != nil {
			return r, err
		}
		data = append(data, 0)
		if h.MaxLength > 0 {
			if len(data) > h.MaxLength {
				data = data[:h.MaxLength-1]
				data = append(data, 0)
			}
			for len(data) < h.MaxLength {
				data = append(data, 0)
			}
		}
		r.data = data
		r.cmd = gecko.NewWriteString(h.Address, data)

	case FileHook:
		data, ok := readFileRange(h.Path, h.Start, h.End, h.MaxSize)
		if !ok {
			p.logf(1, "Hook at %08X: %q could not be opened, skipping", h.Address, h.Path)
			r.skipped = true
			return r, nil
		}
		r.data = data
		r.cmd = gecko.NewWriteString(h.Address, data)

	case Immediate16Hook:
		value, err := p.resolveImmediate(h.Symbol, h.Modifier)
		if err != nil {
			return r, err
		}
		r.data = binary.BigEndian.AppendUint16(nil, value)
		r.cmd = gecko.NewWrite16(h.Address, value)

	case Immediate12Hook:
		value, err := p.resolveImmediate(h.Symbol, h.Modifier)
		if err != nil {
			return r, err
		}
		field := value & 0x0FFF
		field |= uint16(h.I&1) << 12
		field |= uint16(h.W&7) << 13
		r.data = binary.BigEndian.AppendUint16(nil, field)
		r.cmd = gecko.NewWrite16(h.Address, field)

	default:
		return r, fmt.Errorf("unknown hook type %T", h)
	}

	return r, nil
}

// resolveImmediate derives the 16-bit quantity an immediate hook writes.
// The @sda/@sda2 modifiers are relative to the configured small-data-area
// bases; the rest split the absolute address.
func (p *Project) resolveImmediate(symbol, modifier string) (uint16, error) {
	sym, err := p.symbols.Resolve(symbol)
	if err != nil {
		return 0, err
	}

	switch modifier {
	case ModifierLo:
		return ppc.Lo(sym.Address), nil
	case ModifierHi:
		return ppc.Hi(sym.Address), nil
	case ModifierHa:
		return ppc.Hia(sym.Address), nil
	case ModifierSda:
		if !p.sdaSet {
			return 0, fmt.Errorf("%w: %s", ErrorMissingSdaBase, modifier)
		}
		return uint16(sym.Address - p.sdaBase), nil
	case ModifierSda2:
		if !p.sdaSet {
			return 0, fmt.Errorf("%w: %s", ErrorMissingSdaBase, modifier)
		}
		return uint16(sym.Address - p.sda2Base), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrorUnknownModifier, modifier)
}

// encodeString encodes text for a StringHook. ASCII and UTF-8 pass
// through; everything else goes through the IANA encoding registry.
func encodeString(text, name string) ([]byte, error) {
	switch strings.ToLower(name) {
	case "", "ascii", "us-ascii", "utf-8", "utf8":
		return []byte(text), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: %q", ErrorUnknownEncoding, name)
	}
	return enc.NewEncoder().Bytes([]byte(text))
}

// readFileRange reads [start, end) of the file. end <= 0 counts back from
// the file size. ok is false when the file cannot be opened, which is not
// an error. Degenerate ranges clamp to an empty slice rather than failing,
// so a hook over a shrunk file writes nothing.
func readFileRange(path string, start, end, maxSize int64) (data []byte, ok bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	size := int64(len(raw))
	if end <= 0 {
		end = size + end
	}
	if end > size {
		end = size
	}
	if end < 0 {
		end = 0
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}

	data = raw[start:end]
	if maxSize > 0 && int64(len(data)) > maxSize {
		data = data[:maxSize]
	}
	return data, true
}

// dumpInfo mirrors each hook as a one-line status string for verbose
// logging.
func (r resolvedHook) dumpInfo() string {
	arrow := "-->"
	if r.skipped {
		arrow = "-X>"
	}

	switch h := r.hook.(type) {
	case BranchHook:
		kind := "[Branch]     "
		if h.Link {
			kind = "[Branchlink] "
		}
		return fmt.Sprintf("%s %08X %s %s", kind, h.Address, arrow, h.Symbol)
	case PointerHook:
		return fmt.Sprintf("[Pointer]     %08X %s %s", h.Address, arrow, h.Symbol)
	case StringHook:
		return fmt.Sprintf("[String]      %08X %s %q", h.Address, arrow, h.Text)
	case FileHook:
		return fmt.Sprintf("[File]        %08X %s %q", h.Address, arrow, h.Path)
	case Immediate16Hook:
		return fmt.Sprintf("[Immediate16] %08X %s %s %s", h.Address, arrow, h.Symbol, h.Modifier)
	case Immediate12Hook:
		return fmt.Sprintf("[Immediate12] %08X %s %s %s", h.Address, arrow, h.Symbol, h.Modifier)
	}
	return fmt.Sprintf("[Hook]        %08X", r.hook.HookAddr())
}
