package devkit

import (
	"debug/elf"
	"fmt"
	"sort"
)

// Symbol is one entry of the symbol table produced by the external link
// step. Addresses are absolute and only valid for the build that produced
// them.
type Symbol struct {
	Name    string
	Address uint32
	Size    uint32
	Section string
}

// SymbolTable maps symbol names to their resolved addresses. It is built
// once per build and read-only afterwards.
type SymbolTable map[string]Symbol

// Resolve looks up a symbol by name.
func (t SymbolTable) Resolve(name string) (Symbol, error) {
	sym, ok := t[name]
	if !ok {
		return Symbol{}, fmt.Errorf("%w: %q", ErrorUnresolvedSymbol, name)
	}
	return sym, nil
}

// mapSymbols returns the globally visible symbols that live in an actual
// section, sorted by address. These are the ones worth listing in a symbol
// map; linker-script constants (SHN_ABS) and unresolved references are
// filtered out.
func (t SymbolTable) mapSymbols() []Symbol {
	var out []Symbol
	for _, sym := range t {
		if sym.Section == "" {
			continue
		}
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}

// loadSymbolTable reads the symbol table of a linked ELF object. Local
// symbols are dropped: they carry STT_SECTION/STT_FILE noise and cannot be
// referenced by hooks anyway.
func loadSymbolTable(path string) (SymbolTable, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return nil, err
	}

	table := make(SymbolTable)
	for _, sym := range syms {
		if elf.ST_BIND(sym.Info) == elf.STB_LOCAL {
			continue
		}

		entry := Symbol{
			Name:    sym.Name,
			Address: uint32(sym.Value),
			Size:    uint32(sym.Size),
		}
		if int(sym.Section) < len(f.Sections) && sym.Section != elf.SHN_UNDEF {
			entry.Section = f.Sections[sym.Section].Name
		}
		table[sym.Name] = entry
	}

	return table, nil
}

// extractImage flattens the allocatable, initialized sections of a linked
// ELF into a contiguous blob based at base.
func extractImage(path string, base uint32) ([]byte, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blob []byte
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		if s.Addr < uint64(base) {
			return nil, fmt.Errorf("section %s at %08X is below the base address %08X", s.Name, s.Addr, base)
		}

		data, err := s.Data()
		if err != nil {
			return nil, err
		}

		offset := s.Addr - uint64(base)
		if end := offset + uint64(len(data)); uint64(len(blob)) < end {
			blob = append(blob, make([]byte, end-uint64(len(blob)))...)
		}
		copy(blob[offset:], data)
	}

	return blob, nil
}
