package devkit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigurn/crc16"

	"github.com/mintwald/dolkit/dol"
	"github.com/mintwald/dolkit/gecko"
	"github.com/mintwald/dolkit/ppc"
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// buildObjects runs the external toolchain: compile and assemble every
// registered source, link everything at base, then load the symbol table
// and flatten the result into a contiguous blob. Returns nil when the
// project has no compiled inputs at all.
func (p *Project) buildObjects(base uint32) ([]byte, error) {
	p.symbols = make(SymbolTable)

	if len(p.cFiles)+len(p.cppFiles)+len(p.asmFiles)+len(p.objFiles) == 0 {
		p.mergeDefinedSymbols()
		return nil, nil
	}

	if p.ObjDir != "" {
		if err := os.MkdirAll(p.ObjDir, 0755); err != nil {
			return nil, err
		}
	}

	for _, src := range p.cFiles {
		obj, err := p.compileC(src, false)
		if err != nil {
			return nil, err
		}
		p.objFiles = append(p.objFiles, objectFile{path: obj, doCleanup: true})
	}
	for _, src := range p.cppFiles {
		obj, err := p.compileC(src, true)
		if err != nil {
			return nil, err
		}
		p.objFiles = append(p.objFiles, objectFile{path: obj, doCleanup: true})
	}
	for _, src := range p.asmFiles {
		obj, err := p.assemble(src)
		if err != nil {
			return nil, err
		}
		p.objFiles = append(p.objFiles, objectFile{path: obj, doCleanup: true})
	}

	if err := p.link(base); err != nil {
		return nil, err
	}

	linked := filepath.Join(p.ObjDir, p.Name+".o")
	symbols, err := loadSymbolTable(linked)
	if err != nil {
		return nil, err
	}
	p.symbols = symbols

	if p.sdaSet {
		p.symbols["_SDA_BASE_"] = Symbol{Name: "_SDA_BASE_", Address: p.sdaBase}
		p.symbols["_SDA2_BASE_"] = Symbol{Name: "_SDA2_BASE_", Address: p.sda2Base}
	}
	p.mergeDefinedSymbols()

	blob, err := extractImage(linked, base)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(p.ObjDir, p.Name+".bin"), blob, 0644); err != nil {
		return nil, err
	}

	for len(blob)%4 != 0 {
		blob = append(blob, 0)
	}

	p.logf(2, "Linked %d bytes at %08X (crc16 %04X)", len(blob), base, crc16.Checksum(blob, crcTable))
	return blob, nil
}

func (p *Project) mergeDefinedSymbols() {
	for name, addr := range p.defined {
		p.symbols[name] = Symbol{Name: name, Address: addr}
	}
}

// foldGeckoCodes bakes the queued code lists into the image. Direct
// writes land immediately; ASM inserts are detoured: a branch at the
// insert address jumps into code appended to blob, which branches back
// past the original instruction. Codes containing entry kinds outside the
// bakeable set are rejected.
func (p *Project) foldGeckoCodes(f *dol.File, base uint32, blob []byte) ([]byte, error) {
	for _, code := range p.codes.Codes {
		if !code.Enabled {
			p.logf(1, "[GeckoCode]   DISABLED     $%s", code.Name)
			continue
		}

		for _, cmd := range code.Commands {
			if !cmd.Kind().SupportedDOL() {
				return nil, fmt.Errorf("%w: %s in $%s", ErrorUnsupportedCode, cmd.Kind(), code.Name)
			}
		}

		for i, cmd := range code.Commands {
			switch cmd.Kind() {
			case gecko.AsmInsert, gecko.AsmInsertXOR:
				payload := cmd.Payload()
				if len(payload) < 4 {
					continue
				}
				// Last word of the payload is the code handler's
				// branch placeholder, replaced by our branch back.
				payload = payload[:len(payload)-4]

				target := base + uint32(len(blob))
				insn, err := ppc.AssembleBranch(cmd.Address(), target, false)
				if err != nil {
					return nil, fmt.Errorf("%w: $%s insert at %08X", ErrorBranchOutOfRange, code.Name, cmd.Address())
				}
				if err := f.WriteUint32(cmd.Address(), insn); err != nil {
					return nil, err
				}
				blob = append(blob, payload...)

				back, err := ppc.AssembleBranch(base+uint32(len(blob)), cmd.Address()+4, false)
				if err != nil {
					return nil, fmt.Errorf("%w: $%s return to %08X", ErrorBranchOutOfRange, code.Name, cmd.Address()+4)
				}
				blob = binary.BigEndian.AppendUint32(blob, back)

				p.geckoMeta = append(p.geckoMeta, mapRow{
					Name:    fmt.Sprintf("%s$%d", code.Name, i),
					Address: target,
					Size:    base + uint32(len(blob)) - target,
				})

			default:
				if err := cmd.ApplyDOL(f); err != nil {
					return nil, fmt.Errorf("$%s: %w", code.Name, err)
				}
			}
		}

		p.logf(1, "[GeckoCode]   ENABLED      $%s", code.Name)
	}

	return blob, nil
}

// BuildDOL builds the project and writes a patched copy of the image at
// inPath to outPath. Every failure is detected before the output file is
// created, so a failed build leaves nothing behind.
func (p *Project) BuildDOL(inPath, outPath string) error {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	f, err := dol.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %v", inPath, err)
	}

	base, err := p.resolveBaseAddr(f)
	if err != nil {
		return err
	}
	p.baseUsed = base

	blob, err := p.buildObjects(base)
	if err != nil {
		return err
	}

	blob, err = p.foldGeckoCodes(f, base, blob)
	if err != nil {
		return err
	}

	resolved := make([]resolvedHook, 0, len(p.hooks))
	for _, h := range p.hooks {
		r, err := p.resolveHook(h)
		if err != nil {
			return err
		}
		resolved = append(resolved, r)
	}

	if len(blob) > 0 {
		if p.arenaPatcher == nil {
			return ErrorMissingArenaPatcher
		}
		p.fingerprintBlob(blob)

		s, err := f.AppendSection(base, blob)
		if err != nil {
			return err
		}
		p.logf(1, "Allocated %s section: %08X-%08X", s.Kind, s.Address, s.End())

		if err := p.arenaPatcher(f, base+uint32(len(blob))); err != nil {
			return err
		}
	}

	for _, r := range resolved {
		if !r.skipped {
			if err := f.WriteBytes(r.hook.HookAddr(), r.data); err != nil {
				return err
			}
		}
		p.logf(1, "%s", r.dumpInfo())
	}

	p.built = true

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	return f.Save(out)
}

// BuildGecko builds the project and serializes everything, compiled blob
// included, as a Gecko code list at outPath: the late-binding form used
// when the base image cannot be modified. No arena space is allocated and
// no arena patcher runs, so hooks must not depend on the injected region
// being excluded from the live arena. A .gct path selects the binary
// container, anything else the Dolphin text format.
func (p *Project) BuildGecko(outPath string) error {
	haveSources := len(p.cFiles)+len(p.cppFiles)+len(p.asmFiles)+len(p.objFiles) > 0
	if haveSources && p.BaseAddr == 0 {
		return ErrorMissingBaseAddress
	}
	p.baseUsed = p.BaseAddr

	blob, err := p.buildObjects(p.BaseAddr)
	if err != nil {
		return err
	}

	resolved := make([]resolvedHook, 0, len(p.hooks))
	for _, h := range p.hooks {
		r, err := p.resolveHook(h)
		if err != nil {
			return err
		}
		if !r.skipped {
			resolved = append(resolved, r)
		}
		p.logf(1, "%s", r.dumpInfo())
	}

	mega := &gecko.Code{Name: p.Name, Enabled: true}
	for _, code := range p.codes.Codes {
		if !code.Enabled {
			p.logf(1, "[GeckoCode]   DISABLED     $%s", code.Name)
			continue
		}
		p.logf(1, "[GeckoCode]   ENABLED      $%s", code.Name)
		mega.Commands = append(mega.Commands, code.Commands...)
	}
	if len(blob) > 0 {
		p.fingerprintBlob(blob)
		mega.Commands = append(mega.Commands, gecko.NewWriteString(p.BaseAddr, blob))
	}
	for _, r := range resolved {
		mega.Commands = append(mega.Commands, r.cmd)
	}

	var buf bytes.Buffer
	table := gecko.Table{Name: p.Name}
	table.Add(mega)

	if strings.EqualFold(filepath.Ext(outPath), ".gct") {
		buf.Write(table.Bytes())
	} else if err := table.WriteText(&buf); err != nil {
		return err
	}

	p.built = true
	return os.WriteFile(outPath, buf.Bytes(), 0644)
}

type mapRow struct {
	Name    string
	Address uint32
	Size    uint32
}

// fingerprintBlob records the injected region's extent and checksum for
// the symbol map preamble.
func (p *Project) fingerprintBlob(blob []byte) {
	p.blobLen = uint32(len(blob))
	p.blobSum = crc16.Checksum(blob, crcTable)
}

// SaveMap writes a symbol map of everything the build injected, in the
// format Dolphin loads. Valid only after a successful build.
func (p *Project) SaveMap(outPath string) error {
	if !p.built {
		return ErrorNotBuilt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Link map of %s\n", p.Name)
	if p.blobLen > 0 {
		fmt.Fprintf(&b, "Injected region %08X-%08X crc16 %04X\n",
			p.baseUsed, p.baseUsed+p.blobLen, p.blobSum)
	}

	writeHeader := func(section string) {
		fmt.Fprintf(&b, "\n%s section layout\n"+
			"  Starting        Virtual\n"+
			"  address  Size   address\n"+
			"  -----------------------\n", section)
	}

	section := ""
	for _, sym := range p.symbols.mapSymbols() {
		if sym.Section != section {
			section = sym.Section
			writeHeader(section)
		}
		fmt.Fprintf(&b, "  %08X %06X %08X  0 %s\n",
			sym.Address-p.baseUsed, sym.Size, sym.Address, sym.Name)
	}

	// Detoured ASM inserts live outside the ELF; list them as .text so
	// Dolphin colors them by index.
	if len(p.geckoMeta) > 0 {
		writeHeader(".text")
		for _, row := range p.geckoMeta {
			fmt.Fprintf(&b, "  %08X %06X %08X  0 %s\n",
				row.Address-p.baseUsed, row.Size, row.Address, row.Name)
		}
	}

	// Dolphin ( <= 5.0-13603 ) drops the size of the final symbol it
	// loads, so park a sacrificial entry at a harmless address.
	writeHeader(".dummy")
	b.WriteString("  00000000 000000 81200000  0 Workaround for Dolphin's bad symbol map loader\n")

	return os.WriteFile(outPath, []byte(b.String()), 0644)
}

func tryRemove(path string) {
	// Missing intermediates are fine.
	_ = os.Remove(path)
}

// Cleanup removes the intermediate artifacts the build created, plus any
// externally added objects that were marked for deletion. The project
// must be repopulated before it can build again.
func (p *Project) Cleanup() {
	for _, obj := range p.objFiles {
		if obj.doCleanup {
			tryRemove(filepath.Join(p.ObjDir, obj.path))
		}
	}
	tryRemove(filepath.Join(p.ObjDir, p.Name+".o"))
	tryRemove(filepath.Join(p.ObjDir, p.Name+".bin"))
	tryRemove(filepath.Join(p.ObjDir, p.Name+".map"))

	p.objFiles = nil
	p.symbols = nil
	p.geckoMeta = nil
	p.blobLen = 0
	p.blobSum = 0
	p.built = false
}
