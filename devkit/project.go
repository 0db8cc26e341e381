// Package devkit builds game modifications: it drives an external PowerPC
// toolchain, resolves the symbols the link step produced, allocates space
// in a DOL image for the new code, and applies declarative hooks that wire
// the game into it. The results can be baked into a patched DOL or
// serialized as a Gecko code list.
package devkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mintwald/dolkit/gecko"
)

// LogFunc receives build diagnostics. Higher levels are more verbose;
// level 1 is the normal progress output, level 2 the debugging detail.
type LogFunc func(level int, format string, param ...interface{})

type sourceFile struct {
	path           string
	flags          []string
	useGlobalFlags bool
}

type objectFile struct {
	path      string
	doCleanup bool
}

// Project collects sources, hooks and configuration, and builds them into
// a patched DOL image or a Gecko code list. The zero value is not usable;
// call NewProject.
type Project struct {
	Name   string
	SrcDir string
	ObjDir string

	// BaseAddr places the injected region. Zero selects automatic
	// ROM-end detection during BuildDOL.
	BaseAddr uint32

	Compiler  Toolchain
	Assembler Toolchain
	Linker    Toolchain

	DevkitPPCPath   string
	CodeWarriorPath string

	CFlags      []string
	CppFlags    []string
	AsmFlags    []string
	LinkerFlags []string

	LogFunc LogFunc

	sdaBase  uint32
	sda2Base uint32
	sdaSet   bool

	cFiles        []sourceFile
	cppFiles      []sourceFile
	asmFiles      []sourceFile
	objFiles      []objectFile
	linkerScripts []string

	hooks        []Hook
	codes        gecko.Table
	defined      map[string]uint32
	arenaPatcher ArenaPatcher

	symbols   SymbolTable
	built     bool
	baseUsed  uint32
	blobLen   uint32
	blobSum   uint16
	geckoMeta []mapRow
}

// NewProject creates a project using the given toolchain for all three of
// compiling, assembling and linking, with that toolchain's stock flags.
func NewProject(name string, tc Toolchain) *Project {
	devkitPPC, codeWarrior := defaultToolchainPaths()

	return &Project{
		Name:            name,
		Compiler:        tc,
		Assembler:       tc,
		Linker:          tc,
		DevkitPPCPath:   devkitPPC,
		CodeWarriorPath: codeWarrior,
		CFlags:          defaultCFlags(tc),
		CppFlags:        defaultCppFlags(tc),
		AsmFlags:        defaultAsmFlags(tc),
		LinkerFlags:     defaultLinkerFlags(tc),
		codes:           gecko.Table{Name: name},
	}
}

func (p *Project) logf(level int, format string, param ...interface{}) {
	if p.LogFunc != nil {
		p.LogFunc(level, format, param...)
	}
}

// AddCFile registers a C source. Extra flags are appended after the
// project-wide CFlags.
func (p *Project) AddCFile(path string, flags ...string) {
	p.cFiles = append(p.cFiles, sourceFile{path: path, flags: flags, useGlobalFlags: true})
}

// AddCppFile registers a C++ source.
func (p *Project) AddCppFile(path string, flags ...string) {
	p.cppFiles = append(p.cppFiles, sourceFile{path: path, flags: flags, useGlobalFlags: true})
}

// AddAsmFile registers an assembly source.
func (p *Project) AddAsmFile(path string, flags ...string) {
	p.asmFiles = append(p.asmFiles, sourceFile{path: path, flags: flags, useGlobalFlags: true})
}

// AddObjFile registers an already compiled object. With doCleanup set the
// file is removed by Cleanup along with the intermediates.
func (p *Project) AddObjFile(path string, doCleanup bool) {
	p.objFiles = append(p.objFiles, objectFile{path: path, doCleanup: doCleanup})
}

// AddLinkerScript registers a linker script passed to the link step. When
// any script is present the project's base address is not forced on the
// linker; the scripts own placement.
func (p *Project) AddLinkerScript(path string) {
	p.linkerScripts = append(p.linkerScripts, path)
}

// AddGeckoTextFile loads a Dolphin-format code list and queues its codes.
func (p *Project) AddGeckoTextFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	t, err := gecko.ParseText(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	p.codes.Append(t)
	return nil
}

// AddGeckoGCTFile loads a raw GCT code list and queues its codes.
func (p *Project) AddGeckoGCTFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	t, err := gecko.ParseGCT(raw, name)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	p.codes.Append(t)
	return nil
}

// HookBranch queues a branch instruction at addr targeting a symbol.
func (p *Project) HookBranch(addr uint32, symbol string, link bool) {
	p.hooks = append(p.hooks, BranchHook{Address: addr, Symbol: symbol, Link: link})
}

// HookBranchlink queues a branch-and-link; shorthand for HookBranch with
// the link bit set.
func (p *Project) HookBranchlink(addr uint32, symbol string) {
	p.HookBranch(addr, symbol, true)
}

// HookPointer queues a 4-byte absolute address write.
func (p *Project) HookPointer(addr uint32, symbol string) {
	p.hooks = append(p.hooks, PointerHook{Address: addr, Symbol: symbol})
}

// HookString queues an encoded, NUL-terminated string write. maxLength 0
// leaves the write unbounded.
func (p *Project) HookString(addr uint32, text, encoding string, maxLength int) {
	p.hooks = append(p.hooks, StringHook{Address: addr, Text: text, Encoding: encoding, MaxLength: maxLength})
}

// HookFile queues a write of a byte range read from an external file.
func (p *Project) HookFile(addr uint32, path string, start, end, maxSize int64) {
	p.hooks = append(p.hooks, FileHook{Address: addr, Path: path, Start: start, End: end, MaxSize: maxSize})
}

// HookImmediate16 queues a 16-bit immediate-field write derived from a
// symbol address via modifier.
func (p *Project) HookImmediate16(addr uint32, symbol, modifier string) {
	p.hooks = append(p.hooks, Immediate16Hook{Address: addr, Symbol: symbol, Modifier: modifier})
}

// HookImmediate12 queues the paired-single variant; w and i are the
// instruction's existing sub-fields, preserved alongside the immediate.
func (p *Project) HookImmediate12(addr uint32, w, i uint8, symbol, modifier string) {
	p.hooks = append(p.hooks, Immediate12Hook{Address: addr, Symbol: symbol, Modifier: modifier, W: w, I: i})
}

// DefineSymbol declares a symbol at a fixed address without involving the
// linker, the way a linker-script constant would. Defined symbols win
// over same-named symbols from the link step.
func (p *Project) DefineSymbol(name string, addr uint32) {
	if p.defined == nil {
		p.defined = make(map[string]uint32)
	}
	p.defined[name] = addr
}

// SetArenaPatcher installs the game-specific capability that moves the
// runtime arena above the injected region. Required whenever BuildDOL has
// to create a new section.
func (p *Project) SetArenaPatcher(fn ArenaPatcher) {
	p.arenaPatcher = fn
}

// SetSdaBases configures the small-data-area base addresses used by the
// @sda and @sda2 modifiers.
func (p *Project) SetSdaBases(sdaBase, sda2Base uint32) {
	p.sdaBase = sdaBase
	p.sda2Base = sda2Base
	p.sdaSet = true
}

// Symbols exposes the table produced by the most recent build.
func (p *Project) Symbols() (SymbolTable, error) {
	if !p.built {
		return nil, ErrorNotBuilt
	}
	return p.symbols, nil
}
