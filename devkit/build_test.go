package devkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintwald/dolkit/dol"
	"github.com/mintwald/dolkit/gecko"
	"github.com/mintwald/dolkit/ppc"
)

// writeTestDOL lays out a minimal image: one text section ending at the
// unaligned address 0x80003104, so automatic detection has something to
// round up.
func writeTestDOL(t *testing.T, dir string) string {
	t.Helper()

	f := &dol.File{EntryPoint: 0x80003000}
	f.Text = append(f.Text, &dol.Section{
		Kind:    dol.Text,
		Address: 0x80003000,
		Data:    make([]byte, 0x104),
	})

	path := filepath.Join(dir, "input.dol")
	out, err := os.Create(path)
	require.NoError(t, err)
	defer out.Close()
	require.NoError(t, f.Save(out))
	return path
}

// insertCode is one C2 ASM insert at addr: a single payload instruction
// plus the handler's branch placeholder.
func insertCode(addr uint32) *gecko.Code {
	return &gecko.Code{
		Name:    "Insert",
		Enabled: true,
		Commands: []*gecko.Command{
			{Words: []uint32{0xC2000000 | addr&0x01FFFFFF, 1, 0x38600001, 0}},
		},
	}
}

func TestBuildDOLEndToEnd(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")

	const (
		hookAddr   = 0x80003040
		insertAddr = 0x80003000
		symbolAddr = hookAddr + 0x100
	)

	var arenaEnd uint32
	p := NewProject("e2e", DevkitPPC)
	p.codes.Add(insertCode(insertAddr))
	p.DefineSymbol("S", symbolAddr)
	p.HookBranch(hookAddr, "S", false)
	p.HookPointer(hookAddr+4, "S")
	p.SetArenaPatcher(func(f *dol.File, romEnd uint32) error {
		arenaEnd = romEnd
		return nil
	})

	require.NoError(t, p.BuildDOL(inPath, outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	f, err := dol.Parse(raw)
	require.NoError(t, err)

	// The image ended at 0x80003104; the injected region starts at the
	// next alignment boundary and holds the detoured insert: one
	// instruction plus the branch back.
	require.Len(t, f.Text, 2)
	injected := f.Text[1]
	assert.Equal(t, uint32(0x80003120), injected.Address)
	assert.Equal(t, uint32(8), injected.Size())
	assert.Equal(t, injected.End(), arenaEnd)

	// Insert site branches into the region.
	insn, err := f.ReadUint32(insertAddr)
	require.NoError(t, err)
	offset, lk, ok := ppc.DecodeBranch(insn)
	require.True(t, ok)
	assert.False(t, lk)
	assert.Equal(t, injected.Address, uint32(insertAddr)+uint32(offset))

	// Payload instruction, then the branch back to the site.
	word, err := f.ReadUint32(injected.Address)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x38600001), word)

	back, err := f.ReadUint32(injected.Address + 4)
	require.NoError(t, err)
	offset, _, ok = ppc.DecodeBranch(back)
	require.True(t, ok)
	assert.Equal(t, uint32(insertAddr)+4, injected.Address+4+uint32(offset))

	// Branch hook: displacement 0x100, link clear.
	insn, err = f.ReadUint32(hookAddr)
	require.NoError(t, err)
	offset, lk, ok = ppc.DecodeBranch(insn)
	require.True(t, ok)
	assert.Equal(t, int32(0x100), offset)
	assert.False(t, lk)

	// Pointer hook: the symbol's absolute address.
	word, err = f.ReadUint32(hookAddr + 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(symbolAddr), word)
}

func TestBuildDOLExplicitBase(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")

	p := NewProject("explicit", DevkitPPC)
	p.BaseAddr = 0x80100000
	p.codes.Add(insertCode(0x80003000))
	p.SetArenaPatcher(func(f *dol.File, romEnd uint32) error { return nil })

	require.NoError(t, p.BuildDOL(inPath, outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	f, err := dol.Parse(raw)
	require.NoError(t, err)

	require.Len(t, f.Text, 2)
	assert.Equal(t, uint32(0x80100000), f.Text[1].Address)
}

func TestBuildDOLMissingArenaPatcher(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")

	p := NewProject("noarena", DevkitPPC)
	p.codes.Add(insertCode(0x80003000))

	err := p.BuildDOL(inPath, outPath)
	assert.ErrorIs(t, err, ErrorMissingArenaPatcher)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "failed build must leave no output")
}

func TestBuildDOLUnresolvedSymbol(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")

	p := NewProject("unresolved", DevkitPPC)
	p.HookBranch(0x80003000, "missing", false)

	err := p.BuildDOL(inPath, outPath)
	assert.ErrorIs(t, err, ErrorUnresolvedSymbol)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr), "failed build must leave no output")
}

func TestBuildDOLRejectsUnsupportedCode(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")

	p := NewProject("unsupported", DevkitPPC)
	p.codes.Add(&gecko.Code{
		Name:    "If",
		Enabled: true,
		Commands: []*gecko.Command{
			{Words: []uint32{0x20003000, 0}},
		},
	})

	err := p.BuildDOL(inPath, outPath)
	assert.ErrorIs(t, err, ErrorUnsupportedCode)
}

func TestBuildDOLDisabledCodeSkipped(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")

	p := NewProject("disabled", DevkitPPC)
	code := insertCode(0x80003000)
	code.Enabled = false
	p.codes.Add(code)

	// No new region is needed, so no arena patcher is either.
	require.NoError(t, p.BuildDOL(inPath, outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	f, err := dol.Parse(raw)
	require.NoError(t, err)
	require.Len(t, f.Text, 1)
}

func TestLayoutDetection(t *testing.T) {
	_, err := findRomEnd(&dol.File{})
	assert.ErrorIs(t, err, ErrorLayoutDetection)

	f := &dol.File{}
	f.Text = append(f.Text, &dol.Section{Kind: dol.Text, Address: 0x80003000, Data: make([]byte, 0x104)})
	end, err := findRomEnd(f)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80003104), end)

	// A bss range past the stored sections moves the ROM end.
	f.BssAddress = 0x80003100
	f.BssSize = 0x1000
	end, err = findRomEnd(f)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80004100), end)
}

func TestBuildGeckoText(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "codes.txt")

	p := NewProject("geckoproj", DevkitPPC)
	p.DefineSymbol("S", 0x80003140)
	p.HookBranch(0x80003040, "S", false)
	p.HookPointer(0x80003044, "S")
	p.HookString(0x80003050, "hi", "", 0)
	p.HookFile(0x80003060, "/does/not/exist.bin", 0, 0, 0)

	require.NoError(t, p.BuildGecko(outPath))

	in, err := os.Open(outPath)
	require.NoError(t, err)
	defer in.Close()

	table, err := gecko.ParseText(in)
	require.NoError(t, err)
	require.Len(t, table.Codes, 1)
	assert.Equal(t, "geckoproj", table.Codes[0].Name)

	// The skipped file hook must not serialize; the rest do, in order.
	cmds := table.Codes[0].Commands
	require.Len(t, cmds, 3)
	assert.Equal(t, gecko.WriteBranch, cmds[0].Kind())
	assert.Equal(t, uint32(0x80003140), cmds[0].Value())
	assert.Equal(t, gecko.Write32, cmds[1].Kind())
	assert.Equal(t, gecko.WriteString, cmds[2].Kind())
}

func TestBuildGeckoGCT(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "codes.gct")

	p := NewProject("geckoproj", DevkitPPC)
	p.DefineSymbol("S", 0x80003140)
	p.HookPointer(0x80003044, "S")

	require.NoError(t, p.BuildGecko(outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)

	table, err := gecko.ParseGCT(raw, "out")
	require.NoError(t, err)
	require.Len(t, table.Codes, 1)
	require.Len(t, table.Codes[0].Commands, 1)
	assert.Equal(t, gecko.Write32, table.Codes[0].Commands[0].Kind())
}

func TestBuildGeckoRequiresBase(t *testing.T) {
	p := NewProject("nobase", DevkitPPC)
	p.AddObjFile("something.o", false)

	err := p.BuildGecko(filepath.Join(t.TempDir(), "codes.txt"))
	assert.ErrorIs(t, err, ErrorMissingBaseAddress)
}

func TestSaveMap(t *testing.T) {
	dir := t.TempDir()
	inPath := writeTestDOL(t, dir)
	outPath := filepath.Join(dir, "output.dol")
	mapPath := filepath.Join(dir, "output.map")

	p := NewProject("mapproj", DevkitPPC)

	// Before any build the map is unavailable.
	assert.ErrorIs(t, p.SaveMap(mapPath), ErrorNotBuilt)
	_, err := p.Symbols()
	assert.ErrorIs(t, err, ErrorNotBuilt)

	p.codes.Add(insertCode(0x80003000))
	p.SetArenaPatcher(func(f *dol.File, romEnd uint32) error { return nil })
	require.NoError(t, p.BuildDOL(inPath, outPath))

	require.NoError(t, p.SaveMap(mapPath))
	content, err := os.ReadFile(mapPath)
	require.NoError(t, err)

	// The detoured insert shows up as .text, and the Dolphin workaround
	// entry closes the map.
	assert.Contains(t, string(content), ".text section layout")
	assert.Contains(t, string(content), "Insert$0")
	assert.True(t, strings.Contains(string(content), "Workaround"))

	// The preamble carries the injected region's checksum; recompute it
	// from the bytes that actually landed in the output image.
	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	f, err := dol.Parse(raw)
	require.NoError(t, err)
	require.Len(t, f.Text, 2)
	sum := crc16.Checksum(f.Text[1].Data, crc16.MakeTable(crc16.CRC16_CCITT_FALSE))
	assert.Contains(t, string(content), fmt.Sprintf("crc16 %04X", sum))
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()

	p := NewProject("cleanproj", DevkitPPC)
	p.ObjDir = dir

	intermediates := []string{"cleanproj.o", "cleanproj.bin", "cleanproj.map", "extra.o"}
	keep := []string{"keep.o", "unrelated.txt"}
	for _, name := range append(append([]string{}, intermediates...), keep...) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	p.AddObjFile("extra.o", true)
	p.AddObjFile("keep.o", false)

	p.Cleanup()

	for _, name := range intermediates {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should be removed", name)
	}
	for _, name := range keep {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "%s should survive", name)
	}

	// A cleaned project cannot build until repopulated.
	assert.ErrorIs(t, p.SaveMap(filepath.Join(dir, "m.map")), ErrorNotBuilt)
}
