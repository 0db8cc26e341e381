package dol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T) *File {
	t.Helper()

	f := &File{
		BssAddress: 0x80005000,
		BssSize:    0x200,
		EntryPoint: 0x80003100,
	}
	f.Text = append(f.Text, &Section{
		Kind:    Text,
		Address: 0x80003000,
		Data:    make([]byte, 0x400),
	})
	f.Data = append(f.Data, &Section{
		Kind:    Data,
		Address: 0x80004000,
		Data:    make([]byte, 0x100),
	})
	return f
}

func TestSaveParseRoundTrip(t *testing.T) {
	f := testImage(t)
	require.NoError(t, f.WriteUint32(0x80003010, 0xDEADBEEF))

	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf))

	got, err := Parse(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, f.EntryPoint, got.EntryPoint)
	assert.Equal(t, f.BssAddress, got.BssAddress)
	assert.Equal(t, f.BssSize, got.BssSize)
	require.Len(t, got.Text, 1)
	require.Len(t, got.Data, 1)
	assert.Equal(t, uint32(0x80003000), got.Text[0].Address)
	assert.Equal(t, uint32(0x400), got.Text[0].Size())

	v, err := got.ReadUint32(0x80003010)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestParseTooShort(t *testing.T) {
	_, err := Parse(make([]byte, 0x40))
	assert.Error(t, err)
}

func TestParseTruncatedSection(t *testing.T) {
	f := testImage(t)
	var buf bytes.Buffer
	require.NoError(t, f.Save(&buf))

	_, err := Parse(buf.Bytes()[:buf.Len()-0x80])
	assert.Error(t, err)
}

func TestAccessBounds(t *testing.T) {
	f := testImage(t)

	assert.True(t, f.IsMapped(0x80003000))
	assert.True(t, f.IsMapped(0x800033FF))
	assert.False(t, f.IsMapped(0x80003400))
	assert.False(t, f.IsMapped(0x80000000))

	_, err := f.ReadUint32(0x80002000)
	assert.ErrorIs(t, err, ErrorNotMapped)

	// A multi-byte write may not spill past the section end.
	err = f.WriteUint32(0x800033FE, 1)
	assert.Error(t, err)

	// A plain Access is allowed to return a short count instead.
	n, err := f.Access(false, 0x800033FC, make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestAppendSectionFallback(t *testing.T) {
	f := &File{}

	for i := 0; i < MaxTextSections; i++ {
		s, err := f.AppendSection(uint32(0x80100000+i*0x1000), make([]byte, 32))
		require.NoError(t, err)
		assert.Equal(t, Text, s.Kind)
	}

	// Text slots exhausted; data slots take over.
	for i := 0; i < MaxDataSections; i++ {
		s, err := f.AppendSection(uint32(0x80200000+i*0x1000), make([]byte, 32))
		require.NoError(t, err)
		assert.Equal(t, Data, s.Kind)
	}

	_, err := f.AppendSection(0x80300000, make([]byte, 32))
	assert.ErrorIs(t, err, ErrorSectionsFull)
}

func TestSectionsSorted(t *testing.T) {
	f := testImage(t)
	_, err := f.AppendSection(0x80002000, make([]byte, 32))
	require.NoError(t, err)

	sections := f.Sections()
	require.Len(t, sections, 3)
	for i := 1; i < len(sections); i++ {
		assert.Less(t, sections[i-1].Address, sections[i].Address)
	}
}
