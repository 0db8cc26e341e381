package gecko

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintwald/dolkit/dol"
	"github.com/mintwald/dolkit/ppc"
)

func testImage() *dol.File {
	f := &dol.File{}
	f.Text = append(f.Text, &dol.Section{
		Kind:    dol.Text,
		Address: 0x80003000,
		Data:    make([]byte, 0x1000),
	})
	return f
}

func TestApplyWrite32(t *testing.T) {
	f := testImage()
	require.NoError(t, NewWrite32(0x80003000, 0xDEADBEEF).ApplyDOL(f))

	v, err := f.ReadUint32(0x80003000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v)
}

func TestApplyWrite8Fill(t *testing.T) {
	f := testImage()

	// Count lives in the upper half of the value word: write 4 bytes.
	cmd := &Command{Words: []uint32{0x00003010, 0x000300AB}}
	require.NoError(t, cmd.ApplyDOL(f))

	buf := make([]byte, 5)
	_, err := f.Access(false, 0x80003010, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xAB, 0xAB, 0xAB, 0x00}, buf)
}

func TestApplyWrite16Fill(t *testing.T) {
	f := testImage()

	cmd := &Command{Words: []uint32{0x02003020, 0x00011234}}
	require.NoError(t, cmd.ApplyDOL(f))

	for _, addr := range []uint32{0x80003020, 0x80003022} {
		v, err := f.ReadUint16(addr)
		require.NoError(t, err)
		assert.Equal(t, uint16(0x1234), v)
	}
}

func TestApplyWriteString(t *testing.T) {
	f := testImage()
	require.NoError(t, NewWriteString(0x80003030, []byte("hello")).ApplyDOL(f))

	buf := make([]byte, 6)
	_, err := f.Access(false, 0x80003030, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00"), buf)
}

func TestApplyWriteSerial(t *testing.T) {
	f := testImage()

	// 32-bit writes, 3 of them, address step 8, value step 1.
	cmd := &Command{Words: []uint32{0x08003040, 5, 0x20020008, 1}}
	require.NoError(t, cmd.ApplyDOL(f))

	for i := uint32(0); i < 3; i++ {
		v, err := f.ReadUint32(0x80003040 + 8*i)
		require.NoError(t, err)
		assert.Equal(t, 5+i, v)
	}
}

func TestApplyWriteBranch(t *testing.T) {
	f := testImage()
	require.NoError(t, NewWriteBranch(0x80003100, 0x80003200, true).ApplyDOL(f))

	insn, err := f.ReadUint32(0x80003100)
	require.NoError(t, err)

	offset, lk, ok := ppc.DecodeBranch(insn)
	require.True(t, ok)
	assert.Equal(t, int32(0x100), offset)
	assert.True(t, lk)
}

func TestApplyUnsupported(t *testing.T) {
	f := testImage()

	cmd := &Command{Words: []uint32{0x20003000, 0}}
	assert.ErrorIs(t, cmd.ApplyDOL(f), ErrorUnsupported)
}

func TestApplyUnmappedAddress(t *testing.T) {
	f := testImage()
	assert.Error(t, NewWrite32(0x80500000, 1).ApplyDOL(f))
}
